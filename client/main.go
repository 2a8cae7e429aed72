package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burntcarrot/sharepad/remote"
	"github.com/burntcarrot/sharepad/share"
	"github.com/burntcarrot/sharepad/tui"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var logger = logrus.New()

func main() {
	flags := parseFlags()
	if flags.Share == "" {
		color.Red("No share given, pass one with -share.\n")
		os.Exit(2)
	}

	logFile, debugLogFile, err := setupLogger(logger, flags.Debug)
	if err != nil {
		color.Red("Logger error, exiting: %s\n", err)
		os.Exit(1)
	}
	defer closeLogFiles(logFile, debugLogFile)

	if err := run(flags); err != nil {
		logger.WithError(err).Error("client stopped")
		color.Red("%s\n", err)
		closeLogFiles(logFile, debugLogFile)
		os.Exit(1)
	}
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	color.Green("Connecting to server @ %s\n", flags.Server)

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	client, err := remote.Dial(dialCtx, flags.Server, flags.Secure, logger)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	// Only the latest working set matters to the UI.
	applied := make(chan []share.Entry, 1)
	session := share.Open(flags.Share, client, client, share.Config{
		Logger: logger,
		OnApplied: func(entries []share.Entry) {
			select {
			case <-applied:
			default:
			}
			select {
			case applied <- entries:
			default:
			}
		},
	})
	defer session.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return refreshLoop(ctx, session, client.Changes(), flags.Refresh, logger.WithField("share", flags.Share))
	})

	g.Go(func() error {
		err := tui.Run(ctx, session, applied)
		// Leaving the UI ends the session.
		session.Close()
		if err != nil {
			return err
		}
		return errQuit
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, share.ErrClosed) {
		return err
	}
	return nil
}

// errQuit stops the refresh loop once the user leaves the UI.
var errQuit = errors.New("quit")
