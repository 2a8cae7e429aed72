package main

import (
	"context"
	"errors"
	"time"

	"github.com/burntcarrot/sharepad/remote"
	"github.com/burntcarrot/sharepad/share"
	"github.com/sirupsen/logrus"
)

// refresher is the part of an edit session the refresh loop drives.
type refresher interface {
	ContainerID() string
	Follow(name string)
	Refresh(ctx context.Context) (bool, error)
}

// refreshLoop refreshes s once, then every interval and whenever the server reports a
// change to the share. A change that renamed the share moves s to the new name.
// It stops when ctx is done, the session is closed or the connection ends.
func refreshLoop(ctx context.Context, s refresher, changes <-chan remote.Change, interval time.Duration, logger logrus.FieldLogger) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	refresh := func(reason string) error {
		applied, err := s.Refresh(ctx)
		switch {
		case errors.Is(err, share.ErrClosed), errors.Is(err, remote.ErrConnClosed):
			return err
		case ctx.Err() != nil:
			return nil
		case err != nil:
			// A failed fetch leaves the working set as it was; the next tick retries.
			logger.WithError(err).WithField("reason", reason).Warn("refresh failed")
		default:
			logger.WithFields(logrus.Fields{"reason": reason, "applied": applied}).Debug("refreshed")
		}
		return nil
	}

	if err := refresh("start"); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-tick:
			if err := refresh("tick"); err != nil {
				return err
			}

		case change, ok := <-changes:
			if !ok {
				return remote.ErrConnClosed
			}
			if change.Share != s.ContainerID() {
				continue
			}
			if change.RenamedTo != "" {
				s.Follow(change.RenamedTo)
			}
			if err := refresh("changed"); err != nil {
				return err
			}
		}
	}
}
