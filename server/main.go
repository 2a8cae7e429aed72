package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burntcarrot/sharepad/catalog"
	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
)

// Flags represents the command-line flags that are passed to sharepad's server.
type Flags struct {
	Addr string
	Seed string
}

// parseFlags parses command-line flags.
func parseFlags() Flags {
	addr := flag.String("addr", ":8080", "Server's network address")
	seed := flag.String("seed", "", "YAML file with the shares to serve")
	flag.Parse()

	return Flags{Addr: *addr, Seed: *seed}
}

// loadCatalog reads the seed file, or returns an empty catalog when none is given.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.New(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := catalog.Load(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return c, nil
}

func main() {
	flags := parseFlags()

	c, err := loadCatalog(flags.Seed)
	if err != nil {
		log.Fatal("Error loading shares, exiting. ", err)
	}

	h := newHub(c)
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleConn)
	srv := &http.Server{Addr: flags.Addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Handle incoming requests.
	g.Go(func() error {
		return h.run(ctx)
	})

	// Start the server.
	g.Go(func() error {
		color.Cyan("Serving %d share(s) on %s\n", len(c.Names()), flags.Addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("Error running server, exiting. ", err)
	}
}
