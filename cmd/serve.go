package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/taskdeck/internal/watch"
)

var (
	servePort    int
	serveNoWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve spawn instructions to an executor over WebSocket",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not watch tasks files for changes")
}

func runServe(_ *cobra.Command, _ []string) error {
	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := openContainer(ctx)
	if err != nil {
		return err
	}
	cfg := c.Config()
	if servePort != 0 {
		cfg.Serve.Port = servePort
	}

	srv, err := c.Server()
	if err != nil {
		return err
	}
	rescan, err := c.Rescanner()
	if err != nil {
		return err
	}
	watching := cfg.Watch.Enabled && !serveNoWatch
	var w *watch.Watcher
	if watching {
		if w, err = c.Watcher(); err != nil {
			return err
		}
	}

	fmt.Printf("%s Serving %s on %s...\n", logo, c.Workspace().Root(), cfg.Serve.Addr())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.Workspace().Run(gctx) })
	g.Go(func() error { return c.Scheduler().Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	if watching {
		g.Go(func() error { return w.Run(gctx) })
		fmt.Printf("✓ Watching %d tasks files\n", len(c.Workspace().WatchedFiles()))
	} else {
		fmt.Println("Warning: file watching disabled")
	}
	if rescan != nil {
		g.Go(func() error { return rescan.Start(gctx) })
		fmt.Printf("✓ Rescan schedule: %s\n", cfg.Watch.RescanSchedule)
	}

	fmt.Printf("%s Running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
