package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

type app struct {
	di *dependencyInjector
}

func New(ctx context.Context) *app {
	a := &app{di: newDI()}
	a.di.Logger()
	return a
}

func (a *app) Run(ctx context.Context) error {
	cfg := a.di.Config()

	if err := prepareDirs(cfg.WatchDir, cfg.OutputDir, cfg.FailedDir, cfg.PassthroughDir); err != nil {
		return err
	}

	mon := a.di.Monitor()
	if cfg.HealthSocket != "" {
		if err := mon.Start(); err != nil {
			slog.Warn("health endpoint unavailable", slog.String("error", err.Error()))
		}
	}

	a.di.Archiver(ctx)

	q := a.di.Queue()
	deb := a.di.Debouncer(ctx)
	w := a.di.Watcher(ctx)

	if err := w.Start(); err != nil {
		mon.Stop()
		return fmt.Errorf("start watcher: %w", err)
	}

	coord := NewCoordinator(w, deb, q, mon)

	statsDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(statsDone)
				return
			case <-ticker.C:
				mon.UpdateStats(q.Stats())
			}
		}
	}()

	slog.Info("docsort running",
		slog.String("watch_dir", cfg.WatchDir),
		slog.String("output_dir", cfg.OutputDir),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Bool("dry_run", cfg.DryRun),
		slog.Bool("split", cfg.Split.Enabled),
	)

	<-ctx.Done()
	<-statsDone

	slog.Info("docsort shutting down...")
	// The signal context is already done, so draining gets its own one.
	if err := coord.Shutdown(context.Background()); err != nil {
		slog.Error("shutdown", slog.String("error", err.Error()))
	}

	if a.di.repl != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.di.repl.Stop(stopCtx); err != nil {
			slog.Warn("stop archive replicator", slog.String("error", err.Error()))
		}
	}

	return nil
}

// prepareDirs requires the watched directory to exist already so a typo in
// the config does not silently watch a fresh empty directory. Destination
// directories are created on demand.
func prepareDirs(watchDir string, destDirs ...string) error {
	info, err := os.Stat(watchDir)
	if err != nil {
		return fmt.Errorf("watch dir %q: %w", watchDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch dir %q is not a directory", watchDir)
	}

	g := new(errgroup.Group)
	for _, dir := range destDirs {
		if dir == "" {
			continue
		}
		dir := dir
		g.Go(func() error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %q: %w", dir, err)
			}
			return nil
		})
	}

	return g.Wait()
}
