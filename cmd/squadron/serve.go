package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgeworks/squadron/internal/config"
	"github.com/forgeworks/squadron/internal/logging"
	"github.com/forgeworks/squadron/internal/orchestrator"
	"github.com/forgeworks/squadron/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST control surface",
	Long: `Start the squadron daemon: loads the squad and workflow catalogs,
wires the orchestrator, and serves the HTTP control surface until
interrupted.

Catalogs are immutable while the daemon runs; edits to the catalog
files on disk are detected and logged, but take effect only after a
restart.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, "json")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Logging.DebugLog != "" {
		dl, err := orchestrator.NewDebugLogger(cfg.Logging.DebugLog)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer dl.Close()
		orchestrator.SetDebugLogger(dl)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	orch, cleanup, err := buildOrchestrator(cfg, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.NewServer(orch, reg, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	watcher, err := watchCatalogs(cfg, logger)
	if err != nil {
		logger.Warn("catalog watch unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("squadron daemon started",
		zap.Int("squads", len(reg.Squads())),
		zap.Int("workflows", len(reg.Workflows())),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := orch.Shutdown(ctx); err != nil {
		logger.Warn("orchestrator shutdown", zap.Error(err))
	}
	return nil
}

// watchCatalogs logs when a catalog file changes on disk. The running
// registry is never reloaded; a restart is required for changes to
// apply.
func watchCatalogs(cfg *config.Config, logger *zap.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	squadsPath, workflowsPath := catalogPaths(cfg)
	for _, path := range []string{squadsPath, workflowsPath} {
		if err := watcher.Add(path); err != nil {
			logger.Warn("cannot watch catalog file", zap.String("path", path), zap.Error(err))
		}
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					logger.Warn("catalog file changed on disk; restart squadron to apply",
						zap.String("path", ev.Name),
						zap.String("op", ev.Op.String()),
					)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("catalog watch error", zap.Error(err))
			}
		}
	}()

	return watcher, nil
}
