package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avlabs/authgate/internal/config"
	"github.com/avlabs/authgate/internal/observability"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 30 * time.Second

// run starts the application and blocks until a termination signal,
// then shuts everything down in reverse start order.
func run(app *application, configPath string, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.prober.Start(ctx)

	if err := app.gateway.Start(ctx); err != nil {
		logger.Fatal("failed to start gateway", observability.Error(err))
	}

	watcher := startConfigWatcher(ctx, app, configPath, logger)

	waitForSignal(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("config watcher stop failed", observability.Error(err))
		}
	}

	if err := app.gateway.Stop(shutdownCtx); err != nil {
		logger.Error("gateway shutdown failed", observability.Error(err))
	}

	app.prober.Stop()
	app.limiter.Stop()

	if err := app.store.Close(); err != nil {
		logger.Warn("session store close failed", observability.Error(err))
	}

	logger.Info("shutdown complete")
}

// startConfigWatcher enables hot reload of credentials and the public
// path whitelist when a config file is in use. Listener address and
// upstream target changes still require a restart.
func startConfigWatcher(ctx context.Context, app *application, configPath string, logger observability.Logger) *config.Watcher {
	if configPath == "" {
		return nil
	}

	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
		app.verifier.SetCredentials(cfg.Auth.Username, cfg.Auth.Password)
		app.gate.SetUsername(cfg.Auth.Username)
		app.gate.SetPublicPaths(cfg.PublicPaths)
		logger.Info("configuration reloaded",
			observability.String("path", configPath),
		)
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable, hot reload disabled",
			observability.Error(err),
		)
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start, hot reload disabled",
			observability.Error(err),
		)
		return nil
	}

	return watcher
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal(logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal",
		observability.String("signal", sig.String()),
	)
}
