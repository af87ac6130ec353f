package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trackersync/trackersync/internal/startup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation poller and the operator HTTP surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig(cmd)
		logger := getLogger(cmd)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := startup.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.Close(closeCtx); err != nil {
				logger.WithError(err).Warn("error releasing resources on shutdown")
			}
		}()

		if cfg.PollingEnabled {
			if err := app.Driver.Start(ctx); err != nil {
				return err
			}
			app.Checker.SetReady(true)
		} else {
			logger.Info("polling disabled (POLLING_ENABLED=false), serving HTTP only")
			app.Checker.SetReady(true)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           app.Echo,
			ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
			WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
			IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			ReadHeaderTimeout: time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Infof("trackersyncd: listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			logger.Info("trackersyncd: shutdown signal received")
		case err := <-errCh:
			return err
		}

		if cfg.PollingEnabled {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := app.Driver.Stop(stopCtx); err != nil {
				logger.WithError(err).Warn("poller did not stop cleanly")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
