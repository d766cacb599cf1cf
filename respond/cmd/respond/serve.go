package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/respond/internal/handlers"
	respondnats "github.com/secureops/workbench/respond/internal/nats"
	"github.com/secureops/workbench/respond/internal/scheduler"
	"github.com/secureops/workbench/respond/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the respond HTTP API. When configured, detections also run on a
schedule and on request over NATS.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	h := handlers.NewHandler(a.svc, logger).WithMaxUploadBytes(cfg.Server.MaxUploadBytes)
	if a.broker != nil {
		h.WithBroker(a.broker)

		natsHandler := respondnats.NewHandler(a.broker, a.svc, logger)
		if err := natsHandler.Start(ctx); err != nil {
			return fmt.Errorf("failed to subscribe to detection requests: %w", err)
		}
		defer func() {
			if err := natsHandler.Stop(); err != nil {
				logger.Warn("failed to unsubscribe", logging.Error(err))
			}
		}()
	}

	if cfg.Detection.Interval > 0 {
		sched := scheduler.NewScheduler(a.svc, cfg.Detection.Interval, cfg.Detection.WindowLimit, logger)
		go sched.Start(ctx)
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.NewRouter(h, server.Options{
			APIKey:      cfg.Auth.APIKey,
			CORSOrigins: cfg.Server.CORSOrigins,
			Logger:      logger,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	if cfg.Auth.APIKey == "" {
		logger.Warn("no API key configured; the API is unauthenticated")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("respond service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
