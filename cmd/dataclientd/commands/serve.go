package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/leeforge/dataclient/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the dataclient component and serve:

  GET /dataclient/health   client reachability
  GET /dataclient/models   model accessor bindings
  GET /metrics             prometheus metrics

Examples:
  # Start with ./config/config.yaml
  dataclientd serve

  # Use PostgreSQL through environment overrides
  DATACLIENT_DATASOURCE_DRIVER=postgres DATACLIENT_DATASOURCE_DSN="host=db user=app dbname=app" dataclientd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(settings.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logCloser.Close()
	defer logger.Sync()

	a, err := newApp(settings, logger)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.runtime.Start(ctx); err != nil {
		a.runtime.Shutdown(context.Background())
		return fmt.Errorf("failed to start: %w", err)
	}

	srv := &http.Server{Addr: settings.Server.Addr, Handler: a.router}
	serverDone := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", settings.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
		close(serverDone)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case serveErr = <-serverDone:
		if serveErr != nil {
			logger.Error("http server failed", zap.Error(serveErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}
	if err := a.runtime.Shutdown(shutdownCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	logger.Info("stopped")
	return serveErr
}
