// Package server provides the process lifecycle shared by all four
// HTTP services: listen, serve, and shut down cleanly on SIGINT/SIGTERM.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const shutdownGrace = 10 * time.Second

// RunUntilSignal starts srv and blocks until either it fails or the
// process receives SIGINT/SIGTERM, in which case it shuts down
// gracefully within shutdownGrace.
func RunUntilSignal(srv *http.Server, logger *zap.Logger, service string) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("service", service), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down", zap.String("service", service))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
