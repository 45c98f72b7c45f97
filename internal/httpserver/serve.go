// Package httpserver runs an http.Server to completion, shutting it down
// gracefully on SIGINT/SIGTERM, grounded on the teacher's
// internal/delivery/server/bootstrap.serveUntilSignal.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orchestrator-core/internal/async"
	"orchestrator-core/internal/logging"
)

// ShutdownTimeout bounds how long Serve waits for in-flight requests to
// finish once a shutdown signal arrives.
const ShutdownTimeout = 10 * time.Second

// Serve runs server until ctx is cancelled or a SIGINT/SIGTERM is received,
// then shuts it down gracefully.
func Serve(ctx context.Context, server *http.Server, log logging.Logger) error {
	log = logging.OrNop(log)

	errCh := make(chan error, 1)
	async.Go(log, "httpserver.listen", func() {
		log.Info("server listening", logging.Fields{"addr": server.Addr})
		errCh <- server.ListenAndServe()
	})

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-sigCtx.Done():
		log.Info("shutting down server", logging.Fields{})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		shutdownErr := server.Shutdown(shutdownCtx)

		serveErr := <-errCh
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
		if shutdownErr != nil {
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		if serveErr != nil {
			return fmt.Errorf("server error: %w", serveErr)
		}
		log.Info("server stopped", logging.Fields{})
		return nil
	}
}
