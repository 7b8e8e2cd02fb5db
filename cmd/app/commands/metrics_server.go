package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsServer serves the Prometheus scrape handler at /metrics in the
// background while a long-running command executes. The returned function
// shuts the server down gracefully.
func StartMetricsServer(logger *slog.Logger, handler http.Handler, port int) func(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	return func(ctx context.Context) {
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down metrics server", slog.Any("error", err))
		}
	}
}
