package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/biomed-sul/leadscout/internal/monitoring"
)

const statsPollInterval = 15 * time.Second

func newMetricsRouter(m *monitoring.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/metrics", m.Handler().ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return r
}

// serveMetrics exposes m on addr and keeps the table gauges fresh until the
// returned stop function is called.
func serveMetrics(ctx context.Context, addr string, m *monitoring.Metrics, stats monitoring.StatsReader) (stop func()) {
	pollCtx, cancel := context.WithCancel(ctx)
	go monitoring.NewPoller(stats, m, statsPollInterval).Run(pollCtx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           newMetricsRouter(m),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zap.L().Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}
}
