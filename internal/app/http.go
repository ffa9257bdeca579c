package app

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/toyoshi/solo-block-report-bot/internal/scheduler"
)

// Pinger reports store availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource exposes the latest scheduler ticks.
type StatsSource interface {
	Stats() scheduler.Stats
}

// NewHTTPHandler serves /healthz (liveness), /readyz (store ping) and
// /stats (last tick summaries).
func NewHTTPHandler(db Pinger, stats StatsSource, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.Warn("readiness check failed", zap.Error(err))
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		body, err := sonic.Marshal(stats.Stats())
		if err != nil {
			log.Error("encode stats failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	return r
}
