package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports overall health. healthy=false turns /healthz into a 503.
type HealthFunc func(ctx context.Context) (report any, healthy bool)

// StatsFunc returns a JSON-encodable stats snapshot.
type StatsFunc func(ctx context.Context) (any, error)

// AdminDeps are the callbacks behind the admin endpoints. Nil callbacks
// leave the matching route answering 404.
type AdminDeps struct {
	Health HealthFunc
	Stats  StatsFunc
}

// NewRouter builds the admin HTTP router.
func NewRouter(deps AdminDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	if deps.Health != nil {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			report, healthy := deps.Health(r.Context())
			status := http.StatusOK
			if !healthy {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, report)
		})
	}

	if deps.Stats != nil {
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			stats, err := deps.Stats(r.Context())
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, stats)
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("admin response write failed", slog.String("error", err.Error()))
	}
}
