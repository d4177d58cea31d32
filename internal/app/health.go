package app

import (
	"context"
	"os"
	"time"

	"github.com/Aman-CERP/trenton/internal/metrics"
	"github.com/Aman-CERP/trenton/internal/store"
)

// Health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthReport is the outcome of Health.
type HealthReport struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	PID       int               `json:"pid"`
	Uptime    string            `json:"uptime"`
	Watcher   string            `json:"watcher"`
	Overflows uint64            `json:"overflows"`
}

// Health checks the store, the embedder and the watcher. An unreachable
// store is unhealthy; a missing embedder or a stopped watcher is degraded
// since search keeps working.
func (a *App) Health(ctx context.Context) HealthReport {
	r := HealthReport{
		Status:    StatusHealthy,
		Checks:    make(map[string]string, 3),
		PID:       os.Getpid(),
		Uptime:    time.Since(a.started).Round(time.Second).String(),
		Watcher:   a.watcher.WatcherType(),
		Overflows: a.watcher.Overflows(),
	}

	if err := a.store.Ping(ctx); err != nil {
		r.Checks["store"] = err.Error()
		r.Status = StatusUnhealthy
	} else {
		r.Checks["store"] = "ok"
	}

	if a.embedder.Available(ctx) {
		r.Checks["embedder"] = "ok"
	} else {
		r.Checks["embedder"] = "unavailable"
		r.degrade()
	}

	switch {
	case !a.watcher.IsHealthy():
		r.Checks["watcher"] = "stopped"
		r.degrade()
	case !a.Running():
		r.Checks["watcher"] = "idle"
		r.degrade()
	default:
		r.Checks["watcher"] = "ok"
	}
	return r
}

func (r *HealthReport) degrade() {
	if r.Status == StatusHealthy {
		r.Status = StatusDegraded
	}
}

// StatsReport summarizes the store and the scheduler.
type StatsReport struct {
	*store.Stats
	ActiveJobs   int      `json:"active_jobs"`
	Workers      int      `json:"workers"`
	WorkersBusy  int      `json:"workers_busy"`
	FullRunning  bool     `json:"full_scan_running"`
	WatchedRoots []string `json:"watched_roots"`
	ModelVersion string   `json:"model_version"`
}

// Stats returns store counts plus scheduler state.
func (a *App) Stats(ctx context.Context) (*StatsReport, error) {
	st, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsReport{
		Stats:        st,
		ActiveJobs:   a.registry.Active(),
		Workers:      a.sched.Pool().Size(),
		WorkersBusy:  a.sched.Pool().Busy(),
		FullRunning:  a.sched.FullRunning(),
		WatchedRoots: a.watcher.Roots(),
		ModelVersion: a.search.Config().ModelVersion,
	}, nil
}

// AdminDeps wires Health and Stats into the admin HTTP router.
func (a *App) AdminDeps() metrics.AdminDeps {
	return metrics.AdminDeps{
		Health: func(ctx context.Context) (any, bool) {
			r := a.Health(ctx)
			return r, r.Status != StatusUnhealthy
		},
		Stats: func(ctx context.Context) (any, error) {
			return a.Stats(ctx)
		},
	}
}
