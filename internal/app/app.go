// Package app owns the process-scoped state of a Trenton instance: the
// store, embedder, job registry, scheduler, search engine, watcher and
// debouncer. It is built once at startup by New and torn down by Close, and
// exposes the folder, indexing, job and search operations that the daemon,
// MCP server and CLI call.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/trenton/internal/config"
	"github.com/Aman-CERP/trenton/internal/embed"
	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/index"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/metrics"
	"github.com/Aman-CERP/trenton/internal/search"
	"github.com/Aman-CERP/trenton/internal/store"
	"github.com/Aman-CERP/trenton/internal/watcher"
)

// App is a running Trenton instance.
type App struct {
	cfg      *config.Config
	lock     *DirLock
	store    *store.Store
	embedder embed.Embedder
	registry *jobs.Registry
	sched    *index.Scheduler
	search   *search.Engine
	watcher  *watcher.HybridWatcher
	debounce *watcher.Debouncer

	startupScan bool
	started     time.Time
	running     atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

// Option customizes New.
type Option func(*options)

type options struct {
	embedder     embed.Embedder
	forcePolling bool
	startupScan  bool
}

// WithEmbedder replaces the configured embedder.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithPolling forces the polling watcher.
func WithPolling() Option {
	return func(o *options) { o.forcePolling = true }
}

// WithoutStartupScan skips the full reconciliation Run submits on start.
func WithoutStartupScan() Option {
	return func(o *options) { o.startupScan = false }
}

// New validates cfg, locks the data directory and builds every component.
// Enabled folder roots are watched again before New returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{startupScan: true}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, startupScan: o.startupScan, started: time.Now()}
	ok := false
	defer func() {
		if ok {
			return
		}
		if a.debounce != nil {
			a.debounce.Stop()
		}
		if a.watcher != nil {
			_ = a.watcher.Stop()
		}
		_ = a.release()
	}()

	a.lock = NewDirLock(filepath.Dir(cfg.Store.Path))
	if err := a.lock.TryLock(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path, store.Options{CacheMB: cfg.Store.CacheMB})
	if err != nil {
		return nil, err
	}
	a.store = st

	a.embedder = o.embedder
	if a.embedder == nil {
		if a.embedder, err = NewEmbedder(cfg); err != nil {
			return nil, err
		}
	}

	pipeline := index.NewPipeline(index.PipelineConfig{
		Embedder:     a.embedder,
		Store:        st,
		ModelVersion: cfg.Embeddings.ModelVersion,
		Retry: terrors.RetryConfig{
			MaxRetries:   cfg.Indexing.MaxRetries,
			InitialDelay: cfg.Indexing.RetryInitialDelay,
			MaxDelay:     cfg.Indexing.RetryMaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		},
	})

	a.registry = jobs.NewRegistry(cfg.Indexing.JobRetention)
	a.sched, err = index.New(index.Config{
		Store:     st,
		Registry:  a.registry,
		Pipeline:  pipeline,
		Workers:   cfg.Indexing.ConcurrentJobs,
		BatchSize: cfg.Indexing.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	a.search, err = search.NewEngine(st, search.EngineConfig{
		DefaultTopK:      cfg.Search.DefaultTopK,
		MaxTopK:          cfg.Search.MaxTopK,
		DefaultThreshold: cfg.Search.DefaultThreshold,
		ModelVersion:     pipeline.ModelVersion(),
	}, search.WithEmbedder(a.embedder))
	if err != nil {
		return nil, err
	}

	a.watcher, err = watcher.NewHybridWatcher(watcher.Options{
		PollInterval:    cfg.Watcher.PollInterval,
		EventBufferSize: cfg.Watcher.EventBuffer,
		ForcePolling:    o.forcePolling,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	a.debounce = watcher.NewDebouncer(cfg.Watcher.Cooldown, cfg.Watcher.MaxCoalesce)

	if err := a.rewatch(ctx); err != nil {
		return nil, err
	}

	ok = true
	slog.Info("app_ready",
		slog.String("store", cfg.Store.Path),
		slog.String("model_version", pipeline.ModelVersion()),
		slog.Int("workers", a.sched.Pool().Size()),
		slog.String("watcher", a.watcher.WatcherType()))
	return a, nil
}

// rewatch adds every watch-enabled folder root to the watcher. A root that
// can no longer be watched is logged and left for the next full scan to
// soft-delete its files.
func (a *App) rewatch(ctx context.Context) error {
	folders, err := a.store.ListFolders(ctx)
	if err != nil {
		return err
	}
	for _, f := range folders {
		if !f.WatchEnabled {
			continue
		}
		if err := a.watcher.AddRoot(f.Path); err != nil {
			slog.Warn("folder not watched",
				slog.Int64("folder_id", f.ID),
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
		}
	}
	metrics.WatchedRoots.Set(float64(len(a.watcher.Roots())))
	return nil
}

// Run pumps watcher events into the debouncer and debounced intents into the
// scheduler until ctx is done. Unless disabled, it first submits a full
// reconciliation so changes made while the process was down are picked up.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.New("app is already running")
	}
	defer a.running.Store(false)

	if a.startupScan {
		job, err := a.sched.TriggerFull(ctx, jobs.SourceAPI)
		switch {
		case err == nil:
			slog.Info("startup_scan_submitted", slog.String("job_id", job.ID))
		case errors.Is(err, terrors.ErrFullScanRunning):
		default:
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.watcher.Run(gctx) })
	g.Go(func() error { return a.pumpEvents(gctx) })
	g.Go(func() error { return a.pumpIntents(gctx) })
	return g.Wait()
}

// Running reports whether Run is active.
func (a *App) Running() bool {
	return a.running.Load()
}

func (a *App) pumpEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.watcher.Events():
			if !ok {
				return nil
			}
			metrics.WatchEvents.WithLabelValues(ev.Operation.String()).Inc()
			if ev.Operation == watcher.OpOverflow {
				a.sched.OnOverflow(ctx, ev.Root)
				continue
			}
			a.debounce.Add(ev)
		case err, ok := <-a.watcher.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (a *App) pumpIntents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-a.debounce.Output():
			a.handleIntent(ctx, in)
		}
	}
}

func (a *App) handleIntent(ctx context.Context, in watcher.Intent) {
	if err := a.sched.HandleIntent(ctx, in); err != nil {
		slog.Warn("intent not applied",
			append([]any{slog.String("path", in.Path), slog.String("kind", in.Kind.String())},
				terrors.LogAttrs(err)...)...)
	}
}

// Close stops the watcher, flushes pending intents into the scheduler, waits
// for in-flight units to drain (bounded by ctx), then closes the store and
// releases the data directory lock. Units that were never dispatched are
// dropped. Close is idempotent.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if err := a.watcher.Stop(); err != nil {
			slog.Warn("watcher stop failed", slog.String("error", err.Error()))
		}
		a.drainIntents(ctx)
		a.debounce.Stop()

		if err := a.sched.Close(ctx); err != nil {
			slog.Warn("scheduler did not drain", slog.String("error", err.Error()))
		}
		a.closeErr = a.release()
		slog.Info("app_closed", slog.Duration("uptime", time.Since(a.started)))
	})
	return a.closeErr
}

// drainIntents closes every open debounce window and applies the resulting
// intents.
func (a *App) drainIntents(ctx context.Context) {
	flushed := make(chan struct{})
	go func() {
		a.debounce.Flush()
		close(flushed)
	}()
	for {
		select {
		case in := <-a.debounce.Output():
			a.handleIntent(ctx, in)
		case <-flushed:
			for {
				select {
				case in := <-a.debounce.Output():
					a.handleIntent(ctx, in)
				default:
					return
				}
			}
		}
	}
}

// release closes whatever New managed to open, in reverse order.
func (a *App) release() error {
	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.lock != nil {
		errs = append(errs, a.lock.Unlock())
	}
	return errors.Join(errs...)
}

// NewEmbedder builds the embedder selected by cfg.Embeddings.
func NewEmbedder(cfg *config.Config) (embed.Embedder, error) {
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeConfigInvalid, err.Error(), err)
	}
	return embed.New(embed.Options{
		Provider:     provider,
		ModelVersion: cfg.Embeddings.ModelVersion,
		Dimensions:   cfg.Embeddings.Dimensions,
		Endpoint:     cfg.Embeddings.Endpoint,
		Timeout:      cfg.Embeddings.Timeout,
		CacheSize:    cfg.Embeddings.CacheSize,
	})
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Store returns the underlying store.
func (a *App) Store() *store.Store {
	return a.store
}

// Scheduler returns the index scheduler.
func (a *App) Scheduler() *index.Scheduler {
	return a.sched
}
