package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/trenton/internal/app"
	"github.com/Aman-CERP/trenton/internal/metrics"
)

// Daemon serves an App over the socket and, when configured, the admin
// HTTP endpoints.
type Daemon struct {
	cfg    Config
	app    *app.App
	server *Server
	pid    *PIDFile
}

// NewDaemon creates a daemon for a. The daemon owns a from here on and
// closes it when Run returns.
func NewDaemon(cfg Config, a *app.App) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	if err := cfg.EnsureDir(); err != nil {
		return nil, err
	}
	srv, err := NewServer(cfg, a)
	if err != nil {
		return nil, err
	}
	return &Daemon{
		cfg:    cfg,
		app:    a,
		server: srv,
		pid:    NewPIDFile(cfg.PIDPath),
	}, nil
}

// Run serves until ctx is cancelled or a component fails, then drains the
// app within the shutdown grace period.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.pid.Acquire(); err != nil {
		_ = d.app.Close(context.Background())
		return err
	}
	defer func() { _ = d.pid.Remove() }()

	slog.Info("daemon_starting",
		slog.String("socket", d.cfg.SocketPath),
		slog.String("metrics_addr", d.cfg.MetricsAddr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.app.Run(gctx) })
	g.Go(func() error {
		err := d.server.ListenAndServe(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if d.cfg.MetricsAddr != "" {
		admin := &http.Server{
			Addr:              d.cfg.MetricsAddr,
			Handler:           metrics.NewRouter(d.app.AdminDeps()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownGracePeriod)
	defer cancel()
	if cerr := d.app.Close(closeCtx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	slog.Info("daemon_stopped")
	return err
}
