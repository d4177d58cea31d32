package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/trenton/internal/app"
	"github.com/Aman-CERP/trenton/internal/daemon"
	"github.com/Aman-CERP/trenton/internal/logging"
	"github.com/Aman-CERP/trenton/internal/mcp"
)

type serveOptions struct {
	detach    bool
	mcp       bool
	polling   bool
	skipCheck bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing and search daemon",
		Long: `Run the Trenton daemon: watch registered folders, index media and answer
queries from the CLI over a Unix socket.

By default the daemon runs in the foreground until interrupted.

Examples:
  trenton serve            # Run in foreground
  trenton serve -d         # Start in background
  trenton serve --mcp      # Also serve MCP tools over stdio`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.detach {
				return runServeDetached(cmd, opts)
			}
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.detach, "detach", "d", false, "Start in the background and return once ready")
	cmd.Flags().BoolVar(&opts.mcp, "mcp", false, "Serve MCP tools over stdio alongside the daemon")
	cmd.Flags().BoolVar(&opts.polling, "polling", false, "Poll folders instead of using filesystem notifications")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip host checks before starting")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.FilePath = cfg.Server.LogFile
	if debugMode {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := app.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	if !opts.skipCheck {
		if err := runPreflight(ctx, cfg, e); err != nil {
			_ = e.Close()
			return err
		}
	}

	appOpts := []app.Option{app.WithEmbedder(e)}
	if opts.polling {
		appOpts = append(appOpts, app.WithPolling())
	}
	a, err := app.New(ctx, cfg, appOpts...)
	if err != nil {
		_ = e.Close()
		return err
	}

	dcfg := daemon.FromConfig(cfg)
	d, err := daemon.NewDaemon(dcfg, a)
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}

	if !opts.mcp {
		out := newWriter(cmd)
		out.Status("", fmt.Sprintf("Socket: %s", dcfg.SocketPath))
		if dcfg.MetricsAddr != "" {
			out.Status("", fmt.Sprintf("Metrics: http://%s/metrics", dcfg.MetricsAddr))
		}
		out.Status("", fmt.Sprintf("Logs: %s", logCfg.FilePath))
		out.Status("", "Press Ctrl+C to stop")
		return d.Run(ctx)
	}

	// stdout belongs to the MCP transport from here on.
	srv, err := mcp.NewServer(a)
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	g.Go(func() error {
		return d.Run(runCtx)
	})
	g.Go(func() error {
		defer cancel()
		return srv.Serve(runCtx, "stdio")
	})
	return g.Wait()
}

// runServeDetached re-executes the binary in its own session and waits for
// the socket to accept connections.
func runServeDetached(cmd *cobra.Command, opts serveOptions) error {
	out := newWriter(cmd)
	dcfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}

	client := daemon.NewClient(dcfg)
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if opts.polling {
		args = append(args, "--polling")
	}
	if opts.skipCheck {
		args = append(args, "--skip-check")
	}
	if debugMode {
		args = append(args, "--debug")
	}

	bg := exec.Command(execPath, args...)
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := bg.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and notice early exits.
	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()

	for range 50 {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w", err)
			}
			return fmt.Errorf("daemon process exited unexpectedly with code 0")
		default:
		}

		time.Sleep(100 * time.Millisecond)
		if client.IsRunning() {
			out.Success(fmt.Sprintf("Daemon started (pid: %d)", bg.Process.Pid))
			return nil
		}
	}

	return fmt.Errorf("daemon failed to start within timeout")
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Stop the running daemon with SIGTERM. In-flight files finish within the
shutdown grace period; the daemon is killed if it does not exit in time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd)
		},
	}
}

func runStop(cmd *cobra.Command) error {
	out := newWriter(cmd)
	dcfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}

	pidFile := daemon.NewPIDFile(dcfg.PIDPath)
	if !pidFile.IsRunning() {
		out.Status("", "Daemon is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	deadline := time.Now().Add(dcfg.ShutdownGracePeriod + 2*time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Success(fmt.Sprintf("Daemon stopped (was pid: %d)", pid))
			return nil
		}
	}

	out.Status("", "Daemon not responding, sending SIGKILL...")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	out.Success("Daemon killed")
	return nil
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	out := newWriter(cmd)
	dcfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}

	client := daemon.NewClient(dcfg)
	if !client.IsRunning() {
		if jsonOutput {
			return out.JSON(daemon.StatusResult{Running: false})
		}
		out.Status("", "Daemon is not running")
		out.Status("", "Run 'trenton serve' to start it")
		return nil
	}

	status, err := client.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if jsonOutput {
		return out.JSON(status)
	}

	out.Header("Daemon is running")
	out.KeyValue("PID", status.PID)
	out.KeyValue("Uptime", status.Uptime)
	out.KeyValue("Health", status.Health)
	out.KeyValue("Watcher", status.Watcher)
	out.KeyValue("Socket", dcfg.SocketPath)
	for _, name := range sortedCheckNames(status.Checks) {
		out.KeyValue("  "+name, status.Checks[name])
	}
	return nil
}

func sortedCheckNames(checks map[string]string) []string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
