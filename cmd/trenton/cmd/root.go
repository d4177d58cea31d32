// Package cmd provides the CLI commands for Trenton.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/logging"
	"github.com/Aman-CERP/trenton/internal/profiling"
	"github.com/Aman-CERP/trenton/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()

	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the trenton CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trenton",
		Short: "Similarity search over local audio and video",
		Long: `Trenton watches media folders, embeds every audio and video file it finds
and answers "what sounds or looks like this" queries against the index.

Start the daemon with 'trenton serve', register folders with
'trenton folder add', then query with 'trenton search --media <file>'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("trenton version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (default ~/.config/trenton/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.trenton/logs/")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Goroutine, "profile-goroutine", "", "Write goroutine stacks to file on exit")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newFolderCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newSimilarCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts the requested profiles and routes slog
// to the rotating debug log when --debug is set. serve configures its own
// logging from the loaded config.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		session, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profileSession = session
	}

	if !debugMode {
		return nil
	}
	cfg := logging.DefaultConfig()
	cfg.Level = "debug"
	cfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled",
		slog.String("log_file", cfg.FilePath),
		slog.String("version", version.Short()))
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	err := NewRootCmd().ExecuteContext(context.Background())
	if err == nil {
		return nil
	}
	if _, ok := terrors.As(err); ok {
		_, _ = fmt.Fprint(os.Stderr, terrors.FormatForCLI(err))
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
