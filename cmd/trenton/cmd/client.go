package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/trenton/internal/config"
	"github.com/Aman-CERP/trenton/internal/daemon"
	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/output"
)

// ErrDaemonNotRunning is returned by commands that need a running daemon.
var ErrDaemonNotRunning = terrors.New(terrors.ErrCodeSchedulerUnavailable, "daemon is not running", nil).
	WithSuggestion("Start it with: trenton serve")

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, terrors.New(terrors.ErrCodeConfigInvalid, "failed to load configuration", err)
	}
	return cfg, nil
}

func loadDaemonConfig() (daemon.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return daemon.Config{}, err
	}
	return daemon.FromConfig(cfg), nil
}

// connect returns a client for the configured daemon, failing fast when
// nothing listens on its socket.
func connect() (*daemon.Client, error) {
	dcfg, err := loadDaemonConfig()
	if err != nil {
		return nil, err
	}
	client := daemon.NewClient(dcfg)
	if !client.IsRunning() {
		return nil, ErrDaemonNotRunning
	}
	return client, nil
}

func newWriter(cmd *cobra.Command) *output.Writer {
	return output.New(cmd.OutOrStdout())
}

func addJSONFlag(cmd *cobra.Command, v *bool) {
	cmd.Flags().BoolVar(v, "json", false, "Output as JSON")
}
