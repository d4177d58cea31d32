// Package daemon runs a Trenton instance in the background and exposes its
// operations to the CLI as JSON-RPC 2.0 over a Unix socket, one request per
// connection.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/trenton/internal/config"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.trenton/trenton.sock
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	// Default: ~/.trenton/trenton.pid
	PIDPath string

	// MetricsAddr serves /metrics, /healthz and /stats. Empty disables it.
	MetricsAddr string

	// Timeout is the maximum duration of one client request.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod bounds the wait for in-flight units on shutdown.
	// Default: 10s
	ShutdownGracePeriod time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	dataDir := config.DefaultDataDir()
	return Config{
		SocketPath:          filepath.Join(dataDir, "trenton.sock"),
		PIDPath:             filepath.Join(dataDir, "trenton.pid"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// FromConfig derives the daemon settings from the application config.
func FromConfig(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if cfg.Server.SocketPath != "" {
		c.SocketPath = cfg.Server.SocketPath
		c.PIDPath = filepath.Join(filepath.Dir(cfg.Server.SocketPath), "trenton.pid")
	}
	c.MetricsAddr = cfg.Server.MetricsAddr
	return c
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
