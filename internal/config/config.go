// Package config loads Trenton's layered YAML configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Trenton configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// IndexingConfig configures the scheduler and its worker pool.
type IndexingConfig struct {
	// ConcurrentJobs is the global cap on embedding computations in flight.
	ConcurrentJobs int `yaml:"concurrent_jobs" json:"concurrent_jobs"`

	// BatchSize is how many classified paths a job dispatches before
	// publishing progress and re-checking cancellation.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" json:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay" json:"retry_max_delay"`

	// JobRetention is the number of finished jobs kept for status queries.
	JobRetention int `yaml:"job_retention" json:"job_retention"`
}

// WatcherConfig configures filesystem watching and debouncing.
type WatcherConfig struct {
	Cooldown     time.Duration `yaml:"cooldown" json:"cooldown"`
	MaxCoalesce  time.Duration `yaml:"max_coalesce" json:"max_coalesce"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	EventBuffer  int           `yaml:"event_buffer" json:"event_buffer"`
}

// SearchConfig configures top-k and threshold defaults.
type SearchConfig struct {
	DefaultTopK      int     `yaml:"default_top_k" json:"default_top_k"`
	MaxTopK          int     `yaml:"max_top_k" json:"max_top_k"`
	DefaultThreshold float64 `yaml:"default_threshold" json:"default_threshold"`
}

// EmbeddingsConfig configures the embedding backend.
type EmbeddingsConfig struct {
	// Provider is "hash" (deterministic, offline) or "http" (remote service).
	Provider     string        `yaml:"provider" json:"provider"`
	ModelVersion string        `yaml:"model_version" json:"model_version"`
	Dimensions   int           `yaml:"dimensions" json:"dimensions"`
	Endpoint     string        `yaml:"endpoint" json:"endpoint"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize    int           `yaml:"cache_size" json:"cache_size"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path    string `yaml:"path" json:"path"`
	CacheMB int    `yaml:"cache_mb" json:"cache_mb"`
}

// ServerConfig configures the daemon and admin endpoints.
type ServerConfig struct {
	SocketPath  string `yaml:"socket_path" json:"socket_path"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
	LogFile     string `yaml:"log_file" json:"log_file"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Version: 1,
		Indexing: IndexingConfig{
			ConcurrentJobs:    5,
			BatchSize:         10,
			MaxRetries:        3,
			RetryInitialDelay: 500 * time.Millisecond,
			RetryMaxDelay:     8 * time.Second,
			JobRetention:      100,
		},
		Watcher: WatcherConfig{
			Cooldown:     2 * time.Second,
			MaxCoalesce:  10 * time.Second,
			PollInterval: 5 * time.Second,
			EventBuffer:  1024,
		},
		Search: SearchConfig{
			DefaultTopK:      10,
			MaxTopK:          100,
			DefaultThreshold: 0.0,
		},
		Embeddings: EmbeddingsConfig{
			Provider:     "hash",
			ModelVersion: "hash-v1",
			Dimensions:   512,
			Endpoint:     "http://localhost:8080",
			Timeout:      60 * time.Second,
			CacheSize:    1000,
		},
		Store: StoreConfig{
			Path:    filepath.Join(dataDir, "trenton.db"),
			CacheMB: 64,
		},
		Server: ServerConfig{
			SocketPath:  filepath.Join(dataDir, "trenton.sock"),
			MetricsAddr: "127.0.0.1:9464",
			LogLevel:    "info",
			LogFile:     filepath.Join(dataDir, "logs", "trenton.log"),
		},
	}
}

// DefaultDataDir returns ~/.trenton, or a temp directory fallback.
func DefaultDataDir() string {
	if v := os.Getenv("TRENTON_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".trenton")
	}
	return filepath.Join(home, ".trenton")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/trenton/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/trenton/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "trenton", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "trenton", "config.yaml")
	}
	return filepath.Join(home, ".config", "trenton", "config.yaml")
}

// Load builds the effective configuration.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/trenton/config.yaml)
//  3. Explicit config file (path, if non-empty; must exist)
//  4. Environment variables (TRENTON_*)
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Indexing
	mergeInt(&c.Indexing.ConcurrentJobs, other.Indexing.ConcurrentJobs)
	mergeInt(&c.Indexing.BatchSize, other.Indexing.BatchSize)
	mergeInt(&c.Indexing.MaxRetries, other.Indexing.MaxRetries)
	mergeDuration(&c.Indexing.RetryInitialDelay, other.Indexing.RetryInitialDelay)
	mergeDuration(&c.Indexing.RetryMaxDelay, other.Indexing.RetryMaxDelay)
	mergeInt(&c.Indexing.JobRetention, other.Indexing.JobRetention)

	// Watcher
	mergeDuration(&c.Watcher.Cooldown, other.Watcher.Cooldown)
	mergeDuration(&c.Watcher.MaxCoalesce, other.Watcher.MaxCoalesce)
	mergeDuration(&c.Watcher.PollInterval, other.Watcher.PollInterval)
	mergeInt(&c.Watcher.EventBuffer, other.Watcher.EventBuffer)

	// Search
	mergeInt(&c.Search.DefaultTopK, other.Search.DefaultTopK)
	mergeInt(&c.Search.MaxTopK, other.Search.MaxTopK)
	if other.Search.DefaultThreshold != 0 {
		c.Search.DefaultThreshold = other.Search.DefaultThreshold
	}

	// Embeddings
	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.ModelVersion, other.Embeddings.ModelVersion)
	mergeInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	mergeString(&c.Embeddings.Endpoint, other.Embeddings.Endpoint)
	mergeDuration(&c.Embeddings.Timeout, other.Embeddings.Timeout)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)

	// Store
	mergeString(&c.Store.Path, other.Store.Path)
	mergeInt(&c.Store.CacheMB, other.Store.CacheMB)

	// Server
	mergeString(&c.Server.SocketPath, other.Server.SocketPath)
	mergeString(&c.Server.MetricsAddr, other.Server.MetricsAddr)
	mergeString(&c.Server.LogLevel, other.Server.LogLevel)
	mergeString(&c.Server.LogFile, other.Server.LogFile)
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies TRENTON_* environment variable overrides.
// Malformed values are ignored.
func (c *Config) applyEnvOverrides() {
	if v, ok := envInt("TRENTON_CONCURRENT_JOBS"); ok {
		c.Indexing.ConcurrentJobs = v
	}
	if v, ok := envInt("TRENTON_BATCH_SIZE"); ok {
		c.Indexing.BatchSize = v
	}
	if v := os.Getenv("TRENTON_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Watcher.Cooldown = d
		}
	}
	if v, ok := envInt("TRENTON_DEFAULT_TOP_K"); ok {
		c.Search.DefaultTopK = v
	}
	if v, ok := envInt("TRENTON_MAX_TOP_K"); ok {
		c.Search.MaxTopK = v
	}
	if v := os.Getenv("TRENTON_DEFAULT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Search.DefaultThreshold = f
		}
	}
	if v := os.Getenv("TRENTON_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("TRENTON_EMBEDDER_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("TRENTON_MODEL_VERSION"); v != "" {
		c.Embeddings.ModelVersion = v
	}
	if v := os.Getenv("TRENTON_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("TRENTON_SOCKET"); v != "" {
		c.Server.SocketPath = v
	}
	if v, ok := os.LookupEnv("TRENTON_METRICS_ADDR"); ok {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv("TRENTON_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Indexing.ConcurrentJobs <= 0 {
		return fmt.Errorf("indexing.concurrent_jobs must be positive, got %d", c.Indexing.ConcurrentJobs)
	}
	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("indexing.batch_size must be positive, got %d", c.Indexing.BatchSize)
	}
	if c.Indexing.MaxRetries < 0 {
		return fmt.Errorf("indexing.max_retries must be non-negative, got %d", c.Indexing.MaxRetries)
	}
	if c.Indexing.JobRetention <= 0 {
		return fmt.Errorf("indexing.job_retention must be positive, got %d", c.Indexing.JobRetention)
	}
	if c.Watcher.Cooldown <= 0 {
		return fmt.Errorf("watcher.cooldown must be positive, got %s", c.Watcher.Cooldown)
	}
	if c.Watcher.MaxCoalesce < c.Watcher.Cooldown {
		return fmt.Errorf("watcher.max_coalesce (%s) must be at least watcher.cooldown (%s)",
			c.Watcher.MaxCoalesce, c.Watcher.Cooldown)
	}
	if c.Search.MaxTopK <= 0 {
		return fmt.Errorf("search.max_top_k must be positive, got %d", c.Search.MaxTopK)
	}
	if c.Search.DefaultTopK <= 0 || c.Search.DefaultTopK > c.Search.MaxTopK {
		return fmt.Errorf("search.default_top_k must be between 1 and %d, got %d", c.Search.MaxTopK, c.Search.DefaultTopK)
	}
	if c.Search.DefaultThreshold < 0 {
		return fmt.Errorf("search.default_threshold must be non-negative, got %f", c.Search.DefaultThreshold)
	}

	validProviders := map[string]bool{"hash": true, "http": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'hash' or 'http', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.ModelVersion == "" {
		return fmt.Errorf("embeddings.model_version cannot be empty")
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// YAML returns the configuration as YAML for `trenton config show`.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// JSON returns the configuration as indented JSON for `trenton config show`.
func (c *Config) JSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
