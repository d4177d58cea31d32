package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points user config lookup at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("TRENTON_HOME", filepath.Join(dir, "data"))
	return dir
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	isolate(t)
	cfg := NewConfig()

	// Then: the documented defaults apply
	require.NotNil(t, cfg)
	assert.Equal(t, 5, cfg.Indexing.ConcurrentJobs)
	assert.Equal(t, 10, cfg.Indexing.BatchSize)
	assert.Equal(t, 3, cfg.Indexing.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Watcher.Cooldown)
	assert.Equal(t, 10, cfg.Search.DefaultTopK)
	assert.Equal(t, 100, cfg.Search.MaxTopK)
	assert.Equal(t, 0.0, cfg.Search.DefaultThreshold)
	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_UsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoad_ExplicitFileOverridesUserFile(t *testing.T) {
	// Given: a user config and an explicit config
	dir := isolate(t)
	userPath := filepath.Join(dir, "trenton", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte(`
indexing:
  concurrent_jobs: 3
watcher:
  cooldown: 1s
`), 0o644))

	explicit := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte(`
indexing:
  concurrent_jobs: 2
search:
  max_top_k: 50
  default_threshold: 0.25
`), 0o644))

	// When: loading with the explicit path
	cfg, err := Load(explicit)

	// Then: explicit wins, user values survive where not overridden
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Indexing.ConcurrentJobs)
	assert.Equal(t, time.Second, cfg.Watcher.Cooldown)
	assert.Equal(t, 50, cfg.Search.MaxTopK)
	assert.Equal(t, 0.25, cfg.Search.DefaultThreshold)
	assert.Equal(t, 10, cfg.Indexing.BatchSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	explicit := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("indexing:\n  concurrent_jobs: 2\n"), 0o644))

	t.Setenv("TRENTON_CONCURRENT_JOBS", "7")
	t.Setenv("TRENTON_COOLDOWN", "250ms")
	t.Setenv("TRENTON_DEFAULT_THRESHOLD", "0.5")
	t.Setenv("TRENTON_LOG_LEVEL", "debug")
	t.Setenv("TRENTON_MAX_TOP_K", "not-a-number")

	cfg, err := Load(explicit)

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Indexing.ConcurrentJobs)
	assert.Equal(t, 250*time.Millisecond, cfg.Watcher.Cooldown)
	assert.Equal(t, 0.5, cfg.Search.DefaultThreshold)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 100, cfg.Search.MaxTopK)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))

	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indexing: [unclosed"), 0o644))

	_, err := Load(path)

	assert.Error(t, err)
}

func TestValidate_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero pool", func(c *Config) { c.Indexing.ConcurrentJobs = 0 }},
		{"zero batch", func(c *Config) { c.Indexing.BatchSize = 0 }},
		{"zero cooldown", func(c *Config) { c.Watcher.Cooldown = 0 }},
		{"ceiling below cooldown", func(c *Config) { c.Watcher.MaxCoalesce = time.Second }},
		{"default top k above max", func(c *Config) { c.Search.DefaultTopK = 200 }},
		{"zero max top k", func(c *Config) { c.Search.MaxTopK = 0 }},
		{"negative threshold", func(c *Config) { c.Search.DefaultThreshold = -0.1 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "gpu" }},
		{"empty model version", func(c *Config) { c.Embeddings.ModelVersion = "" }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	dir := isolate(t)
	cfg := NewConfig()
	cfg.Indexing.ConcurrentJobs = 4
	cfg.Watcher.Cooldown = 3 * time.Second

	path := filepath.Join(dir, "out", "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Indexing.ConcurrentJobs)
	assert.Equal(t, 3*time.Second, loaded.Watcher.Cooldown)
}
