package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trenton/internal/app"
	"github.com/Aman-CERP/trenton/internal/config"
	"github.com/Aman-CERP/trenton/internal/daemon"
	"github.com/Aman-CERP/trenton/internal/embed"
	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/search"
)

// writeTestConfig writes a config file with a short socket path and an
// isolated store, and clears environment that would override it.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TRENTON_METRICS_ADDR", "")

	sockDir := fmt.Sprintf("/tmp/trenton-cli-%d", time.Now().UnixNano())
	require.NoError(t, os.MkdirAll(sockDir, 0o700))
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })

	dir := t.TempDir()
	body := fmt.Sprintf(`embeddings:
  dimensions: 16
indexing:
  retry_initial_delay: 1ms
  retry_max_delay: 5ms
store:
  path: %s
server:
  socket_path: %s
  log_file: %s
`, filepath.Join(dir, "data", "trenton.db"), filepath.Join(sockDir, "trenton.sock"), filepath.Join(dir, "trenton.log"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// startTestDaemon runs a daemon for the config at cfgPath until the test ends.
func startTestDaemon(t *testing.T, cfgPath string) *daemon.Client {
	t.Helper()
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	a, err := app.New(context.Background(), cfg,
		app.WithEmbedder(embed.NewHashEmbedder(16, "hash-v1")),
		app.WithoutStartupScan())
	require.NoError(t, err)

	dcfg := daemon.FromConfig(cfg)
	d, err := daemon.NewDaemon(dcfg, a)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client := daemon.NewClient(dcfg)
	require.Eventually(t, client.IsRunning, 3*time.Second, 10*time.Millisecond)
	return client
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeMedia(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{
		"serve", "stop", "status", "folder", "index", "jobs",
		"cancel", "similar", "search", "stats", "doctor", "config", "version",
	} {
		t.Run(name, func(t *testing.T) {
			found, _, err := root.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, found.Name())
		})
	}
}

func TestRootCmd_FolderSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, args := range [][]string{{"folder", "add"}, {"folder", "rm"}, {"folder", "ls"}, {"folder", "list"}} {
		found, _, err := root.Find(args)
		require.NoError(t, err)
		assert.Equal(t, "folder", found.Parent().Name())
	}
}

func TestCommands_DaemonNotRunning(t *testing.T) {
	// Given: a config whose socket nobody listens on
	cfgPath := writeTestConfig(t)

	tests := [][]string{
		{"folder", "ls"},
		{"jobs"},
		{"stats"},
		{"similar", "1"},
	}

	for _, args := range tests {
		t.Run(args[0], func(t *testing.T) {
			// When: running a command that needs the daemon
			_, err := execute(t, cfgPath, args...)

			// Then: it fails with a hint to start it
			require.Error(t, err)
			assert.Equal(t, terrors.ErrCodeSchedulerUnavailable, terrors.GetCode(err))
		})
	}
}

func TestStatusAndStop_DaemonNotRunning(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")

	out, err = execute(t, cfgPath, "status", "--json")
	require.NoError(t, err)
	var status daemon.StatusResult
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.Running)

	out, err = execute(t, cfgPath, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")
}

func TestCommands_InvalidArguments(t *testing.T) {
	cfgPath := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "full with paths", args: []string{"index", "--full", "a.mp3"}},
		{name: "non-numeric folder id", args: []string{"folder", "rm", "abc"}},
		{name: "zero file id", args: []string{"similar", "0"}},
		{name: "search without media", args: []string{"search"}},
		{name: "unknown modality", args: []string{"search", "--media", "a.mp3", "--modality", "image"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, cfgPath, tt.args...)

			require.Error(t, err)
			assert.ErrorIs(t, err, terrors.ErrInvalidInput)
		})
	}
}

func TestCommands_AgainstRunningDaemon(t *testing.T) {
	// Given: a running daemon and a folder with one audio and one video file
	cfgPath := writeTestConfig(t)
	client := startTestDaemon(t, cfgPath)
	ctx := context.Background()

	dir := t.TempDir()
	song := writeMedia(t, dir, "song.mp3", "melody")
	writeMedia(t, dir, "clip.mp4", "frames")

	// When: the folder is added
	out, err := execute(t, cfgPath, "folder", "add", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered folder 1")

	require.Eventually(t, func() bool {
		list, err := client.ListJobs(ctx)
		return err == nil && len(list) == 1 && list[0].State == jobs.StateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	t.Run("folder ls", func(t *testing.T) {
		out, err := execute(t, cfgPath, "folder", "ls")
		require.NoError(t, err)
		assert.Contains(t, out, dir)
	})

	t.Run("jobs", func(t *testing.T) {
		out, err := execute(t, cfgPath, "jobs")
		require.NoError(t, err)
		assert.Contains(t, out, "completed")
	})

	t.Run("stats json", func(t *testing.T) {
		out, err := execute(t, cfgPath, "stats", "--json")
		require.NoError(t, err)

		var stats app.StatsReport
		require.NoError(t, json.Unmarshal([]byte(out), &stats))
		assert.Equal(t, 2, stats.Files)
		assert.Equal(t, 1, stats.Folders)
	})

	t.Run("status", func(t *testing.T) {
		out, err := execute(t, cfgPath, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Daemon is running")
		assert.Contains(t, out, "healthy")
	})

	var songID int64
	t.Run("search by media", func(t *testing.T) {
		out, err := execute(t, cfgPath, "search", "--media", song, "--json")
		require.NoError(t, err)

		var resp search.Response
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.NotEmpty(t, resp.Results)
		assert.Equal(t, song, resp.Results[0].Path)
		assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-4)
		songID = resp.Results[0].FileID
	})

	t.Run("similar", func(t *testing.T) {
		require.NotZero(t, songID)
		out, err := execute(t, cfgPath, "similar", fmt.Sprint(songID))
		require.NoError(t, err)
		assert.NotContains(t, out, song)
	})

	t.Run("index wait", func(t *testing.T) {
		out, err := execute(t, cfgPath, "index", "--full", "--wait", "--json")
		require.NoError(t, err)

		var job jobs.Job
		require.NoError(t, json.Unmarshal([]byte(out), &job))
		assert.Equal(t, jobs.ModeFull, job.Mode)
		assert.Equal(t, jobs.StateCompleted, job.State)
		assert.Equal(t, 2, job.Skipped)
	})

	t.Run("cancel finished job", func(t *testing.T) {
		list, err := client.ListJobs(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, list)

		_, err = execute(t, cfgPath, "cancel", list[0].ID)
		assert.ErrorIs(t, err, terrors.ErrJobFinished)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := execute(t, cfgPath, "jobs", "nope")
		assert.ErrorIs(t, err, terrors.ErrNotFound)
	})

	t.Run("folder rm", func(t *testing.T) {
		out, err := execute(t, cfgPath, "folder", "rm", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "Removed folder 1")
		assert.Contains(t, out, "2 files marked deleted")
	})
}

func TestConfigCmd_InitShowPath(t *testing.T) {
	// Given: an isolated config home
	cfgPath := writeTestConfig(t)
	userPath := config.GetUserConfigPath()

	// When: printing the path
	out, err := execute(t, cfgPath, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, userPath+"\n", out)

	// When: creating the user config
	out, err = execute(t, cfgPath, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user configuration")
	assert.FileExists(t, userPath)

	// Then: a second init leaves it alone and --force keeps a backup
	out, err = execute(t, cfgPath, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	_, err = execute(t, cfgPath, "config", "init", "--force")
	require.NoError(t, err)
	assert.FileExists(t, userPath+".bak")

	// Then: the effective config merges the template with the --config file
	out, err = execute(t, cfgPath, "config", "show", "--json")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 16, cfg.Embeddings.Dimensions)
	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	assert.Equal(t, 2*time.Second, cfg.Watcher.Cooldown)

	out, err = execute(t, cfgPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "dimensions: 16")
}

func TestDoctorCmd_JSON(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, cfgPath, "doctor", "--json")
	require.NoError(t, err)

	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEqual(t, "failed", report.Status)
	require.Len(t, report.Checks, 5)
	assert.Equal(t, "embedder", report.Checks[4].Name)
	assert.Equal(t, "PASS", report.Checks[4].Status)
}

func TestRootCmd_ProfileFlags(t *testing.T) {
	cfgPath := writeTestConfig(t)
	heap := filepath.Join(t.TempDir(), "heap.prof")

	_, err := execute(t, cfgPath, "--profile-mem", heap, "version", "--short")

	require.NoError(t, err)
	assert.FileExists(t, heap)
}
