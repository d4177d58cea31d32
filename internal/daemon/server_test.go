package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trenton/internal/app"
	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/internal/search"
	"github.com/Aman-CERP/trenton/internal/store"
)

// fakeHandler records the calls it receives and answers with canned data.
type fakeHandler struct {
	mu      sync.Mutex
	folders []store.Folder
	jobs    map[string]jobs.Job
	queries []search.Query
	media   []string
	err     error
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{jobs: make(map[string]jobs.Job)}
}

func (f *fakeHandler) AddFolder(_ context.Context, path, filter string) (*app.AddFolderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	folder := store.Folder{ID: int64(len(f.folders) + 1), Path: path, Filter: media.Filter(filter), WatchEnabled: true}
	f.folders = append(f.folders, folder)
	job := jobs.Job{ID: fmt.Sprintf("job-%d", folder.ID), Mode: jobs.ModeIncremental, State: jobs.StateQueued, Source: jobs.SourceFolder}
	f.jobs[job.ID] = job
	return &app.AddFolderResult{Folder: &folder, Job: job}, nil
}

func (f *fakeHandler) RemoveFolder(_ context.Context, id int64) (*app.RemoveFolderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, folder := range f.folders {
		if folder.ID == id {
			f.folders = append(f.folders[:i], f.folders[i+1:]...)
			return &app.RemoveFolderResult{FolderID: id, Path: folder.Path, FilesDeleted: 2}, nil
		}
	}
	return nil, terrors.NotFoundError(fmt.Sprintf("folder %d not found", id))
}

func (f *fakeHandler) ListFolders(context.Context) ([]store.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Folder{}, f.folders...), nil
}

func (f *fakeHandler) TriggerIndex(_ context.Context, mode jobs.Mode, paths []string) (jobs.Job, error) {
	if mode == jobs.ModeFull && len(paths) > 0 {
		return jobs.Job{}, terrors.ValidationError("full mode takes no paths", nil)
	}
	if mode == "" {
		mode = jobs.ModeFull
	}
	job := jobs.Job{ID: "job-x", Mode: mode, State: jobs.StateQueued, Source: jobs.SourceAPI, Roots: paths}
	f.mu.Lock()
	f.jobs[job.ID] = job
	f.mu.Unlock()
	return job, nil
}

func (f *fakeHandler) GetJobStatus(id string) (jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return jobs.Job{}, terrors.NotFoundError("job " + id + " not found")
	}
	return job, nil
}

func (f *fakeHandler) ListJobs() []jobs.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]jobs.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out
}

func (f *fakeHandler) CancelJob(id string) (jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return jobs.Job{}, terrors.NotFoundError("job " + id + " not found")
	}
	if job.State == jobs.StateCompleted {
		return job, terrors.New(terrors.ErrCodeJobFinished, "job already finished", nil)
	}
	job.CancelRequested = true
	f.jobs[id] = job
	return job, nil
}

func (f *fakeHandler) Search(_ context.Context, q search.Query) (*search.Response, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return &search.Response{
		Results:  []search.Result{{FileID: 1, Path: "/m/a.mp3", Filename: "a.mp3", Modality: q.Modality, Score: 0.9}},
		Modality: q.Modality,
		TopK:     q.TopK,
	}, nil
}

func (f *fakeHandler) SearchByMediaFile(_ context.Context, path string, target media.Modality, topK int, _ *float64) (*search.Response, error) {
	f.mu.Lock()
	f.media = append(f.media, path)
	f.mu.Unlock()
	if filepath.Ext(path) == ".txt" {
		return nil, terrors.New(terrors.ErrCodeUnsupportedFormat, "not an audio or video file", nil)
	}
	return &search.Response{Results: []search.Result{}, Modality: target, TopK: topK}, nil
}

func (f *fakeHandler) SearchSimilarTo(_ context.Context, fileID int64, topK int) (*search.Response, error) {
	if fileID == 404 {
		return nil, terrors.NotFoundError("file 404 not found")
	}
	return &search.Response{Results: []search.Result{{FileID: fileID + 1, Score: 0.5}}, TopK: topK}, nil
}

func (f *fakeHandler) recorded() ([]search.Query, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]search.Query{}, f.queries...), append([]string{}, f.media...)
}

func (f *fakeHandler) Health(context.Context) app.HealthReport {
	return app.HealthReport{
		Status:  app.StatusHealthy,
		Checks:  map[string]string{"store": "ok"},
		Watcher: "fsnotify",
	}
}

func (f *fakeHandler) Stats(context.Context) (*app.StatsReport, error) {
	return &app.StatsReport{Stats: &store.Stats{Folders: 1, Files: 3}, Workers: 2}, nil
}

// testSocketPath returns a short socket path; t.TempDir can exceed the
// Unix socket path limit.
func testSocketPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join("/tmp", fmt.Sprintf("trenton-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { _ = os.Remove(path) })
	return path
}

func testDaemonConfig(t *testing.T) Config {
	t.Helper()
	socket := testSocketPath(t)
	return Config{
		SocketPath:          socket,
		PIDPath:             filepath.Join(t.TempDir(), "trenton.pid"),
		Timeout:             5 * time.Second,
		ShutdownGracePeriod: 5 * time.Second,
	}
}

// startServer serves h until the test ends.
func startServer(t *testing.T, h RequestHandler) Config {
	t.Helper()
	cfg := testDaemonConfig(t)
	srv, err := NewServer(cfg, h)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return cfg
}

// rawCall sends one request without the client, so malformed input can be
// exercised.
func rawCall(t *testing.T, socket string, payload any) Response {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, json.NewEncoder(conn).Encode(payload))
	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func TestNewServer(t *testing.T) {
	cfg := testDaemonConfig(t)

	srv, err := NewServer(cfg, newFakeHandler())
	require.NoError(t, err)
	assert.Equal(t, cfg.SocketPath, srv.socketPath)

	_, err = NewServer(cfg, nil)
	assert.Error(t, err)
}

func TestServer_ListenAndServe(t *testing.T) {
	// Given: a stale file at the socket path
	cfg := testDaemonConfig(t)
	require.NoError(t, os.WriteFile(cfg.SocketPath, []byte("stale"), 0o600))

	srv, err := NewServer(cfg, newFakeHandler())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	// When: serving
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	// Then: the socket replaces the stale file with owner-only permissions
	require.Eventually(t, NewClient(cfg).IsRunning, 2*time.Second, 10*time.Millisecond)
	info, err := os.Stat(cfg.SocketPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// When: cancelled
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}

	// Then: the socket is removed
	_, err = os.Stat(cfg.SocketPath)
	assert.True(t, os.IsNotExist(err))
}

func TestServer_ProtocolErrors(t *testing.T) {
	cfg := startServer(t, newFakeHandler())

	tests := []struct {
		name     string
		payload  any
		wantCode int
	}{
		{"wrong version", Request{JSONRPC: "1.0", Method: MethodPing, ID: "1"}, ErrCodeInvalidRequest},
		{"unknown method", Request{JSONRPC: "2.0", Method: "nope", ID: "1"}, ErrCodeMethodNotFound},
		{"bad params", map[string]any{"jsonrpc": "2.0", "method": MethodFolderRemove, "id": "1", "params": map[string]any{"id": "x"}}, ErrCodeInvalidParams},
		{"missing params", Request{JSONRPC: "2.0", Method: MethodFolderAdd, ID: "1"}, ErrCodeInvalidParams},
		{"search without query", Request{JSONRPC: "2.0", Method: MethodSearch, ID: "1", Params: json.RawMessage(`{"top_k":3}`)}, ErrCodeInvalidParams},
		{"cancel without id", Request{JSONRPC: "2.0", Method: MethodJobCancel, ID: "1"}, ErrCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rawCall(t, cfg.SocketPath, tt.payload)

			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestServer_ParseError(t *testing.T) {
	cfg := startServer(t, newFakeHandler())

	conn, err := net.Dial("unix", cfg.SocketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{not json\n"))
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)
}

func TestServer_SearchRoutesByQueryKind(t *testing.T) {
	h := newFakeHandler()
	cfg := startServer(t, h)

	// Given/When: a vector query
	resp := rawCall(t, cfg.SocketPath, Request{
		JSONRPC: "2.0", Method: MethodSearch, ID: "1",
		Params: json.RawMessage(`{"vector":[1,0],"modality":"audio","top_k":4}`),
	})

	// Then: it reaches Search
	require.Nil(t, resp.Error)
	queries, _ := h.recorded()
	require.Len(t, queries, 1)
	assert.Equal(t, media.ModalityAudio, queries[0].Modality)
	assert.Equal(t, 4, queries[0].TopK)

	// Given/When: a media file query
	resp = rawCall(t, cfg.SocketPath, Request{
		JSONRPC: "2.0", Method: MethodSearch, ID: "2",
		Params: json.RawMessage(`{"media_path":"/m/q.wav"}`),
	})

	// Then: it reaches SearchByMediaFile
	require.Nil(t, resp.Error)
	_, files := h.recorded()
	assert.Equal(t, []string{"/m/q.wav"}, files)
}

func TestServer_Status(t *testing.T) {
	cfg := startServer(t, newFakeHandler())

	resp := rawCall(t, cfg.SocketPath, Request{JSONRPC: "2.0", Method: MethodStatus, ID: "s"})

	require.Nil(t, resp.Error)
	var status StatusResult
	require.NoError(t, json.Unmarshal(resp.Result, &status))
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, app.StatusHealthy, status.Health)
	assert.Equal(t, "fsnotify", status.Watcher)
}

func TestServer_ConcurrentConnections(t *testing.T) {
	cfg := startServer(t, newFakeHandler())

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- NewClient(cfg).Ping(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
