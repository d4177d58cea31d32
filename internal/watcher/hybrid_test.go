package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, opts Options, roots ...string) *HybridWatcher {
	t.Helper()
	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)

	for _, r := range roots {
		require.NoError(t, w.AddRoot(r))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
		<-done
	})
	return w
}

// waitFor drains events until one matches path and op.
func waitFor(t *testing.T, w *HybridWatcher, path string, op Operation) FileEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-w.Events():
			if e.Path == path && e.Operation == op {
				return e
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s on %s", op, path)
			return FileEvent{}
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestHybridWatcher_CreateModifyDelete(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, DefaultOptions(), root)
	require.Equal(t, "fsnotify", w.WatcherType())

	path := filepath.Join(root, "song.mp3")

	// When: a media file is created, written and removed
	writeFile(t, path, "one")
	e := waitFor(t, w, path, OpCreate)
	assert.Equal(t, root, e.Root)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("two")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	waitFor(t, w, path, OpModify)

	require.NoError(t, os.Remove(path))
	waitFor(t, w, path, OpDelete)
}

func TestHybridWatcher_IgnoresNonMedia(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, DefaultOptions(), root)

	writeFile(t, filepath.Join(root, "notes.txt"), "x")
	writeFile(t, filepath.Join(root, ".hidden.mp3"), "x")
	media := filepath.Join(root, "clip.mp4")
	writeFile(t, media, "x")

	// The first event seen must be the media file.
	e := waitFor(t, w, media, OpCreate)
	assert.Equal(t, media, e.Path)
}

func TestHybridWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, DefaultOptions(), root)

	// When: a directory appears with a file already inside
	sub := filepath.Join(root, "album")
	require.NoError(t, os.Mkdir(sub, 0o755))
	first := filepath.Join(sub, "01.flac")
	writeFile(t, first, "x")
	waitFor(t, w, first, OpCreate)

	// Then: later files in it are seen too
	second := filepath.Join(sub, "02.flac")
	writeFile(t, second, "y")
	waitFor(t, w, second, OpCreate)
}

func TestHybridWatcher_RenameEmitsMovedFromAndMovedTo(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "a.wav")
	writeFile(t, oldPath, "x")
	w := startWatcher(t, DefaultOptions(), root)

	// When: a file is renamed within the root
	newPath := filepath.Join(root, "b.wav")
	require.NoError(t, os.Rename(oldPath, newPath))

	// Then: both halves of the move are reported
	waitFor(t, w, oldPath, OpMovedFrom)
	waitFor(t, w, newPath, OpMovedTo)

	// And: a later plain create is still a create
	fresh := filepath.Join(root, "c.wav")
	time.Sleep(2 * renamePairWindow)
	writeFile(t, fresh, "y")
	waitFor(t, w, fresh, OpCreate)
}

func TestHybridWatcher_MultipleRootsAndRemove(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	w := startWatcher(t, DefaultOptions(), a, b)
	assert.Len(t, w.Roots(), 2)

	pb := filepath.Join(b, "x.mp3")
	writeFile(t, pb, "x")
	e := waitFor(t, w, pb, OpCreate)
	assert.Equal(t, b, e.Root)

	// When: root a is removed
	require.NoError(t, w.RemoveRoot(a))
	assert.Equal(t, []string{b}, w.Roots())

	// Then: files in a are no longer reported, b still is
	writeFile(t, filepath.Join(a, "gone.mp3"), "x")
	pb2 := filepath.Join(b, "y.mp3")
	writeFile(t, pb2, "x")
	e = waitFor(t, w, pb2, OpCreate)
	assert.Equal(t, b, e.Root)
}

func TestHybridWatcher_AddRootTwiceIsNoop(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, DefaultOptions(), root)
	require.NoError(t, w.AddRoot(root))
	assert.Len(t, w.Roots(), 1)
}

func TestHybridWatcher_AddMissingRootFails(t *testing.T) {
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.Error(t, w.AddRoot(filepath.Join(t.TempDir(), "missing")))
	assert.Empty(t, w.Roots())
}

func TestHybridWatcher_OverflowSignalsEveryRoot(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	w := startWatcher(t, DefaultOptions(), a, b)

	// When: the kernel queue overflows
	w.signalOverflow(context.Background())

	// Then: every root receives an overflow event
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-w.Events():
			require.Equal(t, OpOverflow, e.Operation)
			got[e.Root] = true
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for overflow")
		}
	}
	assert.True(t, got[a])
	assert.True(t, got[b])
	assert.Equal(t, uint64(1), w.Overflows())
}

func TestHybridWatcher_PollingFallback(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "old.ogg")
	writeFile(t, existing, "x")

	opts := DefaultOptions()
	opts.ForcePolling = true
	opts.PollInterval = 30 * time.Millisecond
	w := startWatcher(t, opts, root)
	require.Equal(t, "polling", w.WatcherType())

	// When: a file is added and the existing one removed
	added := filepath.Join(root, "sub", "new.m4a")
	writeFile(t, added, "x")
	require.NoError(t, os.Remove(existing))

	// Then: polling reports both
	waitFor(t, w, added, OpCreate)
}

func TestPollingWatcher_DetectChanges(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "keep.mp3")
	gone := filepath.Join(root, "gone.mp3")
	writeFile(t, keep, "x")
	writeFile(t, gone, "x")

	p := NewPollingWatcher(time.Hour, func(context.Context, FileEvent) bool { return true })
	require.NoError(t, p.AddRoot(root))

	// Given: one file modified, one removed and one added
	writeFile(t, keep, "longer content")
	require.NoError(t, os.Remove(gone))
	added := filepath.Join(root, "new.mp3")
	writeFile(t, added, "x")

	// When
	events := p.detectChanges()

	// Then
	got := map[string]Operation{}
	for _, e := range events {
		got[e.Path] = e.Operation
	}
	assert.Equal(t, map[string]Operation{
		keep:  OpModify,
		gone:  OpDelete,
		added: OpCreate,
	}, got)

	// And: a second pass is quiet
	assert.Empty(t, p.detectChanges())
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/a/b", "/a"))
	assert.True(t, within("/a", "/a"))
	assert.False(t, within("/ab", "/a"))
}
