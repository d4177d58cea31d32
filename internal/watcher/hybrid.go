package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher implements the Watcher interface using fsnotify as the primary
// watching mechanism with polling as a fallback.
type HybridWatcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	useFsnotify bool
	opts        Options

	events chan FileEvent
	errors chan error
	stopCh chan struct{}

	mu      sync.RWMutex
	roots   map[string]struct{}
	dirs    map[string]struct{} // directories with an fsnotify watch
	stopped bool

	overflows atomic.Uint64

	// renamedAt is when the last rename-away was seen. Only Run touches it.
	renamedAt time.Time
}

// renamePairWindow is how soon after a rename-away a create is taken as
// the other half of the same move. inotify queues both halves together.
const renamePairWindow = 100 * time.Millisecond

// Ensure HybridWatcher implements Watcher interface.
var _ Watcher = (*HybridWatcher)(nil)

// NewHybridWatcher creates a new hybrid watcher with the given options.
// Attempts to use fsnotify first, falls back to polling if it fails.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		opts:   opts,
		events: make(chan FileEvent, opts.EventBufferSize),
		errors: make(chan error, 10),
		stopCh: make(chan struct{}),
		roots:  make(map[string]struct{}),
		dirs:   make(map[string]struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			h.fsWatcher = fsw
			h.useFsnotify = true
			return h, nil
		}
		slog.Warn("fsnotify unavailable, falling back to polling",
			slog.String("error", err.Error()))
	}

	h.pollWatcher = NewPollingWatcher(opts.PollInterval, h.emit)
	return h, nil
}

// AddRoot starts watching path and every directory below it.
func (h *HybridWatcher) AddRoot(path string) error {
	root, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	root = filepath.Clean(root)

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return errors.New("watcher stopped")
	}
	if _, ok := h.roots[root]; ok {
		h.mu.Unlock()
		return nil
	}
	h.roots[root] = struct{}{}
	h.mu.Unlock()

	if !h.useFsnotify {
		return h.pollWatcher.AddRoot(root)
	}

	if err := h.addTree(context.Background(), root, root, false); err != nil {
		h.mu.Lock()
		delete(h.roots, root)
		h.mu.Unlock()
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	slog.Info("watching_root",
		slog.String("root", root),
		slog.String("mode", h.WatcherType()))
	return nil
}

// RemoveRoot stops watching path. Directories still covered by another
// root stay watched.
func (h *HybridWatcher) RemoveRoot(path string) error {
	root, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	root = filepath.Clean(root)

	h.mu.Lock()
	if _, ok := h.roots[root]; !ok {
		h.mu.Unlock()
		return nil
	}
	delete(h.roots, root)

	var drop []string
	if h.useFsnotify {
		for dir := range h.dirs {
			if !within(dir, root) {
				continue
			}
			if _, covered := rootOf(dir, h.roots); covered {
				continue
			}
			drop = append(drop, dir)
			delete(h.dirs, dir)
		}
	}
	h.mu.Unlock()

	if !h.useFsnotify {
		h.pollWatcher.RemoveRoot(root)
		return nil
	}
	for _, dir := range drop {
		// The directory may already be gone, which removes the watch.
		_ = h.fsWatcher.Remove(dir)
	}
	return nil
}

// Roots returns the watched roots, sorted.
func (h *HybridWatcher) Roots() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.roots))
	for r := range h.roots {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Run delivers events until ctx is done or Stop is called.
func (h *HybridWatcher) Run(ctx context.Context) error {
	if !h.useFsnotify {
		return h.pollWatcher.Run(ctx, h.stopCh)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(ctx, event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				h.signalOverflow(ctx)
				continue
			}
			h.emitError(err)
		}
	}
}

// handleFsnotifyEvent converts and filters fsnotify events.
func (h *HybridWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	h.mu.RLock()
	root, ok := rootOf(path, h.roots)
	_, wasDir := h.dirs[path]
	h.mu.RUnlock()
	if !ok {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			// Files may land in a new directory before its watch exists,
			// so everything already inside is reported as created.
			if err := h.addTree(ctx, root, path, true); err != nil {
				h.emitError(fmt.Errorf("watch new directory %s: %w", path, err))
			}
			return
		}
		op := OpCreate
		if !h.renamedAt.IsZero() && time.Since(h.renamedAt) < renamePairWindow {
			op = OpMovedTo
		}
		h.renamedAt = time.Time{}
		if relevant(path) {
			h.emit(ctx, FileEvent{Path: path, Root: root, Operation: op, Timestamp: time.Now()})
		}

	case event.Has(fsnotify.Write):
		if relevant(path) {
			h.emit(ctx, FileEvent{Path: path, Root: root, Operation: OpModify, Timestamp: time.Now()})
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op := OpDelete
		if event.Has(fsnotify.Rename) {
			op = OpMovedFrom
			h.renamedAt = time.Now()
		}
		if wasDir {
			h.forgetTree(path)
			h.emit(ctx, FileEvent{Path: path, Root: root, Operation: op, IsDir: true, Timestamp: time.Now()})
			return
		}
		if relevant(path) {
			h.emit(ctx, FileEvent{Path: path, Root: root, Operation: op, Timestamp: time.Now()})
		}

	default:
		// Chmod
	}
}

// addTree watches dir and every non-hidden directory below it. With
// emitFiles set, media files found on the way are reported as created.
func (h *HybridWatcher) addTree(ctx context.Context, root, dir string, emitFiles bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil // Skip entries we can't access
		}

		if !d.IsDir() {
			if emitFiles && relevant(path) {
				h.emit(ctx, FileEvent{Path: path, Root: root, Operation: OpCreate, Timestamp: time.Now()})
			}
			return nil
		}

		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		h.mu.Lock()
		_, watched := h.dirs[path]
		if !watched {
			h.dirs[path] = struct{}{}
		}
		h.mu.Unlock()
		if watched {
			return nil
		}

		if err := h.fsWatcher.Add(path); err != nil {
			h.mu.Lock()
			delete(h.dirs, path)
			h.mu.Unlock()
			if path == dir {
				return err
			}
			h.emitError(fmt.Errorf("watch %s: %w", path, err))
		}
		return nil
	})
}

// forgetTree drops bookkeeping for a removed or renamed directory.
func (h *HybridWatcher) forgetTree(dir string) {
	h.mu.Lock()
	var drop []string
	for d := range h.dirs {
		if within(d, dir) {
			drop = append(drop, d)
			delete(h.dirs, d)
		}
	}
	h.mu.Unlock()

	for _, d := range drop {
		_ = h.fsWatcher.Remove(d)
	}
}

// signalOverflow reports every root as possibly out of date.
func (h *HybridWatcher) signalOverflow(ctx context.Context) {
	count := h.overflows.Add(1)
	roots := h.Roots()
	slog.Warn("watch queue overflow, requesting rescan",
		slog.Int("roots", len(roots)),
		slog.Uint64("total_overflows", count))

	for _, root := range roots {
		h.emit(ctx, FileEvent{Path: root, Root: root, Operation: OpOverflow, IsDir: true, Timestamp: time.Now()})
	}
}

// emit blocks until the event is accepted. A full buffer back-pressures the
// kernel queue, which then reports overflow instead of losing events here.
func (h *HybridWatcher) emit(ctx context.Context, event FileEvent) bool {
	select {
	case h.events <- event:
		return true
	case <-h.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// emitError sends an error to the error channel.
func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()

	if stopped {
		return
	}

	select {
	case h.errors <- err:
	default:
		slog.Warn("watcher error dropped", slog.String("error", err.Error()))
	}
}

// Overflows returns the number of overflow signals raised.
func (h *HybridWatcher) Overflows() uint64 {
	return h.overflows.Load()
}

// Stop stops the watcher and releases resources.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}

	h.stopped = true
	close(h.stopCh)

	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	return nil
}

// Events returns the channel of file events.
func (h *HybridWatcher) Events() <-chan FileEvent {
	return h.events
}

// Errors returns the channel of errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// IsHealthy returns true if the watcher is running and hasn't stopped.
func (h *HybridWatcher) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.stopped
}

// WatcherType returns the type of watcher being used ("fsnotify" or "polling").
func (h *HybridWatcher) WatcherType() string {
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}
