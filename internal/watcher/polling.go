package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PollingWatcher watches for file changes by periodically scanning each root.
// Used as a fallback when fsnotify is not available or fails. Renames show up
// as a delete of the old path and a create of the new one.
type PollingWatcher struct {
	interval time.Duration
	emit     func(ctx context.Context, ev FileEvent) bool

	mu    sync.Mutex
	state map[string]map[string]fileSnapshot // root -> path -> snapshot
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher delivering events through emit.
func NewPollingWatcher(interval time.Duration, emit func(ctx context.Context, ev FileEvent) bool) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		emit:     emit,
		state:    make(map[string]map[string]fileSnapshot),
	}
}

// AddRoot records the baseline state of root. Files already present are not
// reported.
func (p *PollingWatcher) AddRoot(root string) error {
	snap, err := scanRoot(root)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.state[root]; !ok {
		p.state[root] = snap
	}
	return nil
}

// RemoveRoot forgets root.
func (p *PollingWatcher) RemoveRoot(root string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.state, root)
}

// Run polls until ctx is done or stop is closed.
func (p *PollingWatcher) Run(ctx context.Context, stop <-chan struct{}) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		case <-ticker.C:
			for _, ev := range p.detectChanges() {
				if !p.emit(ctx, ev) {
					return nil
				}
			}
		}
	}
}

// detectChanges compares current state with previous state and returns the
// events to emit.
func (p *PollingWatcher) detectChanges() []FileEvent {
	p.mu.Lock()
	roots := make([]string, 0, len(p.state))
	for r := range p.state {
		roots = append(roots, r)
	}
	p.mu.Unlock()

	var events []FileEvent
	for _, root := range roots {
		current, err := scanRoot(root)
		if err != nil {
			// Root vanished: report every known file under it as deleted.
			current = map[string]fileSnapshot{}
		}

		p.mu.Lock()
		prev, ok := p.state[root]
		if !ok {
			p.mu.Unlock()
			continue
		}
		now := time.Now()
		for path, snap := range current {
			old, existed := prev[path]
			switch {
			case !existed:
				events = append(events, FileEvent{Path: path, Root: root, Operation: OpCreate, Timestamp: now})
			case old.modTime != snap.modTime || old.size != snap.size:
				events = append(events, FileEvent{Path: path, Root: root, Operation: OpModify, Timestamp: now})
			}
		}
		for path := range prev {
			if _, exists := current[path]; !exists {
				events = append(events, FileEvent{Path: path, Root: root, Operation: OpDelete, Timestamp: now})
			}
		}
		p.state[root] = current
		p.mu.Unlock()
	}
	return events
}

// scanRoot walks root and records the state of every media file.
func scanRoot(root string) (map[string]fileSnapshot, error) {
	state := make(map[string]fileSnapshot)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // Skip entries we can't access
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !relevant(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[path] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return state, err
}
