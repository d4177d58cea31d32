package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/trenton/internal/media"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpDelete indicates a file or directory was removed.
	OpDelete
	// OpMovedFrom indicates a file was renamed away from Path.
	OpMovedFrom
	// OpMovedTo indicates a file was renamed to Path. fsnotify reports the
	// destination of a rename as a create; the hybrid watcher reports it as
	// OpMovedTo when it directly follows a rename-away. The polling watcher
	// cannot pair the halves and reports OpCreate.
	OpMovedTo
	// OpOverflow indicates events under Root may have been lost.
	OpOverflow
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpMovedFrom:
		return "MOVED_FROM"
	case OpMovedTo:
		return "MOVED_TO"
	case OpOverflow:
		return "OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a raw file system event.
type FileEvent struct {
	// Path is the absolute path of the file or directory.
	Path string

	// Root is the watched root the path belongs to.
	Root string

	// Operation is the type of file system operation.
	Operation Operation

	// IsDir indicates the event is for a directory, when known.
	IsDir bool

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Watcher defines the interface for watching a dynamic set of roots.
type Watcher interface {
	// AddRoot starts watching path recursively. Adding a root twice is a no-op.
	AddRoot(path string) error

	// RemoveRoot stops watching path.
	RemoveRoot(path string) error

	// Roots returns the watched roots.
	Roots() []string

	// Run delivers events until ctx is done or Stop is called.
	Run(ctx context.Context) error

	// Events returns the channel of raw events.
	Events() <-chan FileEvent

	// Errors returns a channel of non-fatal watcher errors.
	Errors() <-chan error

	// Stop stops the watcher and releases resources.
	// Safe to call multiple times.
	Stop() error
}

// Options configures the watcher behavior.
type Options struct {
	// PollInterval is the interval for polling mode (fallback).
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the size of the event channel buffer.
	// Default: 1024
	EventBufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		PollInterval:    5 * time.Second,
		EventBufferSize: 1024,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// relevant reports whether a file path can hold indexable media.
func relevant(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return media.ModalityOf(path).Searchable()
}

// within reports whether path is root or lies below it.
func within(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, strings.TrimRight(root, string(filepath.Separator))+string(filepath.Separator))
}

// rootOf returns the longest root containing path.
func rootOf(path string, roots map[string]struct{}) (string, bool) {
	best := ""
	for r := range roots {
		if within(path, r) && len(r) > len(best) {
			best = r
		}
	}
	return best, best != ""
}
