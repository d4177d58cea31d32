package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// IntentKind is the net effect of the events seen for one path.
type IntentKind int

const (
	// IntentAdd means the path did not exist before the window and does now.
	IntentAdd IntentKind = iota
	// IntentUpdate means the path existed before and still does, changed.
	IntentUpdate
	// IntentDelete means the path existed before and is gone.
	IntentDelete
)

// String returns a human-readable representation of the intent.
func (k IntentKind) String() string {
	switch k {
	case IntentAdd:
		return "add"
	case IntentUpdate:
		return "update"
	case IntentDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Intent is one debounced reconciliation instruction for a path.
type Intent struct {
	Path  string
	Root  string
	Kind  IntentKind
	IsDir bool
	// Events is the number of raw events folded into this intent.
	Events    int
	FirstSeen time.Time
}

// Debouncer coalesces bursts of raw events per path into one Intent.
//
// A path's window restarts on every event and closes after the cooldown
// passes with no further event, or once maxCoalesce has elapsed since the
// first event, whichever comes first. The net effect over the window is
// decided by the first and last operations only:
//   - existed before: the first event was MODIFY, DELETE or MOVED_FROM
//   - exists after:   the last event was CREATE, MODIFY or MOVED_TO
//
// So CREATE..DELETE emits nothing, repeated MODIFY emits one Update,
// DELETE..CREATE emits Update and CREATE..MODIFY emits Add.
//
// All state is owned by a single loop goroutine; Add only sends a message.
// Once maxHeld paths are open or waiting on Output, the loop stops taking
// events and Add blocks until the consumer catches up.
type Debouncer struct {
	cooldown    time.Duration
	maxCoalesce time.Duration
	maxHeld     int

	input   chan FileEvent
	output  chan Intent
	flushCh chan chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	stopOnce sync.Once
	now      func() time.Time
}

type pendingPath struct {
	root      string
	first     Operation
	last      Operation
	isDir     bool
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// defaultMaxHeld bounds the paths a debouncer holds between Add and Output.
const defaultMaxHeld = 4096

// NewDebouncer creates a debouncer and starts its loop. A maxCoalesce of
// zero defaults to five cooldowns.
func NewDebouncer(cooldown, maxCoalesce time.Duration) *Debouncer {
	return newDebouncer(cooldown, maxCoalesce, defaultMaxHeld)
}

func newDebouncer(cooldown, maxCoalesce time.Duration, maxHeld int) *Debouncer {
	if cooldown <= 0 {
		cooldown = 2 * time.Second
	}
	if maxCoalesce <= 0 {
		maxCoalesce = 5 * cooldown
	}
	if maxCoalesce < cooldown {
		maxCoalesce = cooldown
	}

	d := &Debouncer{
		cooldown:    cooldown,
		maxCoalesce: maxCoalesce,
		maxHeld:     max(maxHeld, 1),
		input:       make(chan FileEvent, 256),
		output:      make(chan Intent, 64),
		flushCh:     make(chan chan struct{}),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		now:         time.Now,
	}
	go d.loop()
	return d
}

// Add submits a raw event. Overflow events are not debounced and are ignored
// here; route them to the scheduler directly.
func (d *Debouncer) Add(event FileEvent) {
	if event.Operation == OpOverflow {
		return
	}
	select {
	case d.input <- event:
	case <-d.stopCh:
	}
}

// Output returns the channel of intents.
func (d *Debouncer) Output() <-chan Intent {
	return d.output
}

// Flush closes every open window now. It returns once the resulting intents
// are queued for Output.
func (d *Debouncer) Flush() {
	done := make(chan struct{})
	select {
	case d.flushCh <- done:
		<-done
	case <-d.stopCh:
	}
}

// Stop ends the loop. Open windows are discarded.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		<-d.doneCh
	})
}

func (d *Debouncer) loop() {
	defer close(d.doneCh)

	pending := make(map[string]*pendingPath)
	var queue []Intent

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	rearm := func() {
		if len(pending) == 0 {
			timer.Stop()
			return
		}
		var earliest time.Time
		for _, p := range pending {
			dl := d.deadline(p)
			if earliest.IsZero() || dl.Before(earliest) {
				earliest = dl
			}
		}
		wait := earliest.Sub(d.now())
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}

	emit := func(path string, p *pendingPath) {
		delete(pending, path)
		intent, ok := netIntent(path, p)
		if !ok {
			slog.Debug("debounced_noop",
				slog.String("path", path),
				slog.Int("events", p.count))
			return
		}
		slog.Debug("debounced_intent",
			slog.String("path", path),
			slog.String("kind", intent.Kind.String()),
			slog.Int("events", p.count))
		queue = append(queue, intent)
	}

	for {
		var out chan<- Intent
		var next Intent
		if len(queue) > 0 {
			out = d.output
			next = queue[0]
		}
		in := d.input
		if len(pending)+len(queue) >= d.maxHeld {
			in = nil
		}

		select {
		case <-d.stopCh:
			timer.Stop()
			return

		case ev := <-in:
			now := d.now()
			if p, ok := pending[ev.Path]; ok {
				p.last = ev.Operation
				p.isDir = p.isDir || ev.IsDir
				p.count++
				p.lastSeen = now
			} else {
				pending[ev.Path] = &pendingPath{
					root:      ev.Root,
					first:     ev.Operation,
					last:      ev.Operation,
					isDir:     ev.IsDir,
					count:     1,
					firstSeen: now,
					lastSeen:  now,
				}
			}
			rearm()

		case <-timer.C:
			now := d.now()
			for path, p := range pending {
				if !d.deadline(p).After(now) {
					emit(path, p)
				}
			}
			rearm()

		case done := <-d.flushCh:
			for path, p := range pending {
				emit(path, p)
			}
			rearm()
			close(done)

		case out <- next:
			queue = queue[1:]
		}
	}
}

func (d *Debouncer) deadline(p *pendingPath) time.Time {
	quiet := p.lastSeen.Add(d.cooldown)
	ceiling := p.firstSeen.Add(d.maxCoalesce)
	if ceiling.Before(quiet) {
		return ceiling
	}
	return quiet
}

// netIntent folds a window into an intent. It reports false when the events
// cancel out.
func netIntent(path string, p *pendingPath) (Intent, bool) {
	before := p.first == OpModify || p.first == OpDelete || p.first == OpMovedFrom
	after := p.last == OpCreate || p.last == OpModify || p.last == OpMovedTo

	intent := Intent{
		Path:      path,
		Root:      p.root,
		IsDir:     p.isDir,
		Events:    p.count,
		FirstSeen: p.firstSeen,
	}
	switch {
	case !before && after:
		intent.Kind = IntentAdd
	case before && after:
		intent.Kind = IntentUpdate
	case before && !after:
		intent.Kind = IntentDelete
	default:
		return Intent{}, false
	}
	return intent, true
}
