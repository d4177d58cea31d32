package watcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(path string, op Operation) FileEvent {
	return FileEvent{Path: path, Root: "/root", Operation: op, Timestamp: time.Now()}
}

// expectIntent waits for one intent.
func expectIntent(t *testing.T, d *Debouncer, within time.Duration) Intent {
	t.Helper()
	select {
	case in := <-d.Output():
		return in
	case <-time.After(within):
		t.Fatal("timeout waiting for debounced intent")
		return Intent{}
	}
}

// expectNoIntent asserts nothing is emitted for a while.
func expectNoIntent(t *testing.T, d *Debouncer, wait time.Duration) {
	t.Helper()
	select {
	case in := <-d.Output():
		t.Fatalf("unexpected intent %s for %s", in.Kind, in.Path)
	case <-time.After(wait):
	}
}

func TestDebouncer_NetEffect(t *testing.T) {
	tests := []struct {
		name     string
		ops      []Operation
		wantKind IntentKind
		wantNone bool
	}{
		{name: "only created", ops: []Operation{OpCreate}, wantKind: IntentAdd},
		{name: "created then modified", ops: []Operation{OpCreate, OpModify, OpModify}, wantKind: IntentAdd},
		{name: "created then deleted", ops: []Operation{OpCreate, OpModify, OpDelete}, wantNone: true},
		{name: "created deleted created", ops: []Operation{OpCreate, OpDelete, OpCreate}, wantKind: IntentAdd},
		{name: "repeated modifies", ops: []Operation{OpModify, OpModify, OpModify, OpModify, OpModify}, wantKind: IntentUpdate},
		{name: "modified then deleted", ops: []Operation{OpModify, OpDelete}, wantKind: IntentDelete},
		{name: "deleted", ops: []Operation{OpDelete}, wantKind: IntentDelete},
		{name: "deleted then recreated", ops: []Operation{OpDelete, OpCreate}, wantKind: IntentUpdate},
		{name: "moved away", ops: []Operation{OpMovedFrom}, wantKind: IntentDelete},
		{name: "moved in", ops: []Operation{OpMovedTo}, wantKind: IntentAdd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer with a short cooldown
			d := NewDebouncer(30*time.Millisecond, time.Second)
			defer d.Stop()

			// When: the burst arrives inside one window
			for _, op := range tt.ops {
				d.Add(ev("/root/a.mp3", op))
			}

			// Then: exactly one intent (or none) comes out
			if tt.wantNone {
				expectNoIntent(t, d, 150*time.Millisecond)
				return
			}
			in := expectIntent(t, d, time.Second)
			assert.Equal(t, tt.wantKind, in.Kind)
			assert.Equal(t, "/root/a.mp3", in.Path)
			assert.Equal(t, len(tt.ops), in.Events)
			expectNoIntent(t, d, 100*time.Millisecond)
		})
	}
}

func TestDebouncer_FiveRapidModifies_OneUpdate(t *testing.T) {
	// Given: a cooldown longer than the burst
	d := NewDebouncer(100*time.Millisecond, 5*time.Second)
	defer d.Stop()

	// When: five modifies arrive 10ms apart
	for i := 0; i < 5; i++ {
		d.Add(ev("/root/b.mp4", OpModify))
		time.Sleep(10 * time.Millisecond)
	}

	// Then: one Update comes out, only after the quiet period
	in := expectIntent(t, d, time.Second)
	assert.Equal(t, IntentUpdate, in.Kind)
	assert.Equal(t, 5, in.Events)
	expectNoIntent(t, d, 200*time.Millisecond)
}

func TestDebouncer_MovePairEmitsDeleteAndAdd(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, time.Second)
	defer d.Stop()

	d.Add(ev("/root/old.mp3", OpMovedFrom))
	d.Add(ev("/root/new.mp3", OpMovedTo))

	got := map[string]IntentKind{}
	for i := 0; i < 2; i++ {
		in := expectIntent(t, d, time.Second)
		got[in.Path] = in.Kind
	}
	assert.Equal(t, map[string]IntentKind{
		"/root/old.mp3": IntentDelete,
		"/root/new.mp3": IntentAdd,
	}, got)
}

func TestDebouncer_MaxCoalesceForcesEmission(t *testing.T) {
	// Given: a long cooldown but a short ceiling
	d := NewDebouncer(200*time.Millisecond, 300*time.Millisecond)
	defer d.Stop()

	// When: writes keep arriving faster than the cooldown
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.Add(ev("/root/live.wav", OpModify))
			}
		}
	}()
	defer close(stop)

	// Then: an intent is still emitted near the ceiling
	start := time.Now()
	in := expectIntent(t, d, 2*time.Second)
	assert.Equal(t, IntentUpdate, in.Kind)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
}

func TestDebouncer_PathsAreIndependent(t *testing.T) {
	d := NewDebouncer(50*time.Millisecond, time.Second)
	defer d.Stop()

	d.Add(ev("/root/a.mp3", OpCreate))
	d.Add(ev("/root/b.mp3", OpDelete))
	d.Add(ev("/root/c.mp3", OpModify))

	got := map[string]IntentKind{}
	for i := 0; i < 3; i++ {
		in := expectIntent(t, d, time.Second)
		got[in.Path] = in.Kind
	}
	assert.Equal(t, IntentAdd, got["/root/a.mp3"])
	assert.Equal(t, IntentDelete, got["/root/b.mp3"])
	assert.Equal(t, IntentUpdate, got["/root/c.mp3"])
}

func TestDebouncer_Flush(t *testing.T) {
	// Given: a cooldown far in the future
	d := NewDebouncer(time.Hour, 2*time.Hour)
	defer d.Stop()

	d.Add(ev("/root/a.mp3", OpCreate))

	// When: flushed
	d.Flush()

	// Then: the intent is available immediately
	in := expectIntent(t, d, 100*time.Millisecond)
	assert.Equal(t, IntentAdd, in.Kind)
}

func TestDebouncer_SlowConsumerBlocksAdd(t *testing.T) {
	// Given: a debouncer that holds at most two paths and nobody reading Output
	d := newDebouncer(10*time.Millisecond, time.Second, 2)
	defer d.Stop()
	n := 2 + cap(d.input) + 1

	// When: more distinct paths arrive than it can hold and buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			d.Add(ev(fmt.Sprintf("/root/%04d.mp3", i), OpCreate))
		}
	}()

	// Then: Add blocks instead of queueing without limit
	select {
	case <-done:
		require.FailNow(t, "Add did not block on a full debouncer")
	case <-time.After(200 * time.Millisecond):
	}

	// And: draining Output lets every event through
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		in := expectIntent(t, d, time.Second)
		assert.Equal(t, IntentAdd, in.Kind)
		seen[in.Path] = true
	}
	assert.Len(t, seen, n)
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "Add still blocked after Output drained")
	}
}

func TestDebouncer_OverflowIsNotDebounced(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, time.Second)
	defer d.Stop()

	d.Add(FileEvent{Path: "/root", Root: "/root", Operation: OpOverflow})
	expectNoIntent(t, d, 80*time.Millisecond)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, time.Second)
	d.Stop()
	d.Stop()

	// Add and Flush after Stop do not block
	done := make(chan struct{})
	go func() {
		d.Add(ev("/root/a.mp3", OpCreate))
		d.Flush()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "Add blocked after Stop")
	}
}

func TestIntentKind_String(t *testing.T) {
	assert.Equal(t, "add", IntentAdd.String())
	assert.Equal(t, "update", IntentUpdate.String())
	assert.Equal(t, "delete", IntentDelete.String())
}
