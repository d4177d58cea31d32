// Package jobs tracks the lifecycle of index jobs for status polling and
// cancellation.
package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
)

// Mode is the scope of an index job.
type Mode string

const (
	// ModeFull reconciles every watched root.
	ModeFull Mode = "full"
	// ModeIncremental reconciles an explicit set of paths.
	ModeIncremental Mode = "incremental"
)

// State is the lifecycle position of a job.
// queued -> running -> {completed, failed, cancelled}, or queued -> cancelled.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Finished reports whether s is terminal.
func (s State) Finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Source records what submitted a job.
type Source string

const (
	SourceAPI      Source = "api"
	SourceFolder   Source = "folder"
	SourceOverflow Source = "overflow"
	SourceWatch    Source = "watch"
)

// maxFileErrors bounds the per-file error list kept on one job.
// The Failed counter keeps counting past it.
const maxFileErrors = 1000

// DefaultRetention is the number of finished jobs kept.
const DefaultRetention = 100

// FileError is a per-file failure recorded on a job.
type FileError struct {
	Path    string    `json:"path"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Job is an immutable snapshot of an index job.
type Job struct {
	ID              string      `json:"id"`
	Mode            Mode        `json:"mode"`
	State           State       `json:"state"`
	Source          Source      `json:"source"`
	Roots           []string    `json:"roots,omitempty"`
	SubmittedAt     time.Time   `json:"submitted_at"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
	Total           int         `json:"total"`
	Processed       int         `json:"processed"`
	Failed          int         `json:"failed"`
	Skipped         int         `json:"skipped"`
	ProgressPct     float64     `json:"progress_pct"`
	CancelRequested bool        `json:"cancel_requested,omitempty"`
	Errors          []FileError `json:"errors,omitempty"`
	SystemError     string      `json:"system_error,omitempty"`
}

type record struct {
	job      Job
	cancel   bool
	finished int64 // finish sequence, for retention order
}

// Registry provides thread-safe tracking of index jobs.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*record
	retention int
	seq       int64
	now       func() time.Time
}

// NewRegistry creates a registry keeping at most retention finished jobs.
func NewRegistry(retention int) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		jobs:      make(map[string]*record),
		retention: retention,
		now:       time.Now,
	}
}

// Create registers a queued job and returns its snapshot.
func (r *Registry) Create(mode Mode, source Source, roots []string) Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &record{job: Job{
		ID:          uuid.NewString(),
		Mode:        mode,
		State:       StateQueued,
		Source:      source,
		Roots:       append([]string(nil), roots...),
		SubmittedAt: r.now(),
	}}
	r.jobs[rec.job.ID] = rec
	return snapshot(rec)
}

// Start moves a queued job to running. It reports false when the job was
// cancelled (or is otherwise no longer queued) and must not run.
func (r *Registry) Start(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok || rec.job.State != StateQueued {
		return false
	}
	now := r.now()
	rec.job.State = StateRunning
	rec.job.StartedAt = &now
	return true
}

// AddTotal grows the number of units classified for the job.
func (r *Registry) AddTotal(id string, n int) {
	r.update(id, func(j *Job) { j.Total += n })
}

// RecordProcessed counts a unit that changed stored state.
func (r *Registry) RecordProcessed(id string) {
	r.update(id, func(j *Job) { j.Processed++ })
}

// RecordSkipped counts a unit that needed no work.
func (r *Registry) RecordSkipped(id string) {
	r.update(id, func(j *Job) { j.Skipped++ })
}

// RecordFailed counts a per-file failure and keeps its error.
func (r *Registry) RecordFailed(id, path string, err error) {
	at := r.now()
	r.update(id, func(j *Job) {
		j.Failed++
		if len(j.Errors) >= maxFileErrors {
			return
		}
		fe := FileError{Path: path, At: at}
		if err != nil {
			fe.Message = err.Error()
			fe.Code = terrors.GetCode(err)
		}
		j.Errors = append(j.Errors, fe)
	})
}

// Finish moves a running job to its terminal state: failed when sysErr is
// non-nil, cancelled when a cancel was requested, completed otherwise.
func (r *Registry) Finish(id string, sysErr error) Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return Job{}
	}
	if rec.job.State.Finished() {
		return snapshot(rec)
	}

	switch {
	case sysErr != nil:
		rec.job.State = StateFailed
		rec.job.SystemError = sysErr.Error()
	case rec.cancel:
		rec.job.State = StateCancelled
	default:
		rec.job.State = StateCompleted
	}
	r.markFinished(rec)
	r.evict()
	return snapshot(rec)
}

// Cancel requests cancellation. A queued job is cancelled immediately; a
// running job stops dispatching new units and is cancelled once in-flight
// units drain. Finished jobs return ErrJobFinished.
func (r *Registry) Cancel(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return Job{}, terrors.NotFoundError("job not found: " + id)
	}
	switch rec.job.State {
	case StateQueued:
		rec.cancel = true
		rec.job.State = StateCancelled
		r.markFinished(rec)
		r.evict()
	case StateRunning:
		rec.cancel = true
	default:
		return snapshot(rec), terrors.New(terrors.ErrCodeJobFinished,
			"job already "+string(rec.job.State)+": "+id, nil)
	}
	return snapshot(rec), nil
}

// CancelRequested reports whether the job should stop dispatching units.
// Unknown jobs report true.
func (r *Registry) CancelRequested(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.jobs[id]
	return !ok || rec.cancel
}

// Get returns a job snapshot.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.jobs[id]
	if !ok {
		return Job{}, terrors.NotFoundError("job not found: " + id)
	}
	return snapshot(rec), nil
}

// List returns all retained jobs, newest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, rec := range r.jobs {
		out = append(out, snapshot(rec))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Active returns the number of queued or running jobs.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.jobs {
		if !rec.job.State.Finished() {
			n++
		}
	}
	return n
}

func (r *Registry) update(id string, fn func(j *Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.jobs[id]; ok {
		fn(&rec.job)
	}
}

func (r *Registry) markFinished(rec *record) {
	now := r.now()
	rec.job.FinishedAt = &now
	r.seq++
	rec.finished = r.seq
}

// evict drops the oldest finished jobs beyond the retention limit.
func (r *Registry) evict() {
	var finished []*record
	for _, rec := range r.jobs {
		if rec.job.State.Finished() {
			finished = append(finished, rec)
		}
	}
	if len(finished) <= r.retention {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].finished < finished[j].finished })
	for _, rec := range finished[:len(finished)-r.retention] {
		delete(r.jobs, rec.job.ID)
	}
}

func snapshot(rec *record) Job {
	j := rec.job
	j.CancelRequested = rec.cancel && !j.State.Finished()
	j.Roots = append([]string(nil), rec.job.Roots...)
	j.Errors = append([]FileError(nil), rec.job.Errors...)
	if j.Total > 0 {
		done := j.Processed + j.Failed + j.Skipped
		j.ProgressPct = float64(done) / float64(j.Total) * 100.0
	}
	return j
}
