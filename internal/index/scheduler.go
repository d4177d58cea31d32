// Package index reconciles watched folders with the store.
//
// The Scheduler turns explicit triggers and debounced watcher intents into
// per-file work units. Units from every job share one bounded Pool, units
// touching the same path run in submission order, and each unit classifies
// its path against stored state before embedding, soft-deleting, restoring
// or skipping it.
package index

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/internal/metrics"
	"github.com/Aman-CERP/trenton/internal/store"
	"github.com/Aman-CERP/trenton/internal/watcher"
)

// DefaultBatchSize is the number of targets dispatched per batch.
const DefaultBatchSize = 10

// Config contains configuration for the Scheduler.
type Config struct {
	// Store holds file, folder and embedding state.
	Store *store.Store

	// Registry receives job lifecycle updates.
	Registry *jobs.Registry

	// Pipeline embeds and writes files.
	Pipeline *Pipeline

	// Workers is the global cap on concurrently executing units.
	Workers int

	// BatchSize is how many targets are dispatched, and added to a job's
	// total, at a time.
	BatchSize int
}

// Scheduler executes index jobs and watcher intents.
type Scheduler struct {
	store    *store.Store
	registry *jobs.Registry
	pipeline *Pipeline
	pool     *Pool
	seq      *sequencer
	batch    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	fullRunning atomic.Bool
	deferred    map[string]struct{} // overflow roots waiting for the full job
}

// New creates a scheduler. Call Close to drain it.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil || cfg.Registry == nil || cfg.Pipeline == nil {
		return nil, terrors.InternalError("scheduler requires a store, registry and pipeline", nil)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    cfg.Store,
		registry: cfg.Registry,
		pipeline: cfg.Pipeline,
		pool:     NewPool(cfg.Workers),
		seq:      newSequencer(),
		batch:    batch,
		ctx:      ctx,
		cancel:   cancel,
		deferred: make(map[string]struct{}),
	}, nil
}

// TriggerFull submits a job reconciling every watch-enabled folder. It is
// rejected with ErrFullScanRunning while another full job is active.
func (s *Scheduler) TriggerFull(ctx context.Context, source jobs.Source) (jobs.Job, error) {
	folders, err := s.store.ListFolders(ctx)
	if err != nil {
		return jobs.Job{}, err
	}
	var roots []string
	for _, f := range folders {
		if f.WatchEnabled {
			roots = append(roots, f.Path)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return jobs.Job{}, unavailable()
	}
	if !s.fullRunning.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return jobs.Job{}, terrors.New(terrors.ErrCodeFullScanRunning,
			"a full index job is already running", nil).
			WithSuggestion("Wait for it to finish, or cancel it first")
	}
	job := s.registry.Create(jobs.ModeFull, source, roots)
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.JobsActive.Inc()
	go s.runJob(job, roots)
	return job, nil
}

// TriggerIncremental submits a job reconciling paths. Directories expand to
// the media files below them, on disk and in the store.
func (s *Scheduler) TriggerIncremental(ctx context.Context, paths []string, source jobs.Source) (jobs.Job, error) {
	if len(paths) == 0 {
		return jobs.Job{}, terrors.ValidationError("incremental index needs at least one path", nil)
	}
	canon := make([]string, 0, len(paths))
	for _, p := range paths {
		c, err := media.CanonicalPath(p)
		if err != nil {
			return jobs.Job{}, terrors.ValidationError("invalid path "+p, err)
		}
		canon = append(canon, c)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return jobs.Job{}, unavailable()
	}
	job := s.registry.Create(jobs.ModeIncremental, source, canon)
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.JobsActive.Inc()
	go s.runJob(job, canon)
	return job, nil
}

// HandleIntent applies one debounced watcher intent. File intents are
// dispatched straight into the pool, blocking while it is full; directory
// intents become an incremental job over the directory. The intent kind is
// advisory: every unit reconciles against what is on disk when it runs.
func (s *Scheduler) HandleIntent(ctx context.Context, in watcher.Intent) error {
	metrics.WatchIntents.WithLabelValues(in.Kind.String()).Inc()

	if in.IsDir {
		_, err := s.TriggerIncremental(ctx, []string{in.Path}, jobs.SourceWatch)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return unavailable()
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	folders, err := s.store.ListFolders(ctx)
	if err != nil {
		return err
	}
	t := target{path: in.Path, folder: folderFor(folders, in.Path)}
	if t.folder == nil {
		return nil
	}

	slog.Debug("intent_dispatched",
		slog.String("path", in.Path),
		slog.String("kind", in.Kind.String()),
		slog.Int("events", in.Events))
	return s.dispatch(t, "", &s.wg, func(out outcome) {
		s.record("", t.path, out, nil)
	})
}

// OnOverflow schedules a reconciliation of root after the watcher lost
// events. While a full job runs the rescan is deferred until it ends.
func (s *Scheduler) OnOverflow(ctx context.Context, root string) {
	metrics.WatchOverflows.Inc()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.fullRunning.Load() {
		s.deferred[root] = struct{}{}
		s.mu.Unlock()
		slog.Info("overflow_rescan_deferred", slog.String("root", root))
		return
	}
	s.mu.Unlock()

	job, err := s.TriggerIncremental(ctx, []string{root}, jobs.SourceOverflow)
	if err != nil {
		slog.Warn("overflow rescan not submitted",
			slog.String("root", root),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("overflow_rescan_submitted",
		slog.String("root", root),
		slog.String("job_id", job.ID))
}

// Cancel requests cancellation of a job.
func (s *Scheduler) Cancel(id string) (jobs.Job, error) {
	job, err := s.registry.Cancel(id)
	if err != nil {
		return job, err
	}
	slog.Info("index_job_cancel_requested",
		slog.String("job_id", id),
		slog.String("state", string(job.State)))
	return job, nil
}

// FullRunning reports whether a full job is active.
func (s *Scheduler) FullRunning() bool {
	return s.fullRunning.Load()
}

// Pool returns the shared worker pool.
func (s *Scheduler) Pool() *Pool {
	return s.pool
}

// Close stops dispatching, fails jobs that still had units to dispatch,
// and waits for in-flight units to finish or ctx to expire.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runJob(job jobs.Job, paths []string) {
	defer s.wg.Done()
	defer metrics.JobsActive.Dec()
	if job.Mode == jobs.ModeFull {
		defer s.endFull()
	}

	if !s.registry.Start(job.ID) {
		// cancelled while queued
		metrics.JobsTotal.WithLabelValues(string(job.Mode), string(jobs.StateCancelled)).Inc()
		return
	}
	start := time.Now()
	slog.Info("index_job_started",
		slog.String("job_id", job.ID),
		slog.String("mode", string(job.Mode)),
		slog.String("source", string(job.Source)),
		slog.Int("roots", len(paths)))

	sysErr := s.execute(job, paths)
	final := s.registry.Finish(job.ID, sysErr)
	metrics.JobsTotal.WithLabelValues(string(final.Mode), string(final.State)).Inc()

	if final.State == jobs.StateCompleted {
		s.markFoldersIndexed(paths)
	}

	attrs := []any{
		slog.String("job_id", job.ID),
		slog.String("state", string(final.State)),
		slog.Int("processed", final.Processed),
		slog.Int("skipped", final.Skipped),
		slog.Int("failed", final.Failed),
		slog.Duration("duration", time.Since(start)),
	}
	if sysErr != nil {
		slog.Error("index_job_failed", append(attrs, terrors.LogAttrs(sysErr)...)...)
		return
	}
	slog.Info("index_job_finished", attrs...)
}

// execute dispatches every target of a job and waits for the units. It
// returns the first system-level fault.
func (s *Scheduler) execute(job jobs.Job, paths []string) error {
	folders, err := s.store.ListFolders(s.ctx)
	if err != nil {
		return s.systemFault(err)
	}
	targets, err := expand(s.ctx, s.store, folders, paths)
	if err != nil {
		return s.systemFault(err)
	}

	var (
		wg    sync.WaitGroup
		fault faultOnce
	)
	stopped := func() bool {
		return fault.get() != nil || s.registry.CancelRequested(job.ID)
	}

dispatch:
	for start := 0; start < len(targets); start += s.batch {
		if stopped() {
			break
		}
		batch := targets[start:min(start+s.batch, len(targets))]
		s.registry.AddTotal(job.ID, len(batch))
		for _, t := range batch {
			if stopped() {
				break dispatch
			}
			err := s.dispatch(t, job.ID, &wg, func(out outcome) {
				s.record(job.ID, t.path, out, &fault)
			})
			if err != nil {
				fault.set(err)
				break dispatch
			}
		}
	}
	wg.Wait()
	return fault.get()
}

// dispatch takes a pool slot and a path ticket, then runs the unit in its
// own goroutine. The slot is taken before the ticket, so every unit waiting
// on a ticket is behind a unit that already holds a slot.
func (s *Scheduler) dispatch(t target, jobID string, wg *sync.WaitGroup, done func(outcome)) error {
	if err := s.pool.Acquire(s.ctx); err != nil {
		return err
	}
	wait, leave := s.seq.Enter(t.path)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.pool.Release()
		defer leave()

		<-wait
		if jobID != "" && s.registry.CancelRequested(jobID) {
			return
		}
		done(s.reconcile(s.ctx, t))
	}()
	return nil
}

// outcome is the result of one unit.
type outcome struct {
	action Action
	err    error
}

// reconcile brings the stored state of one path in line with the disk.
func (s *Scheduler) reconcile(ctx context.Context, t target) outcome {
	work := context.WithoutCancel(ctx)

	// The folder may have been removed or refiltered since the job expanded.
	if t.folder != nil {
		current, err := s.store.GetFolder(work, t.folder.ID)
		switch {
		case errors.Is(err, terrors.ErrNotFound):
			return outcome{action: ActionIgnore}
		case err != nil:
			return outcome{action: ActionSkip, err: err}
		}
		t.folder = current
	}

	modality, mime := media.Classify(t.path)
	if !admits(t.folder, modality) {
		return outcome{action: ActionIgnore}
	}

	stored, err := s.store.GetFileByPath(work, t.path)
	if err != nil {
		if !errors.Is(err, terrors.ErrNotFound) {
			return outcome{action: ActionSkip, err: err}
		}
		stored = nil
	}

	f := &store.MediaFile{
		Path:     t.path,
		FolderID: t.folder.ID,
		Modality: modality,
		MimeType: mime,
	}

	fp, err := s.pipeline.Fingerprint(ctx, t.path)
	if err != nil {
		return s.fail(ctx, f, ActionUpdate, err)
	}

	obs := observation{stored: stored, onDisk: fp}
	if stored != nil && fp != nil && stored.ContentHash == fp.Hash {
		_, err := s.store.GetEmbedding(work, stored.ID, modality, s.pipeline.ModelVersion())
		switch {
		case err == nil:
			obs.hasEmbedding = true
		case !errors.Is(err, terrors.ErrNotFound):
			return outcome{action: ActionSkip, err: err}
		}
	}

	action := decide(obs)
	switch action {
	case ActionSkip:
		return outcome{action: action}

	case ActionSoftDelete:
		_, err := s.store.SoftDelete(work, t.path)
		return outcome{action: action, err: err}

	case ActionRestore:
		ok, err := s.store.Restore(work, t.path, fp.Hash, s.pipeline.ModelVersion(), fp.ModTime)
		if err != nil || ok {
			return outcome{action: action, err: err}
		}
		// lost a race with a concurrent change; embed instead
		action = ActionUpdate
	}

	f.ContentHash = fp.Hash
	f.Size = fp.Size
	f.ModTime = fp.ModTime
	if action == ActionAdd {
		if err := s.store.EnsurePending(work, f); err != nil {
			return outcome{action: action, err: err}
		}
	}
	if err := s.pipeline.Index(ctx, f); err != nil {
		return s.fail(ctx, f, action, err)
	}
	return outcome{action: action}
}

// fail records a per-file failure on the file row. System-level faults and
// cancellation are passed through without touching the row. A folder
// removed while the unit ran turns the unit into an ignore.
func (s *Scheduler) fail(ctx context.Context, f *store.MediaFile, action Action, err error) outcome {
	if errors.Is(err, terrors.ErrFolderRemoved) {
		return outcome{action: ActionIgnore}
	}
	if terrors.IsFatal(err) || ctx.Err() != nil {
		return outcome{action: action, err: err}
	}
	mErr := s.store.MarkFailed(context.WithoutCancel(ctx), f, err.Error())
	switch {
	case errors.Is(mErr, terrors.ErrFolderRemoved):
		return outcome{action: ActionIgnore}
	case mErr != nil && terrors.IsFatal(mErr):
		return outcome{action: action, err: mErr}
	}
	return outcome{action: action, err: err}
}

// record updates job counters and metrics for one finished unit.
func (s *Scheduler) record(jobID, path string, out outcome, fault *faultOnce) {
	action := string(out.action)
	switch {
	case out.err == nil && out.action.changesState():
		s.registry.RecordProcessed(jobID)
		metrics.FilesProcessed.WithLabelValues(action, "ok").Inc()
		slog.Debug("index_file_done",
			slog.String("path", path),
			slog.String("action", action),
			slog.String("job_id", jobID))

	case out.err == nil:
		s.registry.RecordSkipped(jobID)
		metrics.FilesProcessed.WithLabelValues(action, "skipped").Inc()

	case errors.Is(out.err, context.Canceled):
		// shutting down; the unit did not finish and is not counted

	case terrors.IsFatal(out.err):
		metrics.FilesProcessed.WithLabelValues(action, "fatal").Inc()
		if fault != nil {
			fault.set(out.err)
			return
		}
		slog.Error("index_unit_fault",
			append([]any{slog.String("path", path)}, terrors.LogAttrs(out.err)...)...)

	default:
		s.registry.RecordFailed(jobID, path, out.err)
		metrics.FilesProcessed.WithLabelValues(action, "failed").Inc()
		slog.Warn("index_file_failed",
			slog.String("path", path),
			slog.String("job_id", jobID),
			slog.String("code", terrors.GetCode(out.err)),
			slog.String("error", out.err.Error()))
	}
}

// endFull clears the full-job flag and submits deferred overflow rescans.
func (s *Scheduler) endFull() {
	s.mu.Lock()
	roots := make([]string, 0, len(s.deferred))
	for r := range s.deferred {
		roots = append(roots, r)
	}
	s.deferred = make(map[string]struct{})
	s.fullRunning.Store(false)
	closed := s.closed
	s.mu.Unlock()

	if closed || len(roots) == 0 {
		return
	}
	sort.Strings(roots)
	if _, err := s.TriggerIncremental(context.Background(), roots, jobs.SourceOverflow); err != nil {
		slog.Warn("deferred overflow rescan not submitted", slog.String("error", err.Error()))
	}
}

// markFoldersIndexed stamps folders whose root was a job path.
func (s *Scheduler) markFoldersIndexed(paths []string) {
	ctx := context.WithoutCancel(s.ctx)
	folders, err := s.store.ListFolders(ctx)
	if err != nil {
		return
	}
	now := time.Now()
	for _, f := range folders {
		for _, p := range paths {
			if p == f.Path {
				if err := s.store.MarkFolderIndexed(ctx, f.ID, now); err != nil {
					slog.Debug("mark folder indexed failed", slog.String("error", err.Error()))
				}
				break
			}
		}
	}
}

// systemFault maps a dispatch-time error to a job-failing error.
func (s *Scheduler) systemFault(err error) error {
	if s.ctx.Err() != nil {
		return unavailable()
	}
	return err
}

func unavailable() error {
	return terrors.New(terrors.ErrCodeSchedulerUnavailable, "index scheduler is shut down", nil)
}

// faultOnce keeps the first system-level fault of a job.
type faultOnce struct {
	mu  sync.Mutex
	err error
}

func (f *faultOnce) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *faultOnce) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
