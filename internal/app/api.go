package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/internal/metrics"
	"github.com/Aman-CERP/trenton/internal/search"
	"github.com/Aman-CERP/trenton/internal/store"
)

// AddFolderResult is the outcome of AddFolder.
type AddFolderResult struct {
	Folder *store.Folder `json:"folder"`
	Job    jobs.Job      `json:"job"`
}

// AddFolder registers path as a watched root restricted to filter ("all",
// "audio" or "video"), starts watching it and submits an incremental job
// over it.
func (a *App) AddFolder(ctx context.Context, path, filter string) (*AddFolderResult, error) {
	root, err := media.CanonicalPath(path)
	if err != nil {
		return nil, terrors.ValidationError("invalid folder path", err)
	}
	if err := media.ValidateDir(root); err != nil {
		return nil, err
	}
	f, err := media.ParseFilter(filter)
	if err != nil {
		return nil, terrors.ValidationError(err.Error(), err)
	}

	folder, err := a.store.CreateFolder(ctx, root, f)
	if err != nil {
		return nil, err
	}
	if err := a.watcher.AddRoot(root); err != nil {
		_ = a.store.DeleteFolder(context.WithoutCancel(ctx), folder.ID)
		return nil, terrors.New(terrors.ErrCodeTransientIO, "failed to watch folder "+root, err)
	}
	metrics.WatchedRoots.Set(float64(len(a.watcher.Roots())))

	job, err := a.sched.TriggerIncremental(ctx, []string{root}, jobs.SourceFolder)
	if err != nil {
		return nil, err
	}

	slog.Info("folder_added",
		slog.Int64("folder_id", folder.ID),
		slog.String("path", root),
		slog.String("filter", string(f)),
		slog.String("job_id", job.ID))
	return &AddFolderResult{Folder: folder, Job: job}, nil
}

// RemoveFolderResult is the outcome of RemoveFolder.
type RemoveFolderResult struct {
	FolderID     int64  `json:"folder_id"`
	Path         string `json:"path"`
	FilesDeleted int64  `json:"files_deleted"`
}

// RemoveFolder stops watching a folder, soft-deletes the files it owns and
// removes the folder. Files still covered by another folder stay live.
// Incremental jobs confined to the folder are cancelled; units already
// running cannot write under it once the folder is gone.
func (a *App) RemoveFolder(ctx context.Context, id int64) (*RemoveFolderResult, error) {
	folder, err := a.store.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	folders, err := a.store.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	var keep []string
	for _, f := range folders {
		if f.ID != id && (within(f.Path, folder.Path) || within(folder.Path, f.Path)) {
			keep = append(keep, f.Path)
		}
	}

	if err := a.watcher.RemoveRoot(folder.Path); err != nil {
		slog.Warn("unwatch failed", slog.String("path", folder.Path), slog.String("error", err.Error()))
	}
	metrics.WatchedRoots.Set(float64(len(a.watcher.Roots())))

	_, n, err := a.store.RemoveFolder(ctx, id, keep)
	if err != nil {
		return nil, err
	}
	cancelled := a.cancelJobsUnder(folder.Path, keep)

	slog.Info("folder_removed",
		slog.Int64("folder_id", id),
		slog.String("path", folder.Path),
		slog.Int64("files_deleted", n),
		slog.Int("jobs_cancelled", cancelled))
	return &RemoveFolderResult{FolderID: id, Path: folder.Path, FilesDeleted: n}, nil
}

// cancelJobsUnder cancels unfinished incremental jobs whose roots all lie
// below root and outside every root in keep. It returns how many it cancelled.
func (a *App) cancelJobsUnder(root string, keep []string) int {
	n := 0
	for _, j := range a.registry.List() {
		if j.State.Finished() || j.Mode != jobs.ModeIncremental || !confined(j.Roots, root, keep) {
			continue
		}
		if _, err := a.sched.Cancel(j.ID); err != nil {
			slog.Debug("cancel on folder removal failed",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()))
			continue
		}
		n++
	}
	return n
}

// confined reports whether every path is below root and none is covered
// by a root in keep.
func confined(paths []string, root string, keep []string) bool {
	if len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		if !within(p, root) || covered(keep, p) {
			return false
		}
	}
	return true
}

// ListFolders returns every folder.
func (a *App) ListFolders(ctx context.Context) ([]store.Folder, error) {
	folders, err := a.store.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	if folders == nil {
		folders = []store.Folder{}
	}
	return folders, nil
}

// GetFolder returns one folder.
func (a *App) GetFolder(ctx context.Context, id int64) (*store.Folder, error) {
	return a.store.GetFolder(ctx, id)
}

// SetFolderWatch pauses or resumes watching a folder without removing it.
// Resuming submits an incremental job over the root to catch up.
func (a *App) SetFolderWatch(ctx context.Context, id int64, enabled bool) (*store.Folder, error) {
	folder, err := a.store.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if folder.WatchEnabled == enabled {
		return folder, nil
	}
	if err := a.store.SetFolderWatch(ctx, id, enabled); err != nil {
		return nil, err
	}
	folder.WatchEnabled = enabled

	if enabled {
		if err := a.watcher.AddRoot(folder.Path); err != nil {
			return nil, terrors.New(terrors.ErrCodeTransientIO, "failed to watch folder "+folder.Path, err)
		}
		if _, err := a.sched.TriggerIncremental(ctx, []string{folder.Path}, jobs.SourceFolder); err != nil {
			return nil, err
		}
	} else if err := a.watcher.RemoveRoot(folder.Path); err != nil {
		slog.Warn("unwatch failed", slog.String("path", folder.Path), slog.String("error", err.Error()))
	}
	metrics.WatchedRoots.Set(float64(len(a.watcher.Roots())))

	slog.Info("folder_watch_changed",
		slog.Int64("folder_id", id),
		slog.Bool("enabled", enabled))
	return folder, nil
}

// TriggerIndex submits an index job and returns it without waiting. An
// empty mode means full when no paths are given and incremental otherwise.
func (a *App) TriggerIndex(ctx context.Context, mode jobs.Mode, paths []string) (jobs.Job, error) {
	if mode == "" {
		mode = jobs.ModeFull
		if len(paths) > 0 {
			mode = jobs.ModeIncremental
		}
	}
	switch mode {
	case jobs.ModeFull:
		if len(paths) > 0 {
			return jobs.Job{}, terrors.ValidationError("a full index takes no paths", nil).
				WithSuggestion("Use incremental mode to index specific paths")
		}
		return a.sched.TriggerFull(ctx, jobs.SourceAPI)
	case jobs.ModeIncremental:
		return a.sched.TriggerIncremental(ctx, paths, jobs.SourceAPI)
	default:
		return jobs.Job{}, terrors.ValidationError(
			fmt.Sprintf("unknown index mode %q (use full or incremental)", mode), nil)
	}
}

// GetJobStatus returns one job.
func (a *App) GetJobStatus(id string) (jobs.Job, error) {
	return a.registry.Get(id)
}

// ListJobs returns every retained job, newest first.
func (a *App) ListJobs() []jobs.Job {
	return a.registry.List()
}

// CancelJob requests cancellation. Queued jobs are cancelled at once;
// running jobs stop dispatching and finish their in-flight units.
func (a *App) CancelJob(id string) (jobs.Job, error) {
	return a.sched.Cancel(id)
}

// Search runs a vector query.
func (a *App) Search(ctx context.Context, q search.Query) (*search.Response, error) {
	return a.search.Search(ctx, q)
}

// SearchSimilarTo finds files similar to an indexed file.
func (a *App) SearchSimilarTo(ctx context.Context, fileID int64, topK int) (*search.Response, error) {
	return a.search.SearchSimilarTo(ctx, fileID, topK)
}

// SearchByMedia embeds data and searches target.
func (a *App) SearchByMedia(ctx context.Context, data []byte, queryModality, target media.Modality, topK int, threshold *float64) (*search.Response, error) {
	return a.search.SearchByMedia(ctx, data, queryModality, target, topK, threshold)
}

// SearchByMediaFile reads the media file at path, classifies it by
// extension and searches target with it.
func (a *App) SearchByMediaFile(ctx context.Context, path string, target media.Modality, topK int, threshold *float64) (*search.Response, error) {
	modality, _ := media.Classify(path)
	if !modality.Searchable() {
		return nil, terrors.New(terrors.ErrCodeUnsupportedFormat, "not an audio or video file: "+path, nil)
	}
	data, _, err := media.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.search.SearchByMedia(ctx, data, modality, target, topK, threshold)
}

// within reports whether path is root or lies below it.
func within(path, root string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// covered reports whether path lies within any of roots.
func covered(roots []string, path string) bool {
	for _, r := range roots {
		if within(path, r) {
			return true
		}
	}
	return false
}
