package mcp

import (
	"time"

	"github.com/Aman-CERP/trenton/internal/app"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/search"
	"github.com/Aman-CERP/trenton/internal/store"
)

// SearchSimilarInput defines the input schema for the search_similar tool.
type SearchSimilarInput struct {
	FileID int64 `json:"file_id" jsonschema:"id of an indexed file to find neighbours of"`
	TopK   int   `json:"top_k,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchMediaInput defines the input schema for the search_media tool.
type SearchMediaInput struct {
	Path      string   `json:"path" jsonschema:"absolute path of an audio or video file to use as the query"`
	Modality  string   `json:"modality,omitempty" jsonschema:"modality to search: audio or video, default the query file's own"`
	TopK      int      `json:"top_k,omitempty" jsonschema:"maximum number of results, default 10"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum similarity score kept"`
}

// SearchOutput defines the output schema for the search tools.
type SearchOutput struct {
	Results   []SearchResultOutput `json:"results" jsonschema:"matches ranked by score, best first"`
	Modality  string               `json:"modality"`
	TopK      int                  `json:"top_k"`
	Threshold float64              `json:"threshold"`
	Warnings  []string             `json:"warnings,omitempty" jsonschema:"one message per newly reported deleted match"`
}

// SearchResultOutput is a single ranked match.
type SearchResultOutput struct {
	FileID    int64   `json:"file_id"`
	Path      string  `json:"path"`
	Filename  string  `json:"filename"`
	Modality  string  `json:"modality"`
	Score     float64 `json:"score" jsonschema:"cosine similarity between -1 and 1"`
	Deleted   bool    `json:"deleted" jsonschema:"true when the file is gone from disk"`
	DeletedAt string  `json:"deleted_at,omitempty"`
}

// TriggerIndexInput defines the input schema for the trigger_index tool.
type TriggerIndexInput struct {
	Mode  string   `json:"mode,omitempty" jsonschema:"full or incremental, default incremental when paths are given and full otherwise"`
	Paths []string `json:"paths,omitempty" jsonschema:"files or directories to reindex in incremental mode"`
}

// JobStatusInput defines the input schema for the job_status tool.
type JobStatusInput struct {
	ID string `json:"id,omitempty" jsonschema:"job id; empty lists every retained job"`
}

// JobsOutput defines the output schema for the trigger_index and
// job_status tools.
type JobsOutput struct {
	Jobs []JobOutput `json:"jobs"`
}

// JobOutput describes one index job.
type JobOutput struct {
	ID          string   `json:"id"`
	Mode        string   `json:"mode"`
	State       string   `json:"state"`
	Source      string   `json:"source"`
	Roots       []string `json:"roots,omitempty"`
	SubmittedAt string   `json:"submitted_at"`
	FinishedAt  string   `json:"finished_at,omitempty"`
	Total       int      `json:"total"`
	Processed   int      `json:"processed"`
	Failed      int      `json:"failed"`
	Skipped     int      `json:"skipped"`
	ProgressPct float64  `json:"progress_pct"`
	SystemError string   `json:"system_error,omitempty"`
	FileErrors  int      `json:"file_errors" jsonschema:"number of files that failed with a recorded reason"`
}

// ListFoldersInput defines the input schema for the list_folders tool (no parameters).
type ListFoldersInput struct{}

// FoldersOutput defines the output schema for the list_folders tool.
type FoldersOutput struct {
	Folders []FolderOutput `json:"folders"`
}

// FolderOutput describes one registered folder.
type FolderOutput struct {
	ID            int64  `json:"id"`
	Path          string `json:"path"`
	Modality      string `json:"modality"`
	Watching      bool   `json:"watching"`
	LastIndexedAt string `json:"last_indexed_at,omitempty"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Health          string            `json:"health" jsonschema:"healthy, degraded or unhealthy"`
	Checks          map[string]string `json:"checks"`
	Folders         int               `json:"folders"`
	Files           int               `json:"files"`
	DeletedFiles    int               `json:"deleted_files"`
	FailedFiles     int               `json:"failed_files"`
	FilesByModality map[string]int    `json:"files_by_modality"`
	ActiveJobs      int               `json:"active_jobs"`
	FullScanRunning bool              `json:"full_scan_running"`
	ModelVersion    string            `json:"model_version"`
}

func toSearchOutput(r *search.Response) SearchOutput {
	out := SearchOutput{
		Results:   make([]SearchResultOutput, 0, len(r.Results)),
		Modality:  string(r.Modality),
		TopK:      r.TopK,
		Threshold: r.Threshold,
		Warnings:  r.Warnings,
	}
	for _, res := range r.Results {
		out.Results = append(out.Results, SearchResultOutput{
			FileID:    res.FileID,
			Path:      res.Path,
			Filename:  res.Filename,
			Modality:  string(res.Modality),
			Score:     res.Score,
			Deleted:   res.Deleted,
			DeletedAt: formatTime(res.DeletedAt),
		})
	}
	return out
}

func toJobOutput(j jobs.Job) JobOutput {
	return JobOutput{
		ID:          j.ID,
		Mode:        string(j.Mode),
		State:       string(j.State),
		Source:      string(j.Source),
		Roots:       j.Roots,
		SubmittedAt: j.SubmittedAt.Format(time.RFC3339),
		FinishedAt:  formatTime(j.FinishedAt),
		Total:       j.Total,
		Processed:   j.Processed,
		Failed:      j.Failed,
		Skipped:     j.Skipped,
		ProgressPct: j.ProgressPct,
		SystemError: j.SystemError,
		FileErrors:  len(j.Errors),
	}
}

func toFolderOutput(f store.Folder) FolderOutput {
	return FolderOutput{
		ID:            f.ID,
		Path:          f.Path,
		Modality:      string(f.Filter),
		Watching:      f.WatchEnabled,
		LastIndexedAt: formatTime(f.LastIndexedAt),
	}
}

func toIndexStatus(h app.HealthReport, s *app.StatsReport) IndexStatusOutput {
	out := IndexStatusOutput{
		Health:          h.Status,
		Checks:          h.Checks,
		ActiveJobs:      s.ActiveJobs,
		FullScanRunning: s.FullRunning,
		ModelVersion:    s.ModelVersion,
	}
	if s.Stats != nil {
		out.Folders = s.Folders
		out.Files = s.Files
		out.DeletedFiles = s.DeletedFiles
		out.FailedFiles = s.FailedFiles
		out.FilesByModality = s.FilesByModality
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
