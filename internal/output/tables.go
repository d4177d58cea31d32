package output

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Aman-CERP/trenton/internal/app"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/search"
	"github.com/Aman-CERP/trenton/internal/store"
)

// Table prints rows under headers with a rounded border.
func (w *Writer) Table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(w.styles.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return w.styles.Header.Padding(0, 1)
			}
			return w.styles.Cell
		})
	_, _ = fmt.Fprintln(w.out, t.String())
}

// Folders prints registered folders.
func (w *Writer) Folders(folders []store.Folder) {
	if len(folders) == 0 {
		w.Status("", "No folders registered. Add one with: trenton folder add <path>")
		return
	}
	rows := make([][]string, 0, len(folders))
	for _, f := range folders {
		watch := "on"
		if !f.WatchEnabled {
			watch = "paused"
		}
		rows = append(rows, []string{
			strconv.FormatInt(f.ID, 10),
			f.Path,
			string(f.Filter),
			watch,
			formatTime(f.LastIndexedAt),
		})
	}
	w.Table([]string{"ID", "PATH", "MODALITY", "WATCH", "LAST INDEXED"}, rows)
}

// Jobs prints a summary line per job.
func (w *Writer) Jobs(list []jobs.Job) {
	if len(list) == 0 {
		w.Status("", "No index jobs.")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, j := range list {
		rows = append(rows, []string{
			j.ID,
			string(j.Mode),
			string(j.State),
			string(j.Source),
			fmt.Sprintf("%d/%d", j.Processed, j.Total),
			strconv.Itoa(j.Failed),
			j.SubmittedAt.Local().Format(time.DateTime),
		})
	}
	w.Table([]string{"ID", "MODE", "STATE", "SOURCE", "DONE", "FAILED", "SUBMITTED"}, rows)
}

// Job prints one job in detail, including per-file failures.
func (w *Writer) Job(j jobs.Job) {
	w.Header("Job " + j.ID)
	w.KeyValue("Mode", j.Mode)
	w.KeyValue("State", j.State)
	w.KeyValue("Source", j.Source)
	if len(j.Roots) > 0 {
		w.KeyValue("Roots", fmt.Sprint(j.Roots))
	}
	w.KeyValue("Progress", fmt.Sprintf("%d/%d (%.0f%%)", j.Processed, j.Total, j.ProgressPct))
	w.KeyValue("Failed", j.Failed)
	w.KeyValue("Skipped", j.Skipped)
	w.KeyValue("Submitted", j.SubmittedAt.Local().Format(time.DateTime))
	if j.StartedAt != nil {
		w.KeyValue("Started", formatTime(j.StartedAt))
	}
	if j.FinishedAt != nil {
		w.KeyValue("Finished", formatTime(j.FinishedAt))
	}
	if j.CancelRequested {
		w.KeyValue("Cancel", "requested")
	}
	if j.SystemError != "" {
		w.Error(j.SystemError)
	}
	if len(j.Errors) > 0 {
		w.Newline()
		rows := make([][]string, 0, len(j.Errors))
		for _, e := range j.Errors {
			rows = append(rows, []string{e.Path, e.Code, e.Message})
		}
		w.Table([]string{"FILE", "CODE", "REASON"}, rows)
	}
}

// SearchResults prints ranked matches followed by deletion warnings.
func (w *Writer) SearchResults(resp *search.Response) {
	if len(resp.Results) == 0 {
		w.Statusf("", "No %s matches above threshold %.2f.", resp.Modality, resp.Threshold)
		return
	}
	rows := make([][]string, 0, len(resp.Results))
	for i, r := range resp.Results {
		name := r.Filename
		if r.Deleted {
			name += " (deleted)"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(r.FileID, 10),
			fmt.Sprintf("%.4f", r.Score),
			name,
			r.Path,
		})
	}
	w.Table([]string{"#", "FILE ID", "SCORE", "NAME", "PATH"}, rows)
	for _, warning := range resp.Warnings {
		w.Warning(warning)
	}
}

// Stats prints store and scheduler counters.
func (w *Writer) Stats(s *app.StatsReport) {
	w.Header("Index")
	if s.Stats != nil {
		w.KeyValue("Folders", s.Folders)
		w.KeyValue("Files", s.Files)
		modalities := make([]string, 0, len(s.FilesByModality))
		for m := range s.FilesByModality {
			modalities = append(modalities, m)
		}
		sort.Strings(modalities)
		for _, m := range modalities {
			w.KeyValue("  "+m, s.FilesByModality[m])
		}
		w.KeyValue("Deleted", s.DeletedFiles)
		w.KeyValue("Failed", s.FailedFiles)
		w.KeyValue("Embeddings", s.Embeddings)
	}
	w.KeyValue("Model", s.ModelVersion)
	w.Newline()
	w.Header("Scheduler")
	w.KeyValue("Active jobs", s.ActiveJobs)
	w.KeyValue("Workers", fmt.Sprintf("%d busy of %d", s.WorkersBusy, s.Workers))
	w.KeyValue("Full scan", s.FullRunning)
	w.KeyValue("Watched roots", len(s.WatchedRoots))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
