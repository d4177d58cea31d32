package mcp

import (
	"fmt"
	"sort"
	"strings"
)

// FormatSearchResults formats search output as markdown.
func FormatSearchResults(label string, out SearchOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No %s files found for %s (threshold %.2f)", out.Modality, label, out.Threshold)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for %s\n\n", label)
	fmt.Fprintf(&sb, "Found %d %s result", len(out.Results), out.Modality)
	if len(out.Results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range out.Results {
		formatResult(&sb, i+1, r)
	}

	if len(out.Warnings) > 0 {
		sb.WriteString("**Warnings:**\n")
		for _, w := range out.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}
	return sb.String()
}

// formatResult formats a single ranked match.
func formatResult(sb *strings.Builder, num int, r SearchResultOutput) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, r.Filename, r.Score)
	fmt.Fprintf(sb, "- id: %d\n- path: `%s`\n", r.FileID, r.Path)
	if r.Deleted {
		if r.DeletedAt != "" {
			fmt.Fprintf(sb, "- **deleted** at %s\n", r.DeletedAt)
		} else {
			sb.WriteString("- **deleted**\n")
		}
	}
	sb.WriteString("\n")
}

// FormatJobs formats index jobs as markdown.
func FormatJobs(out JobsOutput) string {
	if len(out.Jobs) == 0 {
		return "No index jobs."
	}

	var sb strings.Builder
	sb.WriteString("## Index Jobs\n\n")
	sb.WriteString("| ID | Mode | State | Source | Progress | Failed |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, j := range out.Jobs {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %d/%d (%.0f%%) | %d |\n",
			j.ID, j.Mode, j.State, j.Source, j.Processed, j.Total, j.ProgressPct, j.Failed)
	}
	for _, j := range out.Jobs {
		if j.SystemError != "" {
			fmt.Fprintf(&sb, "\nJob %s failed: %s\n", j.ID, j.SystemError)
		}
	}
	return sb.String()
}

// FormatFolders formats registered folders as markdown.
func FormatFolders(out FoldersOutput) string {
	if len(out.Folders) == 0 {
		return "No folders registered. Add one with `trenton folder add <path>`."
	}

	var sb strings.Builder
	sb.WriteString("## Folders\n\n")
	sb.WriteString("| ID | Path | Modality | Watching | Last indexed |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, f := range out.Folders {
		last := f.LastIndexedAt
		if last == "" {
			last = "never"
		}
		fmt.Fprintf(&sb, "| %d | `%s` | %s | %t | %s |\n", f.ID, f.Path, f.Modality, f.Watching, last)
	}
	return sb.String()
}

// FormatIndexStatus formats health and counters as markdown.
func FormatIndexStatus(out IndexStatusOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Index Status: %s\n\n", out.Health)
	fmt.Fprintf(&sb, "- folders: %d\n- files: %d (%d deleted, %d failed)\n", out.Folders, out.Files, out.DeletedFiles, out.FailedFiles)
	for _, m := range sortedKeys(out.FilesByModality) {
		fmt.Fprintf(&sb, "  - %s: %d\n", m, out.FilesByModality[m])
	}
	fmt.Fprintf(&sb, "- active jobs: %d\n", out.ActiveJobs)
	if out.FullScanRunning {
		sb.WriteString("- full scan running\n")
	}
	fmt.Fprintf(&sb, "- model: %s\n", out.ModelVersion)
	for _, name := range sortedKeys(out.Checks) {
		fmt.Fprintf(&sb, "- check %s: %s\n", name, out.Checks[name])
	}
	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
