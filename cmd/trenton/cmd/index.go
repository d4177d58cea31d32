package cmd

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/trenton/internal/daemon"
	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/output"
)

const jobPollInterval = 250 * time.Millisecond

func newIndexCmd() *cobra.Command {
	var full, wait, jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index [paths...]",
		Short: "Reconcile the index with disk",
		Long: `Submit an index job. With paths, only those files are reconciled
(incremental). With --full or no paths, every watched folder is rescanned;
only one full scan runs at a time.

Examples:
  trenton index --full
  trenton index ~/Music/new-track.mp3 --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if full && len(args) > 0 {
				return terrors.ValidationError("--full rescans every folder and takes no paths", nil)
			}
			mode := jobs.ModeIncremental
			if full || len(args) == 0 {
				mode = jobs.ModeFull
			}
			paths := make([]string, 0, len(args))
			for _, p := range args {
				abs, err := filepath.Abs(p)
				if err != nil {
					return terrors.ValidationError("invalid path", err)
				}
				paths = append(paths, abs)
			}

			client, err := connect()
			if err != nil {
				return err
			}
			job, err := client.TriggerIndex(cmd.Context(), mode, paths)
			if err != nil {
				return err
			}

			out := newWriter(cmd)
			if wait {
				if job, err = waitForJob(cmd.Context(), client, job.ID, out, !jsonOutput); err != nil {
					return err
				}
			}
			if jsonOutput {
				return out.JSON(job)
			}
			if !wait {
				out.Successf("Submitted %s job %s", job.Mode, job.ID)
				out.Status("", "Follow it with: trenton jobs "+job.ID)
				return nil
			}
			out.Job(job)
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Rescan every watched folder")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish, showing progress")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

// waitForJob polls until the job reaches a terminal state.
func waitForJob(ctx context.Context, client *daemon.Client, id string, out *output.Writer, progress bool) (jobs.Job, error) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for {
		job, err := client.JobStatus(ctx, id)
		if err != nil {
			return jobs.Job{}, err
		}
		if progress && job.Total > 0 {
			out.Progress(job.Processed+job.Failed+job.Skipped, job.Total, string(job.State))
		}
		if job.State.Finished() {
			if progress && job.Total > 0 && job.Processed+job.Failed+job.Skipped < job.Total {
				out.ProgressDone()
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newJobsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "jobs [job-id]",
		Short: "List index jobs or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			out := newWriter(cmd)

			if len(args) == 1 {
				job, err := client.JobStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return out.JSON(job)
				}
				out.Job(job)
				return nil
			}

			list, err := client.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return out.JSON(list)
			}
			out.Jobs(list)
			return nil
		},
	}

	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a queued or running job",
		Long: `Request cancellation of a job. Files already being embedded finish;
the job stops before dispatching more and ends as cancelled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			job, err := client.CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			newWriter(cmd).Successf("Cancellation requested for job %s (%s)", job.ID, job.State)
			return nil
		},
	}
}
