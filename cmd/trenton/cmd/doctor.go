package cmd

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/trenton/internal/app"
	"github.com/Aman-CERP/trenton/internal/config"
	"github.com/Aman-CERP/trenton/internal/embed"
	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/output"
	"github.com/Aman-CERP/trenton/internal/preflight"
)

// ErrPreflightFailed is returned when a required host check fails.
var ErrPreflightFailed = terrors.New(terrors.ErrCodeConfigInvalid, "system check failed", nil).
	WithSuggestion("Run 'trenton doctor' for details")

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this host can run the daemon",
		Long: `Check the data directory, free disk space, open-file and inotify limits,
and whether the configured embedder answers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := app.NewEmbedder(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			checker := newChecker(cfg, e)
			results := checker.RunAll(cmd.Context())

			out := newWriter(cmd)
			if jsonOutput {
				return out.JSON(struct {
					Status string                  `json:"status"`
					Checks []preflight.CheckResult `json:"checks"`
				}{checker.SummaryStatus(results), results})
			}
			printChecks(out, results)
			out.Newline()
			out.KeyValue("Status", checker.SummaryStatus(results))
			if checker.HasCriticalFailures(results) {
				return ErrPreflightFailed
			}
			return nil
		},
	}

	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newChecker(cfg *config.Config, e embed.Embedder) *preflight.Checker {
	return preflight.New(filepath.Dir(cfg.Store.Path), preflight.WithEmbedder(e))
}

func printChecks(out *output.Writer, results []preflight.CheckResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Name, r.Status.String(), r.Message, r.Details})
	}
	out.Table([]string{"CHECK", "STATUS", "RESULT", "DETAILS"}, rows)
}

// runPreflight logs every check and fails when a required one did.
func runPreflight(ctx context.Context, cfg *config.Config, e embed.Embedder) error {
	checker := newChecker(cfg, e)
	results := checker.RunAll(ctx)
	for _, r := range results {
		level := slog.LevelDebug
		if r.Status != preflight.StatusPass {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "preflight_check",
			slog.String("check", r.Name),
			slog.String("status", r.Status.String()),
			slog.String("message", r.Message))
	}
	if checker.HasCriticalFailures(results) {
		return ErrPreflightFailed
	}
	return nil
}
