package cmd

import (
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index and scheduler counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := newWriter(cmd)
			if jsonOutput {
				return out.JSON(stats)
			}
			out.Stats(stats)
			return nil
		},
	}

	addJSONFlag(cmd, &jsonOutput)
	return cmd
}
