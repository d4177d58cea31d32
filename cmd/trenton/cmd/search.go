package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/trenton/internal/daemon"
	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/internal/search"
)

func newSimilarCmd() *cobra.Command {
	var topK int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "similar <file-id>",
		Short: "Find files similar to an indexed file",
		Long: `Find files of the same modality as an indexed file, ranked by
similarity. The file itself is excluded from the results.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "file id")
			if err != nil {
				return err
			}
			client, err := connect()
			if err != nil {
				return err
			}

			resp, err := client.SearchSimilar(cmd.Context(), id, topK)
			if err != nil {
				return err
			}
			return printResults(cmd, resp, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum results (default from config)")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		mediaPath  string
		modality   string
		topK       int
		threshold  float64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search --media <file>",
		Short: "Search the index with an audio or video file",
		Long: `Embed a media file and return the closest indexed files. The query file
does not need to be inside a watched folder.

Examples:
  trenton search --media clip.mp3
  trenton search --media clip.mp4 --modality audio --top-k 5 --threshold 0.6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if mediaPath == "" {
				return terrors.ValidationError("--media is required", nil)
			}
			abs, err := filepath.Abs(mediaPath)
			if err != nil {
				return terrors.ValidationError("invalid media path", err)
			}
			params := daemon.SearchParams{MediaPath: abs, TopK: topK}
			if modality != "" {
				m, err := media.ParseModality(modality)
				if err != nil {
					return terrors.ValidationError(err.Error(), err)
				}
				params.Modality = m
			}
			if cmd.Flags().Changed("threshold") {
				params.Threshold = &threshold
			}

			client, err := connect()
			if err != nil {
				return err
			}
			resp, err := client.Search(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printResults(cmd, resp, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&mediaPath, "media", "", "Audio or video file to search with")
	cmd.Flags().StringVarP(&modality, "modality", "m", "", "Modality to search (default: the query file's)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum results (default from config)")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "Minimum similarity score (default from config)")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func printResults(cmd *cobra.Command, resp *search.Response, jsonOutput bool) error {
	out := newWriter(cmd)
	if jsonOutput {
		return out.JSON(resp)
	}
	out.SearchResults(resp)
	return nil
}
