package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
)

func newFolderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage watched media folders",
		Long: `Register, remove and list the folders Trenton watches.

Examples:
  trenton folder add ~/Music --modality audio
  trenton folder ls
  trenton folder rm 3`,
	}

	cmd.AddCommand(newFolderAddCmd())
	cmd.AddCommand(newFolderRemoveCmd())
	cmd.AddCommand(newFolderListCmd())

	return cmd
}

func newFolderAddCmd() *cobra.Command {
	var modality string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a folder and index it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return terrors.ValidationError("invalid path", err)
			}

			res, err := client.AddFolder(cmd.Context(), path, modality)
			if err != nil {
				return err
			}

			out := newWriter(cmd)
			if jsonOutput {
				return out.JSON(res)
			}
			out.Successf("Registered folder %d: %s", res.Folder.ID, res.Folder.Path)
			out.Status("", fmt.Sprintf("Indexing job %s %s", res.Job.ID, res.Job.State))
			return nil
		},
	}

	cmd.Flags().StringVarP(&modality, "modality", "m", "all", "Files to index: all, audio or video")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newFolderRemoveCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "rm <folder-id>",
		Aliases: []string{"remove"},
		Short:   "Unregister a folder and mark its files deleted",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "folder id")
			if err != nil {
				return err
			}
			client, err := connect()
			if err != nil {
				return err
			}

			res, err := client.RemoveFolder(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := newWriter(cmd)
			if jsonOutput {
				return out.JSON(res)
			}
			out.Successf("Removed folder %d: %s", res.FolderID, res.Path)
			out.Status("", fmt.Sprintf("%d files marked deleted", res.FilesDeleted))
			return nil
		},
	}

	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newFolderListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List registered folders",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect()
			if err != nil {
				return err
			}

			folders, err := client.ListFolders(cmd.Context())
			if err != nil {
				return err
			}

			out := newWriter(cmd)
			if jsonOutput {
				return out.JSON(folders)
			}
			out.Folders(folders)
			return nil
		},
	}

	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

// parseID parses a positive integer identifier.
func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, terrors.ValidationError(fmt.Sprintf("%s must be a positive integer, got %q", what, s), err)
	}
	return id, nil
}
