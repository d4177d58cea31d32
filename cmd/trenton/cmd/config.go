package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/trenton/configs"
	"github.com/Aman-CERP/trenton/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/trenton/config.yaml)
  3. --config file
  4. Environment variables (TRENTON_*)`,
		Example: `  # Create user config from template
  trenton config init

  # Show effective configuration
  trenton config show

  # Print user config file path
  trenton config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newWriter(cmd)
			path := config.GetUserConfigPath()

			if _, err := os.Stat(path); err == nil {
				if !force {
					out.Warning("User configuration already exists")
					out.Statusf("", "Location: %s", path)
					out.Status("", "Use --force to replace it (the old file is kept as .bak)")
					return nil
				}
				if err := os.Rename(path, path+".bak"); err != nil {
					return fmt.Errorf("failed to back up config: %w", err)
				}
				out.Statusf("", "Backup: %s.bak", path)
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			out.Success("Created user configuration")
			out.Statusf("", "Location: %s", path)
			out.Status("", "Run 'trenton config show' to verify")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing configuration")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			render := cfg.YAML
			if jsonOutput {
				render = cfg.JSON
			}
			text, err := render()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}

	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
