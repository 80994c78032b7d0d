package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fuzzysearch/configs"
	"github.com/Aman-CERP/fuzzysearch/internal/config"
	"github.com/Aman-CERP/fuzzysearch/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage fuzzysearch configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/fuzzysearch/config.yaml)
  3. Project config (.fuzzysearch.yaml)
  4. Environment variables (FUZZYSEARCH_*)
  5. Command-line flags`,
		Example: `  # Create user config from template
  fuzzysearch config init

  # Create .fuzzysearch.yaml in the current directory
  fuzzysearch config init --project

  # Show effective configuration
  fuzzysearch config show`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Create the user configuration file, or with --project the project file
.fuzzysearch.yaml in the current directory.

With --force an existing user config is backed up before it is replaced.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, project, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Write .fuzzysearch.yaml in the current directory")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the configuration after merging defaults, files and environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func runConfigInit(cmd *cobra.Command, project, force bool) error {
	out := output.New(cmd.OutOrStdout())

	configPath := config.GetUserConfigPath()
	if project {
		configPath = config.ProjectConfigFile
	}

	if _, err := os.Stat(configPath); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", configPath)
			out.Status("💡", "Use --force to replace it")
			return nil
		}
		if !project {
			backupPath, err := config.BackupUserConfig()
			if err != nil {
				return fmt.Errorf("failed to backup config: %w", err)
			}
			out.Statusf("💾", "Backup: %s", backupPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(configs.ConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	if jsonOutput {
		data, err := cfg.JSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
