package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noterag/noterag/configs"
	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the noterag configuration file.

The configuration holds the vault roots, the embedding and rerank
backends, the answer gateway, and search tuning.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. Config file (~/.config/noterag/config.yaml)
  3. Environment variables (NOTERAG_*, OLLAMA_URL, CLAWDBOT_*)`,
		Example: `  # Create a starter config from the template
  noterag config init

  # Show effective configuration (merged from all sources)
  noterag config show

  # Print the config file path
  noterag config path`,
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
		Short: "Create the configuration file",
		Long: `Create the configuration file from the annotated template.

The file is created at ~/.config/noterag/config.yaml (or under
$XDG_CONFIG_HOME if set). Pass --config to choose another location.`,
		Example: `  # Create the config file
  noterag config init

  # Overwrite an existing file
  noterag config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the configuration after merging all sources.

By default the merged view is shown: defaults, then the config file,
then environment variables. Use --source to inspect one layer.`,
		Example: `  # Show merged configuration
  noterag config show

  # Show as JSON
  noterag config show --json

  # Show only the file contents merged over defaults
  noterag config show --source file`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, file, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), configFileTarget())
			return nil
		},
	}
}

// configFileTarget resolves where the config file lives: the --config
// flag when given, otherwise the default location.
func configFileTarget() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	target := configFileTarget()

	if _, err := os.Stat(target); err == nil && !force {
		out.Warning("Configuration already exists")
		out.Statusf("📁", "Location: %s", target)
		out.Newline()
		out.Status("💡", "Use --force to overwrite with the template")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", target)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Set vaults.work and vaults.personal to your note folders")
	out.Status("", "  2. Run 'noterag doctor' to verify the setup")
	out.Status("", "  3. Run 'noterag index' to build the indexes")

	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var (
		cfg        *config.Config
		sourceDesc string
	)

	switch source {
	case "merged":
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		sourceDesc = "merged (defaults + file + env)"

	case "file":
		target := configFileTarget()
		if _, err := os.Stat(target); err != nil {
			out.Warning("No configuration file found")
			out.Statusf("📁", "Expected at: %s", target)
			out.Status("💡", "Run 'noterag config init' to create one")
			return nil
		}

		cfg = config.NewConfig()
		data, err := os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		sourceDesc = fmt.Sprintf("file (%s)", target)

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (built-in)"

	default:
		return fmt.Errorf("invalid source: %s (use: merged, file, defaults)", source)
	}

	// Never print the gateway token.
	if cfg.Answer.Token != "" {
		cfg.Answer.Token = "[redacted]"
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out.Statusf("📋", "Configuration source: %s", sourceDesc)
	out.Newline()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	return nil
}
