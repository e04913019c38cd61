// Package cmd provides the CLI commands for noterag.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/noterag/noterag/internal/logging"
	"github.com/noterag/noterag/internal/profiling"
	"github.com/noterag/noterag/pkg/version"
)

// Profiling flags
var (
	profileCPU string
	profileMem string
	profiler   = profiling.NewProfiler()
	cpuCleanup func()
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// configPath is the --config persistent flag, empty for the default
// lookup (~/.config/noterag/config.yaml, then environment).
var configPath string

// NewRootCmd creates the root command for the noterag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "noterag",
		Short: "Local-first RAG engine for personal markdown notes",
		Long: `NoteRAG indexes markdown vaults (work and personal) into a hybrid
vector + keyword index and answers questions over them.

It serves an HTTP API, an MCP server for AI assistants, and a set of
CLI commands for indexing and searching directly.

Run 'noterag index' once, then 'noterag search' or 'noterag ask'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("noterag version {{.Version}}\n")

	// Persistent flags shared by every subcommand
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.config/noterag/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.noterag/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	// Engine commands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newIndexCmd())

	// Query commands
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newPersonCmd())
	cmd.AddCommand(newActionsCmd())

	// Diagnostics
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())

	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts CPU profiling and debug logging if
// the flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	return nil
}

// stopProfilingAndLogging stops profiling and logging, and writes the
// memory profile if requested.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
