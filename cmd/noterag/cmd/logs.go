package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View noterag logs",
		Long: `View and tail the noterag log file.

By default, shows the last 50 lines. Use -f to follow new entries in
real-time (like 'tail -f').

Examples:
  noterag logs                   # Show last 50 lines
  noterag logs -n 100            # Show last 100 lines
  noterag logs -f                # Follow logs in real-time
  noterag logs --level error     # Show only error logs
  noterag logs --filter "index"  # Filter by pattern`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Filter by log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Filter by keyword/pattern (regex)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file (overrides config)")

	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	path := resolveLogPath(opts.logFile)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no log file at %s (has noterag run yet?)", path)
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		var err error
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor,
	}, cmd.OutOrStdout())

	// Metadata goes to stderr so piped output stays clean.
	fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n", path)
	if opts.follow {
		fmt.Fprintln(cmd.ErrOrStderr(), "Following... (Ctrl+C to stop)")
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "---")

	if opts.follow {
		return followLogs(cmd, viewer, path)
	}

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)
	return nil
}

// resolveLogPath picks the log file: explicit flag, then the config
// file, then the default location.
func resolveLogPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if cfg, err := config.Load(configPath); err == nil && cfg.Log.File != "" {
		return cfg.Log.File
	}
	return logging.DefaultLogPath()
}

func followLogs(cmd *cobra.Command, viewer *logging.Viewer, path string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)

	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			fmt.Fprintln(cmd.OutOrStdout(), viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			// Drain anything already parsed before exiting.
			for {
				select {
				case entry := <-entries:
					fmt.Fprintln(cmd.OutOrStdout(), viewer.FormatEntry(entry))
				default:
					return nil
				}
			}
		}
	}
}
