// Package ui renders indexing progress for the CLI. It provides two
// renderers behind one interface: a bubbletea TUI for interactive
// terminals and a line-oriented plain renderer for pipes and CI.
// Renderer selection is automatic based on the output destination.
package ui

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// ProgressEvent is one update from a running ingestion pass. Counts
// are per vault; a pass over both vaults reports work first, then
// personal.
type ProgressEvent struct {
	Vault      string
	FilesDone  int
	FilesTotal int
	Chunks     int
}

// ErrorEvent reports a note that could not be fully ingested. Warn
// marks notes that were skipped or partially written; hard failures
// lose the note entirely.
type ErrorEvent struct {
	Path string
	Err  error
	Warn bool
}

// CompletionStats summarizes a finished pass across all vaults.
type CompletionStats struct {
	Files    int
	Chunks   int
	Duration time.Duration
	Errors   int
	Warnings int
}

// Renderer displays indexing progress.
type Renderer interface {
	// Start begins rendering. Must be called before other methods.
	Start(ctx context.Context) error

	// UpdateProgress displays a progress update.
	UpdateProgress(event ProgressEvent)

	// AddError records an error or warning for display.
	AddError(event ErrorEvent)

	// Complete displays the final summary.
	Complete(stats CompletionStats)

	// Stop ends rendering and releases the terminal.
	Stop() error
}

// Config controls renderer construction.
type Config struct {
	// Output is where rendering goes, usually os.Stdout.
	Output io.Writer

	// ForcePlain skips the TUI even on an interactive terminal.
	ForcePlain bool

	// NoColor disables ANSI colors in the TUI.
	NoColor bool

	// Title is the TUI header line.
	Title string

	// Vaults is the pass order, shown as phase indicators in the TUI.
	Vaults []string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces the plain renderer.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables colors.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithTitle sets the TUI header line.
func WithTitle(title string) ConfigOption {
	return func(c *Config) { c.Title = title }
}

// WithVaults sets the vault pass order for the phase indicators.
func WithVaults(vaults []string) ConfigOption {
	return func(c *Config) { c.Vaults = vaults }
}

// NewConfig creates a Config for the given output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks the best renderer for the environment: plain when
// forced, when output is not a terminal, or under CI; otherwise the
// TUI, falling back to plain if it cannot initialize.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether the NO_COLOR convention is in effect.
func DetectNoColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

// DetectCI reports whether the process appears to run under a CI
// system.
func DetectCI() bool {
	for _, key := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// phaseLabel is the display label for a vault phase.
func phaseLabel(vault string) string {
	if vault == "" {
		return "INDEX"
	}
	return strings.ToUpper(vault)
}
