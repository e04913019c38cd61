package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// PlainRenderer writes line-oriented progress without ANSI control
// sequences. It is the fallback for pipes, CI, and non-interactive
// shells.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	return &PlainRenderer{out: out}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	label := phaseLabel(event.Vault)
	if event.FilesTotal == 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] no notes found\n", label)
		return
	}
	_, _ = fmt.Fprintf(r.out, "[%s] %d/%d notes (%d chunks)\n",
		label, event.FilesDone, event.FilesTotal, event.Chunks)
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.Warn {
		prefix = "WARN"
	}
	if event.Path != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Path, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := fmt.Sprintf("Complete: %d files, %d chunks in %s",
		stats.Files, stats.Chunks, formatDuration(stats.Duration))
	if stats.Errors > 0 {
		line += fmt.Sprintf(", %d errors", stats.Errors)
	}
	if stats.Warnings > 0 {
		line += fmt.Sprintf(", %d warnings", stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out, line)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
