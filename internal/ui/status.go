package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// VaultStatus describes one indexed vault.
type VaultStatus struct {
	Name   string `json:"name"`
	Files  int    `json:"files"`
	Chunks int    `json:"chunks"`
}

// StatusInfo describes the state of the on-disk index.
type StatusInfo struct {
	DataDir     string        `json:"data_dir"`
	Vaults      []VaultStatus `json:"vaults"`
	Documents   int           `json:"documents"`
	LastIndexed time.Time     `json:"last_indexed"`

	// Storage sizes in bytes.
	VectorSize int64 `json:"vector_size"`
	TextSize   int64 `json:"text_size"`
	TotalSize  int64 `json:"total_size"`

	EmbedderModel string `json:"embedder_model"`
	EmbedderDims  int    `json:"embedder_dims"`
	GatewayStatus string `json:"gateway_status"` // "ready", "offline"

	WatcherStatus string `json:"watcher_status,omitempty"` // "running", "stopped"
}

// StatusRenderer displays index health.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render writes a human-readable status report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status"))
	_, _ = fmt.Fprintf(r.out, "  Data dir:     %s\n\n", info.DataDir)

	for _, v := range info.Vaults {
		_, _ = fmt.Fprintf(r.out, "  %-13s %d notes, %d chunks\n", v.Name+":", v.Files, v.Chunks)
	}
	_, _ = fmt.Fprintf(r.out, "  %-13s %d\n", "Documents:", info.Documents)
	if !info.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatAge(info.LastIndexed))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Vectors: %s\n", FormatBytes(info.VectorSize))
	_, _ = fmt.Fprintf(r.out, "    Text:    %s\n", FormatBytes(info.TextSize))
	_, _ = fmt.Fprintf(r.out, "    Total:   %s\n", FormatBytes(info.TotalSize))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	if info.EmbedderDims > 0 {
		_, _ = fmt.Fprintf(r.out, "    Model:   %s (%d dims)\n", info.EmbedderModel, info.EmbedderDims)
	} else {
		_, _ = fmt.Fprintf(r.out, "    Model:   %s\n", info.EmbedderModel)
	}
	_, _ = fmt.Fprintf(r.out, "    Gateway: %s\n", r.renderState(info.GatewayStatus))

	if info.WatcherStatus != "" {
		_, _ = fmt.Fprintf(r.out, "\n  Watcher: %s\n", r.renderState(info.WatcherStatus))
	}

	return nil
}

// RenderJSON writes the status as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderState(state string) string {
	switch state {
	case "ready", "running":
		return r.styles.Success.Render(state)
	case "offline", "stopped":
		return r.styles.Warning.Render(state)
	case "error":
		return r.styles.Error.Render(state)
	default:
		return state
	}
}

// formatAge renders a timestamp relative to now.
func formatAge(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes renders a byte count in human units.
func FormatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
