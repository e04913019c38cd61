package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/noterag/noterag/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and storage",
		Long: `Display the state of the on-disk index:
  - Per-vault file and chunk counts
  - Indexed document count and last index time
  - Storage sizes (vectors, keyword index)
  - Embedding model and answer gateway configuration`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOut bool) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	info, err := collectStatus(ctx, e)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOut {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, e *engine) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		DataDir:       e.cfg.DataDir,
		EmbedderModel: e.cfg.Embedding.Model,
		EmbedderDims:  e.cfg.Embedding.Dimension,
	}

	stats, err := e.vectors.Stats(ctx)
	if err != nil {
		return info, err
	}
	for _, name := range []string{"work", "personal"} {
		if s, ok := stats[name]; ok {
			info.Vaults = append(info.Vaults, ui.VaultStatus{
				Name:   name,
				Files:  s.Files,
				Chunks: s.Chunks,
			})
		}
	}

	if e.fts != nil {
		if docs, err := e.fts.DocumentCount(ctx); err == nil {
			info.Documents = docs
		}
	}

	chunkDB := filepath.Join(e.cfg.DataDir, "chunks.db")
	info.LastIndexed = fileModTime(chunkDB)
	info.VectorSize = dirSize(filepath.Join(e.cfg.DataDir, "vectors"))
	info.TextSize = fileSize(filepath.Join(e.cfg.DataDir, "fts.db"))
	if info.TextSize == 0 {
		info.TextSize = dirSize(filepath.Join(e.cfg.DataDir, "fts.bleve"))
	}
	info.TotalSize = fileSize(chunkDB) + info.VectorSize + info.TextSize

	info.GatewayStatus = "offline"
	if e.cfg.Answer.GatewayURL != "" {
		info.GatewayStatus = "ready"
	}

	return info, nil
}

func fileModTime(path string) time.Time {
	st, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return st.ModTime()
}

func fileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return 0
	}
	return st.Size()
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries just don't count
		}
		if !fi.IsDir() {
			size += fi.Size()
		}
		return nil
	})
	return size
}
