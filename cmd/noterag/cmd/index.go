package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/logging"
	"github.com/noterag/noterag/internal/noteerr"
	"github.com/noterag/noterag/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		full      bool
		vaultFlag string
		noTUI     bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the configured vaults",
		Long: `Scan the vault directories, chunk changed notes, embed them, and
update both the vector and keyword indices.

The default pass is incremental: unchanged files (by content hash) are
skipped. Use --full to clear the index and rebuild from scratch, for
example after changing the embedding model or chunking settings.

Ctrl+C stops the pass at the next file boundary; everything written so
far is kept and the next incremental run picks up where it left off.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			v, err := index.ParseVault(vaultFlag)
			if err != nil {
				return err
			}
			return runIndex(ctx, cmd, v, full, noTUI)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Clear the index and rebuild from scratch")
	cmd.Flags().StringVar(&vaultFlag, "vault", "all", "Vault to index: work, personal, or all")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, v config.VaultName, full, noTUI bool) error {
	// File-only logging; the renderer owns the terminal.
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.WriteToStderr = false
		if _, cleanup, err := logging.Setup(logCfg); err == nil {
			defer cleanup()
		}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	uiCfg := ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI),
		ui.WithTitle(indexTitle(full)),
		ui.WithVaults(vaultNames(e.cfg, v)))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("start progress renderer: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	tracker := ui.NewTracker()
	e.indexer.OnProgress(func(p index.Progress) {
		ev := ui.ProgressEvent{
			Vault:      string(p.Vault),
			FilesDone:  p.FilesDone,
			FilesTotal: p.FilesTotal,
			Chunks:     p.Chunks,
		}
		tracker.Apply(ev)
		renderer.UpdateProgress(ev)
	})
	e.indexer.OnFileError(func(fe index.FileError) {
		ev := ui.ErrorEvent{Path: fe.Path, Err: fe.Err, Warn: fe.Warn}
		tracker.AddError(ev)
		renderer.AddError(ev)
	})

	var chunks int
	if full {
		chunks, err = e.indexer.FullReindex(ctx, v)
	} else {
		chunks, err = e.indexer.IncrementalIndex(ctx, v)
	}

	stats := tracker.Stats()
	renderer.Complete(ui.CompletionStats{
		Files:    stats.FilesDone,
		Chunks:   chunks,
		Duration: tracker.Elapsed(),
		Errors:   stats.ErrorCount,
		Warnings: stats.WarnCount,
	})

	if err != nil {
		if noteerr.IsCancelled(err) || errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(),
				"Cancelled; %d chunks written. Run 'noterag index' again to continue.\n", chunks)
			return nil
		}
		return err
	}
	return nil
}

func indexTitle(full bool) string {
	if full {
		return "Rebuilding note index"
	}
	return "Updating note index"
}

// vaultNames returns the configured vault roots the pass will touch,
// for the renderer header.
func vaultNames(cfg *config.Config, v config.VaultName) []string {
	var names []string
	if (v == config.VaultAll || v == config.VaultWork) && cfg.Vaults.Work != "" {
		names = append(names, string(config.VaultWork))
	}
	if (v == config.VaultAll || v == config.VaultPersonal) && cfg.Vaults.Personal != "" {
		names = append(names, string(config.VaultPersonal))
	}
	return names
}
