package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noterag/noterag/internal/logging"
	"github.com/noterag/noterag/internal/server"
	"github.com/noterag/noterag/internal/telemetry"
	"github.com/noterag/noterag/internal/watch"
)

func newServeCmd() *cobra.Command {
	var (
		addr      string
		withWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve the retrieval engine over HTTP.

Endpoints cover search, question answering, person context, and
asynchronous index jobs. See GET /api/stats for index and query
statistics.

With --watch, vault directories are watched for changes and modified
notes are re-indexed automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, addr, withWatch)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config server.addr)")
	cmd.Flags().BoolVar(&withWatch, "watch", false, "Watch vaults and re-index changed notes")

	return cmd
}

func runServe(ctx context.Context, addr string, withWatch bool) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = logging.LevelFromString(e.cfg.Log.Level)
		logCfg.FilePath = e.cfg.Log.File
		logCfg.WriteToStderr = true
		if _, cleanup, err := logging.Setup(logCfg); err == nil {
			defer cleanup()
		}
	}

	if addr != "" {
		e.cfg.Server.Addr = addr
	}

	// Query telemetry shares chunks.db; WAL mode tolerates the second
	// connection alongside the vector store's.
	metrics, metricsCleanup := openTelemetry(e.cfg.DataDir)
	defer metricsCleanup()

	srv, err := server.New(server.Deps{
		Config:   e.cfg,
		Searcher: e.searcher,
		Jobs:     e.jobs,
		Vectors:  e.vectors,
		FTS:      e.fts,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	if withWatch {
		watcher, err := watch.NewWatcher(e.cfg, e.indexer)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("watcher_stopped", slog.String("error", err.Error()))
			}
		}()
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// openTelemetry opens the query metrics collector. Telemetry is
// best-effort: any failure returns a collector without persistence so
// the stats endpoint still serves in-process counters.
func openTelemetry(dataDir string) (*telemetry.Collector, func()) {
	dsn := filepath.Join(dataDir, "chunks.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err == nil {
		err = telemetry.InitSchema(db)
	}
	if err != nil {
		slog.Warn("telemetry_disabled", slog.String("error", err.Error()))
		if db != nil {
			_ = db.Close()
		}
		collector := telemetry.NewCollector(nil)
		return collector, func() { _ = collector.Close() }
	}

	store, err := telemetry.NewStore(db)
	if err != nil {
		_ = db.Close()
		collector := telemetry.NewCollector(nil)
		return collector, func() { _ = collector.Close() }
	}

	collector := telemetry.NewCollector(store)
	return collector, func() {
		_ = collector.Close()
		_ = db.Close()
	}
}
