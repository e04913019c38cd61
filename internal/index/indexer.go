// Package index ingests vault notes into the chunk-level vector store
// and the document-level full-text index. A pass walks one or both
// vault roots, parses each markdown file, chunks the body, embeds each
// chunk, and replaces the file's rows in both stores. Passes are
// serialized process-wide and across processes via a lock file; they
// yield between files so concurrent searches stay responsive.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/gofrs/flock"

	"github.com/noterag/noterag/internal/chunk"
	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/embed"
	"github.com/noterag/noterag/internal/noteerr"
	"github.com/noterag/noterag/internal/store"
	"github.com/noterag/noterag/internal/vault"
)

const (
	// minContentRunes is the ingestion threshold: notes whose stripped
	// content is this many characters or fewer are skipped.
	minContentRunes = 50

	// yieldEvery is how many files are processed between scheduler
	// yields and progress reports.
	yieldEvery = 10

	// logEvery is how many files are processed between progress log
	// lines.
	logEvery = 100
)

// State is the indexer lifecycle state.
type State string

const (
	// StateIdle means no pass is running.
	StateIdle State = "idle"

	// StateRunning means a pass is in flight.
	StateRunning State = "running"

	// StateCancelling means a cancel was requested and the pass is
	// draining to its next yield point.
	StateCancelling State = "cancelling"
)

// Progress is a point-in-time view of a running pass, reported at
// yield points and when a vault completes. Counts are per vault.
type Progress struct {
	Vault      config.VaultName
	FilesDone  int
	FilesTotal int
	Chunks     int
}

// ProgressFunc receives progress updates during a pass.
type ProgressFunc func(Progress)

// FileError reports a note-local problem during ingestion. Warn marks
// notes that were skipped or left partially indexed; hard failures
// lose the note entirely.
type FileError struct {
	Path string
	Err  error
	Warn bool
}

// FileErrorFunc receives per-note problems during a pass.
type FileErrorFunc func(FileError)

// Deps contains the injected dependencies for an Indexer.
type Deps struct {
	// Config is the loaded engine configuration (required).
	Config *config.Config

	// Vectors is the chunk-level vector store (required).
	Vectors store.VectorStore

	// FTS is the document-level keyword index. Optional; without it
	// only the vector side is maintained.
	FTS store.FTSStore

	// Embedder generates chunk vectors (required).
	Embedder embed.Embedder
}

// Indexer runs full and incremental ingestion passes over the
// configured vaults. It is the sole writer to both stores.
type Indexer struct {
	cfg      *config.Config
	vectors  store.VectorStore
	fts      store.FTSStore
	embedder embed.Embedder

	walker  *vault.Walker
	parser  *vault.Parser
	chunker *chunk.Chunker

	// passMu serializes passes and single-file operations within the
	// process. The cross-process lock file is taken while passMu is
	// held, so a lock-file conflict always means another process.
	passMu sync.Mutex

	mu          sync.Mutex
	state       State
	observer    []ProgressFunc
	errObserver []FileErrorFunc

	cancel atomic.Bool
}

// NewIndexer creates an Indexer from its dependencies.
func NewIndexer(deps Deps) (*Indexer, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	return &Indexer{
		cfg:      deps.Config,
		vectors:  deps.Vectors,
		fts:      deps.FTS,
		embedder: deps.Embedder,
		walker:   vault.NewWalker(deps.Config.Index.ExcludedFolders),
		parser:   vault.NewParser(deps.Config.Vaults.Work, deps.Config.Vaults.Personal),
		chunker:  chunk.NewChunker(deps.Config.Index.ChunkSize, deps.Config.Index.ChunkOverlap),
		state:    StateIdle,
	}, nil
}

// OnProgress registers a progress observer. Register before starting
// passes.
func (ix *Indexer) OnProgress(fn ProgressFunc) {
	if fn == nil {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.observer = append(ix.observer, fn)
}

// OnFileError registers an observer for note-local failures. Register
// before starting passes.
func (ix *Indexer) OnFileError(fn FileErrorFunc) {
	if fn == nil {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.errObserver = append(ix.errObserver, fn)
}

// State returns the current lifecycle state.
func (ix *Indexer) State() State {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.state
}

// RequestCancel asks the running pass to stop at its next yield point.
// The pass keeps everything written so far; nothing is rolled back.
// Outside a running pass this is a no-op.
func (ix *Indexer) RequestCancel() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.state != StateRunning {
		return
	}
	ix.state = StateCancelling
	ix.cancel.Store(true)
	slog.Info("index_cancel_requested")
}

// FullReindex clears the target vault table(s) and re-ingests every
// markdown file. It returns the number of chunks written, which is
// partial when the pass was cancelled.
func (ix *Indexer) FullReindex(ctx context.Context, v config.VaultName) (int, error) {
	ix.passMu.Lock()
	defer ix.passMu.Unlock()

	unlock, err := ix.lockDataDir()
	if err != nil {
		return 0, err
	}
	defer unlock()

	ix.beginPass()
	defer ix.endPass()

	total := 0
	for _, t := range ix.targets(v) {
		if ix.stopRequested(ctx) {
			break
		}
		slog.Info("full_reindex_started", slog.String("vault", string(t.name)))

		if err := ix.vectors.CreateTable(ctx, string(t.name)); err != nil {
			slog.Error("vault table unavailable, skipping vault",
				slog.String("vault", string(t.name)),
				slog.String("error", err.Error()))
			continue
		}
		if err := ix.vectors.Truncate(ctx, string(t.name)); err != nil {
			slog.Warn("clearing vault table failed",
				slog.String("vault", string(t.name)),
				slog.String("error", err.Error()))
		}
		if ix.fts != nil {
			if err := ix.fts.DeleteVault(ctx, string(t.name)); err != nil {
				slog.Warn("clearing full-text rows failed",
					slog.String("vault", string(t.name)),
					slog.String("error", err.Error()))
			}
		}

		count, _, err := ix.ingestVault(ctx, t, nil)
		total += count
		if err != nil {
			return total, noteerr.E(noteerr.KindCancelled, "index.full", err)
		}
	}

	ix.save()
	slog.Info("full_reindex_complete", slog.Int("chunks", total))
	return total, nil
}

// IncrementalIndex re-ingests only files whose content hash changed
// since they were last indexed. New files are ingested; unchanged
// files are skipped without reparsing. When index.sweep_deleted is
// set, rows for files no longer present in the vault are removed.
func (ix *Indexer) IncrementalIndex(ctx context.Context, v config.VaultName) (int, error) {
	ix.passMu.Lock()
	defer ix.passMu.Unlock()

	unlock, err := ix.lockDataDir()
	if err != nil {
		return 0, err
	}
	defer unlock()

	ix.beginPass()
	defer ix.endPass()

	total := 0
	for _, t := range ix.targets(v) {
		if ix.stopRequested(ctx) {
			break
		}
		slog.Info("incremental_index_started", slog.String("vault", string(t.name)))

		if err := ix.vectors.CreateTable(ctx, string(t.name)); err != nil {
			slog.Error("vault table unavailable, skipping vault",
				slog.String("vault", string(t.name)),
				slog.String("error", err.Error()))
			continue
		}

		known, err := ix.vectors.FileHashes(ctx, string(t.name))
		if err != nil {
			slog.Warn("reading indexed hashes failed, re-ingesting vault",
				slog.String("vault", string(t.name)),
				slog.String("error", err.Error()))
			known = map[string]string{}
		}

		count, seen, err := ix.ingestVault(ctx, t, known)
		total += count
		if err != nil {
			return total, noteerr.E(noteerr.KindCancelled, "index.incremental", err)
		}

		if ix.cfg.Index.SweepDeleted && !ix.cancel.Load() {
			ix.sweepDeleted(ctx, t.name, seen)
		}
	}

	ix.save()
	slog.Info("incremental_index_complete", slog.Int("chunks", total))
	return total, nil
}

// IndexOne ingests a single note outside a pass, classifying it
// against the configured vault roots. The vault watcher uses it for
// change events. Excluded or too-short notes are silently skipped.
func (ix *Indexer) IndexOne(ctx context.Context, path string) (int, error) {
	ix.passMu.Lock()
	defer ix.passMu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, noteerr.Errorf(noteerr.KindMalformedInput, "index.one", "resolving %s: %w", path, err)
	}
	if ix.walker.Excluded(abs) {
		return 0, nil
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return 0, noteerr.Errorf(noteerr.KindMalformedInput, "index.one", "reading %s: %w", abs, err)
	}
	if tooShort(raw) {
		return 0, nil
	}

	doc := ix.parser.Parse(abs, raw)
	if doc.Vault == config.VaultUnknown {
		return 0, noteerr.Errorf(noteerr.KindMalformedInput, "index.one", "%s is outside the configured vaults", abs)
	}

	if err := ix.vectors.CreateTable(ctx, string(doc.Vault)); err != nil {
		return 0, noteerr.E(noteerr.KindStore, "index.one", err)
	}
	return ix.ingestDoc(ctx, string(doc.Vault), doc), nil
}

// RemoveFile drops all rows for a note from both stores. Missing rows
// are not an error; store failures are logged and swallowed so
// watcher-driven cleanup never wedges on one path.
func (ix *Indexer) RemoveFile(ctx context.Context, path string) error {
	ix.passMu.Lock()
	defer ix.passMu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return noteerr.Errorf(noteerr.KindMalformedInput, "index.remove", "resolving %s: %w", path, err)
	}

	for _, name := range []config.VaultName{config.VaultWork, config.VaultPersonal} {
		if err := ix.vectors.DeleteByFile(ctx, string(name), abs); err != nil {
			slog.Warn("removing chunk rows failed",
				slog.String("vault", string(name)),
				slog.String("path", abs),
				slog.String("error", err.Error()))
		}
	}
	if ix.fts != nil {
		if err := ix.fts.DeleteDocument(ctx, abs); err != nil {
			slog.Warn("removing full-text row failed",
				slog.String("path", abs),
				slog.String("error", err.Error()))
		}
	}
	return ctx.Err()
}

// target pairs a vault name with its configured root.
type target struct {
	name config.VaultName
	root string
}

// targets resolves a vault selector to the vaults it covers. An empty
// selector means both.
func (ix *Indexer) targets(v config.VaultName) []target {
	var out []target
	if v == "" {
		v = config.VaultAll
	}
	if v == config.VaultAll || v == config.VaultWork {
		out = append(out, target{config.VaultWork, ix.cfg.Vaults.Work})
	}
	if v == config.VaultAll || v == config.VaultPersonal {
		out = append(out, target{config.VaultPersonal, ix.cfg.Vaults.Personal})
	}
	return out
}

// ingestVault walks one vault root and ingests its files. known is the
// incremental skip set (path -> hash); nil re-ingests everything. It
// returns the chunks written, the set of paths the walk produced, and
// the context error if the pass was interrupted.
func (ix *Indexer) ingestVault(ctx context.Context, t target, known map[string]string) (int, map[string]struct{}, error) {
	files, err := ix.walker.Walk(ctx, t.root)
	if err != nil {
		return 0, nil, err
	}
	slog.Info("vault_walk_complete",
		slog.String("vault", string(t.name)),
		slog.Int("files", len(files)))

	seen := make(map[string]struct{}, len(files))
	chunks := 0
	for i, path := range files {
		if ix.stopRequested(ctx) {
			slog.Info("index_pass_stopped",
				slog.String("vault", string(t.name)),
				slog.Int("files_done", i),
				slog.Int("chunks", chunks))
			break
		}
		seen[path] = struct{}{}

		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("note unreadable, skipping",
				slog.String("path", path),
				slog.String("error", err.Error()))
			ix.notifyFileError(FileError{Path: path, Err: err, Warn: true})
			continue
		}

		if known != nil {
			if h, ok := known[path]; ok && h == vault.HashBytes(raw) {
				continue
			}
		}

		chunks += ix.ingestFile(ctx, string(t.name), path, raw)

		if (i+1)%yieldEvery == 0 {
			runtime.Gosched()
			ix.notify(Progress{Vault: t.name, FilesDone: i + 1, FilesTotal: len(files), Chunks: chunks})
		}
		if (i+1)%logEvery == 0 {
			slog.Info("index_progress",
				slog.String("vault", string(t.name)),
				slog.Int("files_done", i+1),
				slog.Int("files_total", len(files)),
				slog.Int("chunks", chunks))
		}
	}

	ix.notify(Progress{Vault: t.name, FilesDone: len(seen), FilesTotal: len(files), Chunks: chunks})
	return chunks, seen, ctx.Err()
}

// ingestFile applies the length gate and parses one note.
func (ix *Indexer) ingestFile(ctx context.Context, table, path string, raw []byte) int {
	if tooShort(raw) {
		slog.Debug("note below minimum length, skipping", slog.String("path", path))
		return 0
	}
	return ix.ingestDoc(ctx, table, ix.parser.Parse(path, raw))
}

// ingestDoc chunks, embeds, and writes one parsed note. Every failure
// is note-local: an embed failure drops that chunk, a store write
// failure drops the note, a full-text failure leaves the vector rows
// in place. Returns the number of chunk rows written.
func (ix *Indexer) ingestDoc(ctx context.Context, table string, doc *vault.Document) int {
	pieces := ix.chunker.Split(doc.Body)
	if len(pieces) == 0 {
		return 0
	}

	records := make([]*store.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		// Cancellation between chunk embeddings abandons the note
		// before anything is written; the file stays as it was.
		if ix.stopRequested(ctx) {
			return 0
		}

		vec, err := ix.embedder.Embed(ctx, piece.Content)
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			slog.Error("chunk embedding failed, skipping chunk",
				slog.String("path", doc.FilePath),
				slog.Int("chunk_index", piece.Index),
				slog.String("error", err.Error()))
			ix.notifyFileError(FileError{Path: doc.FilePath, Err: err})
			continue
		}

		records = append(records, &store.Chunk{
			ID:         store.ChunkID(doc.FileHash, piece.Index),
			FilePath:   doc.FilePath,
			FileHash:   doc.FileHash,
			ChunkIndex: piece.Index,
			Content:    piece.Content,
			Vault:      table,
			Title:      doc.Title,
			Category:   doc.Category,
			People:     doc.People,
			Projects:   doc.Projects,
			Date:       doc.Date,
			Vector:     vec,
		})
	}
	if len(records) == 0 {
		return 0
	}

	if err := ix.vectors.DeleteByFile(ctx, table, doc.FilePath); err != nil {
		slog.Warn("clearing previous rows failed",
			slog.String("path", doc.FilePath),
			slog.String("error", err.Error()))
	}
	if err := ix.vectors.Upsert(ctx, table, records); err != nil {
		slog.Error("chunk write failed, skipping note",
			slog.String("path", doc.FilePath),
			slog.String("error", err.Error()))
		ix.notifyFileError(FileError{Path: doc.FilePath, Err: err})
		return 0
	}
	slog.Debug("note indexed",
		slog.String("path", doc.FilePath),
		slog.Int("chunks", len(records)))

	if ix.fts != nil {
		ftsDoc := &store.FTSDocument{
			FilePath: doc.FilePath,
			Vault:    table,
			Title:    doc.Title,
			Category: doc.Category,
			People:   doc.People,
			Projects: doc.Projects,
			Date:     doc.Date,
			Content:  doc.Body,
		}
		if err := ix.fts.UpsertDocument(ctx, ftsDoc); err != nil {
			slog.Warn("full-text upsert failed",
				slog.String("path", doc.FilePath),
				slog.String("error", err.Error()))
			ix.notifyFileError(FileError{Path: doc.FilePath, Err: err, Warn: true})
		}
	}
	return len(records)
}

// sweepDeleted removes rows for indexed paths the walk no longer saw.
func (ix *Indexer) sweepDeleted(ctx context.Context, name config.VaultName, seen map[string]struct{}) {
	paths, err := ix.vectors.FilePaths(ctx, string(name))
	if err != nil {
		slog.Warn("listing indexed paths failed, skipping sweep",
			slog.String("vault", string(name)),
			slog.String("error", err.Error()))
		return
	}

	removed := 0
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		if err := ix.vectors.DeleteByFile(ctx, string(name), p); err != nil {
			slog.Warn("sweeping deleted note failed",
				slog.String("path", p),
				slog.String("error", err.Error()))
			continue
		}
		if ix.fts != nil {
			if err := ix.fts.DeleteDocument(ctx, p); err != nil {
				slog.Warn("sweeping full-text row failed",
					slog.String("path", p),
					slog.String("error", err.Error()))
			}
		}
		removed++
	}
	if removed > 0 {
		slog.Info("deleted_notes_swept",
			slog.String("vault", string(name)),
			slog.Int("removed", removed))
	}
}

// Save persists both stores. Passes save on completion; callers doing
// per-file updates, like the vault watcher, save once per batch.
func (ix *Indexer) Save() {
	ix.save()
}

// save persists graphs and flushes the full-text index after a pass.
func (ix *Indexer) save() {
	if err := ix.vectors.Save(); err != nil {
		slog.Warn("saving vector store failed", slog.String("error", err.Error()))
	}
	if ix.fts != nil {
		if err := ix.fts.Save(); err != nil {
			slog.Warn("saving full-text index failed", slog.String("error", err.Error()))
		}
	}
}

// beginPass enters Running and clears any stale cancel flag.
func (ix *Indexer) beginPass() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.state = StateRunning
	ix.cancel.Store(false)
}

func (ix *Indexer) endPass() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.state = StateIdle
	ix.cancel.Store(false)
}

// stopRequested reports whether the pass should stop at this yield
// point, either via RequestCancel or context cancellation.
func (ix *Indexer) stopRequested(ctx context.Context) bool {
	return ix.cancel.Load() || ctx.Err() != nil
}

// lockDataDir takes the cross-process index lock. The caller holds
// passMu, so a held lock file always means another process is
// indexing; that surfaces as a transient error rather than blocking.
func (ix *Indexer) lockDataDir() (func(), error) {
	if err := os.MkdirAll(ix.cfg.DataDir, 0o755); err != nil {
		return nil, noteerr.E(noteerr.KindStore, "index.lock", err)
	}

	lock := flock.New(filepath.Join(ix.cfg.DataDir, "index.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, noteerr.E(noteerr.KindStore, "index.lock", err)
	}
	if !ok {
		return nil, noteerr.Errorf(noteerr.KindTransient, "index.lock",
			"another process is indexing (%s is locked)", lock.Path())
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("releasing index lock failed", slog.String("error", err.Error()))
		}
	}, nil
}

// notify fans a progress update out to the registered observers.
func (ix *Indexer) notify(p Progress) {
	ix.mu.Lock()
	observers := make([]ProgressFunc, len(ix.observer))
	copy(observers, ix.observer)
	ix.mu.Unlock()

	for _, fn := range observers {
		fn(p)
	}
}

func (ix *Indexer) notifyFileError(fe FileError) {
	ix.mu.Lock()
	observers := make([]FileErrorFunc, len(ix.errObserver))
	copy(observers, ix.errObserver)
	ix.mu.Unlock()

	for _, fn := range observers {
		fn(fe)
	}
}

// tooShort reports whether stripped note content is at or below the
// ingestion threshold.
func tooShort(raw []byte) bool {
	return utf8.RuneCountInString(strings.TrimSpace(string(raw))) <= minContentRunes
}

// ParseVault validates a vault selector from the CLI or HTTP surface.
// Empty means all.
func ParseVault(s string) (config.VaultName, error) {
	switch config.VaultName(strings.ToLower(strings.TrimSpace(s))) {
	case "", config.VaultAll:
		return config.VaultAll, nil
	case config.VaultWork:
		return config.VaultWork, nil
	case config.VaultPersonal:
		return config.VaultPersonal, nil
	default:
		return "", noteerr.Errorf(noteerr.KindMalformedInput, "index.vault",
			"unknown vault %q (want work, personal, or all)", s)
	}
}
