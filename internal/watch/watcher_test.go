package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/embed"
	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/store"
	"github.com/noterag/noterag/internal/vault"
)

type fixedEmbedder struct{}

var _ embed.Embedder = fixedEmbedder{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}
func (fixedEmbedder) Dimensions() int                    { return 4 }
func (fixedEmbedder) ModelName() string                  { return "fixed-embed" }
func (fixedEmbedder) Available(ctx context.Context) bool { return true }
func (fixedEmbedder) Close() error                       { return nil }

type watchFixture struct {
	cfg     *config.Config
	vectors *store.HNSWStore
	fts     *store.SQLiteFTS
	indexer *index.Indexer
	watcher *Watcher
}

func newWatchFixture(t *testing.T) *watchFixture {
	t.Helper()

	vectors, err := store.NewHNSWStore("", store.DefaultVectorConfig(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	fts, err := store.NewSQLiteFTS("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = fts.Close() })

	cfg := config.NewConfig()
	cfg.DataDir = t.TempDir()
	cfg.Vaults.Work = filepath.Join(t.TempDir(), "work")
	cfg.Vaults.Personal = filepath.Join(t.TempDir(), "personal")
	require.NoError(t, os.MkdirAll(cfg.Vaults.Work, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Vaults.Personal, 0o755))

	ix, err := index.NewIndexer(index.Deps{
		Config:   cfg,
		Vectors:  vectors,
		FTS:      fts,
		Embedder: fixedEmbedder{},
	})
	require.NoError(t, err)

	w, err := NewWatcher(cfg, ix)
	require.NoError(t, err)
	w.debounce.window = 50 * time.Millisecond

	return &watchFixture{cfg: cfg, vectors: vectors, fts: fts, indexer: ix, watcher: w}
}

// start runs the watcher in the background and tears it down with the
// test. The short sleep lets the recursive watch arm before the test
// starts writing files.
func (f *watchFixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	time.Sleep(100 * time.Millisecond)
}

func (f *watchFixture) workChunks(t *testing.T) int {
	t.Helper()
	stats, err := f.vectors.Stats(context.Background())
	require.NoError(t, err)
	return stats["work"].Chunks
}

func (f *watchFixture) docCount(t *testing.T) int {
	t.Helper()
	n, err := f.fts.DocumentCount(context.Background())
	require.NoError(t, err)
	return n
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewWatcher_RequiresDeps(t *testing.T) {
	_, err := NewWatcher(nil, nil)
	assert.ErrorContains(t, err, "config is required")

	f := newWatchFixture(t)
	_, err = NewWatcher(f.cfg, nil)
	assert.ErrorContains(t, err, "indexer is required")
}

func TestWatcher_IndexesCreatedAndModifiedNotes(t *testing.T) {
	f := newWatchFixture(t)
	f.start(t)

	// A new note is picked up once the debounce window settles.
	path := filepath.Join(f.cfg.Vaults.Work, "meeting.md")
	first := "Rollout sync notes with the owner list and the agreed cutover checklist items."
	writeFile(t, path, first)
	require.Eventually(t, func() bool { return f.workChunks(t) == 1 },
		5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, f.docCount(t))

	// A rewrite replaces the rows under the new content hash.
	second := "Rollout sync notes, updated after the dry run surfaced two missing approvals."
	writeFile(t, path, second)
	require.Eventually(t, func() bool {
		hashes, err := f.vectors.FileHashes(context.Background(), "work")
		return err == nil && hashes[path] == vault.HashBytes([]byte(second))
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, f.workChunks(t))
}

func TestWatcher_RemovesDeletedNotes(t *testing.T) {
	// Given: a note indexed before the watch starts
	f := newWatchFixture(t)
	path := filepath.Join(f.cfg.Vaults.Work, "scratch.md")
	writeFile(t, path, "Scratchpad for the demo narrative that will be deleted right afterwards.")
	_, err := f.indexer.FullReindex(context.Background(), config.VaultWork)
	require.NoError(t, err)
	require.Equal(t, 1, f.workChunks(t))
	f.start(t)

	// When: the note disappears from disk
	require.NoError(t, os.Remove(path))

	// Then: both stores drop its rows
	require.Eventually(t, func() bool {
		return f.workChunks(t) == 0 && f.docCount(t) == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcher_IgnoresExcludedAndNonMarkdown(t *testing.T) {
	f := newWatchFixture(t)
	f.start(t)

	writeFile(t, filepath.Join(f.cfg.Vaults.Work, "archive", "old.md"),
		"Archived write-up that is long enough to index but lives in an excluded folder.")
	writeFile(t, filepath.Join(f.cfg.Vaults.Work, "notes.txt"),
		"Plain text attachment that should never reach the markdown ingest path at all.")
	writeFile(t, filepath.Join(f.cfg.Vaults.Work, ".draft.md"),
		"Hidden draft note that editors write while a real save is still pending here.")

	assert.Never(t, func() bool { return f.workChunks(t) > 0 },
		700*time.Millisecond, 50*time.Millisecond)

	// The watch is still alive: a real note lands.
	writeFile(t, filepath.Join(f.cfg.Vaults.Work, "real.md"),
		"An ordinary meeting note that the watcher is expected to pick up promptly.")
	require.Eventually(t, func() bool { return f.workChunks(t) == 1 },
		5*time.Second, 50*time.Millisecond)
}

func TestWatcher_DirectoryMoveTriggersVaultPass(t *testing.T) {
	// Given: a folder of notes staged outside the vaults
	f := newWatchFixture(t)
	stage := t.TempDir()
	writeFile(t, filepath.Join(stage, "imported", "plan.md"),
		"Quarterly planning import with staffing notes carried over from the old vault.")
	f.start(t)

	// When: the folder moves into the work vault in one rename
	require.NoError(t, os.Rename(
		filepath.Join(stage, "imported"),
		filepath.Join(f.cfg.Vaults.Work, "imported")))

	// Then: the pass for the work vault picks up the contents, which
	// never produced file events of their own
	require.Eventually(t, func() bool { return f.workChunks(t) == 1 },
		5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, f.docCount(t))
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	f := newWatchFixture(t)
	f.watcher.Stop()
	f.watcher.Stop()
}

func receiveBatch(t *testing.T, d *debouncer) []Event {
	t.Helper()
	select {
	case batch := <-d.out:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
		return nil
	}
}

func TestDebouncer_CoalescesPerPathLastOpWins(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)

	d.add(Event{Path: "/v/a.md", Op: OpUpsert})
	d.add(Event{Path: "/v/a.md", Op: OpRemove})
	d.add(Event{Path: "/v/b.md", Op: OpUpsert})

	batch := receiveBatch(t, d)
	assert.Equal(t, []Event{
		{Path: "/v/a.md", Op: OpRemove},
		{Path: "/v/b.md", Op: OpUpsert},
	}, batch)

	// A fresh event after the flush starts a new batch.
	d.add(Event{Path: "/v/a.md", Op: OpUpsert})
	batch = receiveBatch(t, d)
	assert.Equal(t, []Event{{Path: "/v/a.md", Op: OpUpsert}}, batch)

	// Stopped debouncers drop input and close their output.
	d.stop()
	d.add(Event{Path: "/v/c.md", Op: OpUpsert})
	_, open := <-d.out
	assert.False(t, open)

	assert.Equal(t, "upsert", OpUpsert.String())
	assert.Equal(t, "remove", OpRemove.String())
}
