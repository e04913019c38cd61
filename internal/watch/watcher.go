// Package watch keeps the index in step with the vaults while the
// server runs. A recursive fsnotify watch over both vault roots feeds
// a debouncer; settled batches upsert changed notes, drop deleted
// ones, and run an incremental pass over any vault that gained a whole
// directory, since files moved in with it never get their own events.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/noteerr"
	"github.com/noterag/noterag/internal/vault"
)

// watchDebounce rides out editor autosave bursts before applying.
const watchDebounce = time.Second

// Op is what a settled event means for the index.
type Op int

const (
	OpUpsert Op = iota
	OpRemove
)

func (o Op) String() string {
	if o == OpRemove {
		return "remove"
	}
	return "upsert"
}

// Event is one debounced filesystem change.
type Event struct {
	Path  string // absolute
	Op    Op
	IsDir bool
}

// debouncer coalesces events per path; the newest operation wins.
// Upserts and removes are both idempotent at the store, so collapsing
// a remove-then-create into an upsert (and the reverse) is safe.
type debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]Event
	timer   *time.Timer
	out     chan []Event
	stopped bool
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]Event),
		out:     make(chan []Event, 8),
	}
}

func (d *debouncer) add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[ev.Path] = ev
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]Event, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	clear(d.pending)
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	select {
	case d.out <- batch:
	default:
		slog.Warn("watch batch dropped, applier too slow",
			slog.Int("batch_size", len(batch)))
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}

// Watcher mirrors vault changes into the index. Deleting a whole
// directory only emits an event for the directory itself, so rows for
// its files linger until the next sweep-enabled incremental pass.
type Watcher struct {
	cfg      *config.Config
	indexer  *index.Indexer
	walker   *vault.Walker
	fsw      *fsnotify.Watcher
	debounce *debouncer
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher builds a watcher over the configured vault roots.
func NewWatcher(cfg *config.Config, ix *index.Indexer) (*Watcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if ix == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}
	return &Watcher{
		cfg:      cfg,
		indexer:  ix,
		walker:   vault.NewWalker(cfg.Index.ExcludedFolders),
		fsw:      fsw,
		debounce: newDebouncer(watchDebounce),
		stop:     make(chan struct{}),
	}, nil
}

// Run watches until the context ends or Stop is called. A vault root
// that is missing is skipped with a warning; both missing is an error.
func (w *Watcher) Run(ctx context.Context) error {
	roots := 0
	for _, root := range []string{w.cfg.Vaults.Work, w.cfg.Vaults.Personal} {
		if err := w.addTree(root); err != nil {
			slog.Warn("vault root not watchable",
				slog.String("root", root),
				slog.String("error", err.Error()))
			continue
		}
		roots++
	}
	if roots == 0 {
		return noteerr.Errorf(noteerr.KindConfig, "watch.run",
			"no watchable vault roots")
	}

	w.wg.Add(1)
	go w.applyLoop(ctx)

	slog.Info("vault_watch_started",
		slog.Int("roots", roots),
		slog.Duration("debounce", watchDebounce))

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			w.wg.Wait()
			return ctx.Err()
		case <-w.stop:
			w.wg.Wait()
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.wg.Wait()
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.wg.Wait()
				return nil
			}
			slog.Warn("filesystem watch error", slog.String("error", err.Error()))
		}
	}
}

// Stop ends the watch. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.debounce.stop()
		if err := w.fsw.Close(); err != nil {
			slog.Warn("close filesystem watcher", slog.String("error", err.Error()))
		}
		slog.Info("vault_watch_stopped")
	})
}

// handle translates a raw fsnotify event into a debounced index event.
func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.watchableDir(ev.Name) {
				return
			}
			if err := w.addTree(ev.Name); err != nil {
				slog.Warn("cannot watch new directory",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
			w.debounce.add(Event{Path: ev.Name, Op: OpUpsert, IsDir: true})
			return
		}
		if w.indexable(ev.Name) {
			w.debounce.add(Event{Path: ev.Name, Op: OpUpsert})
		}
	case ev.Op&fsnotify.Write != 0:
		if w.indexable(ev.Name) {
			w.debounce.add(Event{Path: ev.Name, Op: OpUpsert})
		}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// The old name of a rename gets this event; the new name
		// arrives separately as a create.
		if w.indexable(ev.Name) {
			w.debounce.add(Event{Path: ev.Name, Op: OpRemove})
		}
	}
}

// applyLoop applies settled batches until the watch ends.
func (w *Watcher) applyLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case batch, ok := <-w.debounce.out:
			if !ok {
				return
			}
			w.apply(ctx, batch)
		}
	}
}

// apply drains one batch: removals first, then per-file upserts, then
// an incremental pass per vault that gained a directory. The pass runs
// last so its hash check skips files the upserts just wrote.
func (w *Watcher) apply(ctx context.Context, batch []Event) {
	indexed, removed := 0, 0
	var passes []config.VaultName

	for _, ev := range batch {
		if ev.Op != OpRemove {
			continue
		}
		if err := w.indexer.RemoveFile(ctx, ev.Path); err != nil {
			slog.Warn("watch remove failed",
				slog.String("path", ev.Path),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	for _, ev := range batch {
		if ev.Op != OpUpsert || ev.IsDir {
			continue
		}
		if _, err := w.indexer.IndexOne(ctx, ev.Path); err != nil {
			slog.Warn("watch reindex failed",
				slog.String("path", ev.Path),
				slog.String("error", err.Error()))
			continue
		}
		indexed++
	}
	for _, ev := range batch {
		if !ev.IsDir {
			continue
		}
		if v := w.vaultFor(ev.Path); v != config.VaultUnknown && !slices.Contains(passes, v) {
			passes = append(passes, v)
		}
	}
	for _, v := range passes {
		if _, err := w.indexer.IncrementalIndex(ctx, v); err != nil {
			slog.Warn("watch vault pass failed",
				slog.String("vault", string(v)),
				slog.String("error", err.Error()))
		}
	}

	if indexed > 0 || removed > 0 {
		w.indexer.Save()
	}
	if indexed > 0 || removed > 0 || len(passes) > 0 {
		slog.Info("watch_batch_applied",
			slog.Int("indexed", indexed),
			slog.Int("removed", removed),
			slog.Int("vault_passes", len(passes)))
	}
}

// addTree watches root and every non-excluded directory below it.
func (w *Watcher) addTree(root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.Warn("skipping unreadable directory",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && !w.watchableDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("cannot watch directory",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) watchableDir(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return !w.walker.Excluded(path)
}

// indexable filters events down to visible markdown files outside the
// excluded folders.
func (w *Watcher) indexable(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if !strings.EqualFold(filepath.Ext(base), ".md") {
		return false
	}
	return !w.walker.Excluded(path)
}

func (w *Watcher) vaultFor(path string) config.VaultName {
	for _, v := range []config.VaultName{config.VaultWork, config.VaultPersonal} {
		root := filepath.Clean(w.cfg.VaultRoot(v))
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return v
		}
	}
	return config.VaultUnknown
}
