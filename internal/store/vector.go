package store

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/noterag/noterag/internal/noteerr"
)

// HNSWStore implements VectorStore with one coder/hnsw graph per table
// and chunk rows in a shared SQLite database. The graph answers the
// nearest-neighbor query; the rows carry content and metadata for
// hydration and filter checks.
type HNSWStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dir    string // data directory; "" means in-memory, no persistence
	cfg    VectorConfig
	tables map[string]*vectorTable
	closed bool
}

// vectorTable is the in-memory half of one table: the HNSW graph and
// the chunk-ID to graph-key mappings.
type vectorTable struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64 // chunk ID -> internal key
	keyMap  map[uint64]string // internal key -> chunk ID
	nextKey uint64
}

// hnswMetadata is the persisted companion of a graph export.
type hnswMetadata struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
}

// validTableName restricts table names to safe SQL identifiers.
// Identifiers cannot be bound as parameters, so they are interpolated
// and must be validated.
var validTableName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// Verify interface implementation at compile time
var _ VectorStore = (*HNSWStore)(nil)

// validateChunkDBIntegrity checks the chunk database before opening.
// Returns nil if valid or absent, an error describing corruption if not.
func validateChunkDBIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// NewHNSWStore opens the vector store rooted at dir. Existing tables
// and their graphs are loaded; a corrupted database or graph is
// cleared so the next indexing pass rebuilds it. An empty dir creates
// an in-memory store for testing.
func NewHNSWStore(dir string, cfg VectorConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, noteerr.Errorf(noteerr.KindConfig, "store.open",
			"vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	var dsn string
	if dir == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Join(dir, "vectors"), 0o755); err != nil {
			return nil, noteerr.E(noteerr.KindStore, "store.open",
				fmt.Errorf("create data directory: %w", err))
		}

		dbPath := filepath.Join(dir, "chunks.db")
		if validErr := validateChunkDBIntegrity(dbPath); validErr != nil {
			slog.Warn("chunk_db_corrupted",
				slog.String("path", dbPath),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(dbPath); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, noteerr.E(noteerr.KindStore, "store.open",
					fmt.Errorf("chunk database corrupted at %s and cannot remove: %w (original error: %v)",
						dbPath, removeErr, validErr))
			}
			_ = os.Remove(dbPath + "-wal")
			_ = os.Remove(dbPath + "-shm")

			slog.Info("chunk_db_cleared",
				slog.String("path", dbPath),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, noteerr.E(noteerr.KindStore, "store.open",
			fmt.Errorf("open database: %w", err))
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, noteerr.E(noteerr.KindStore, "store.open",
				fmt.Errorf("set pragma: %w", err))
		}
	}

	s := &HNSWStore{
		db:     db,
		dir:    dir,
		cfg:    cfg,
		tables: make(map[string]*vectorTable),
	}

	if err := s.loadTables(); err != nil {
		_ = db.Close()
		return nil, noteerr.E(noteerr.KindStore, "store.open", err)
	}

	return s, nil
}

// CreateTable ensures the table's SQL schema and graph exist.
func (s *HNSWStore) CreateTable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed("store.create_table")
	}
	if !validTableName.MatchString(name) {
		return noteerr.Errorf(noteerr.KindStore, "store.create_table",
			"invalid table name %q", name)
	}
	if _, ok := s.tables[name]; ok {
		return nil
	}

	sqlName := sqlTableName(name)
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id          TEXT PRIMARY KEY,
		file_path   TEXT NOT NULL,
		file_hash   TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content     TEXT NOT NULL,
		vault       TEXT NOT NULL DEFAULT '',
		title       TEXT NOT NULL DEFAULT '',
		category    TEXT NOT NULL DEFAULT '',
		people      TEXT NOT NULL DEFAULT '[]',
		projects    TEXT NOT NULL DEFAULT '[]',
		date        TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_file_path ON %[1]s(file_path);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_file_hash ON %[1]s(file_hash);
	`, sqlName)

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return noteerr.E(noteerr.KindStore, "store.create_table",
			fmt.Errorf("create table %s: %w", sqlName, err))
	}

	t, err := s.openTable(name)
	if err != nil {
		return noteerr.E(noteerr.KindStore, "store.create_table", err)
	}
	s.tables[name] = t
	return nil
}

// Upsert writes chunks into the table and adds their vectors to the
// graph. Graph updates follow the SQL commit, so a failed write leaves
// the graph untouched.
func (s *HNSWStore) Upsert(ctx context.Context, table string, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed("store.upsert")
	}
	t, err := s.table(table, "store.upsert")
	if err != nil {
		return err
	}

	for _, c := range chunks {
		if len(c.Vector) != s.cfg.Dimensions {
			return noteerr.E(noteerr.KindStore, "store.upsert",
				ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(c.Vector)})
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return noteerr.E(noteerr.KindStore, "store.upsert",
			fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s
		 (id, file_path, file_hash, chunk_index, content, vault, title, category, people, projects, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, sqlTableName(table)))
	if err != nil {
		return noteerr.E(noteerr.KindStore, "store.upsert",
			fmt.Errorf("prepare insert: %w", err))
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.FilePath, c.FileHash, c.ChunkIndex, c.Content,
			c.Vault, c.Title, c.Category,
			marshalList(c.People), marshalList(c.Projects), c.Date); err != nil {
			return noteerr.E(noteerr.KindStore, "store.upsert",
				fmt.Errorf("insert chunk %s: %w", c.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return noteerr.E(noteerr.KindStore, "store.upsert",
			fmt.Errorf("commit: %w", err))
	}

	for _, c := range chunks {
		// Lazy deletion on replace: orphan the old key rather than
		// removing the node. coder/hnsw breaks when the last node of a
		// graph is deleted.
		if existingKey, exists := t.idMap[c.ID]; exists {
			delete(t.keyMap, existingKey)
			delete(t.idMap, c.ID)
		}

		key := t.nextKey
		t.nextKey++

		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		t.graph.Add(hnsw.MakeNode(key, vec))

		t.idMap[c.ID] = key
		t.keyMap[key] = c.ID
	}

	return nil
}

// DeleteByFile removes every chunk for one file path.
func (s *HNSWStore) DeleteByFile(ctx context.Context, table, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed("store.delete_by_file")
	}
	t, err := s.table(table, "store.delete_by_file")
	if err != nil {
		return err
	}

	sqlName := sqlTableName(table)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE file_path = ?", sqlName), filePath)
	if err != nil {
		return noteerr.E(noteerr.KindStore, "store.delete_by_file", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return noteerr.E(noteerr.KindStore, "store.delete_by_file", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return noteerr.E(noteerr.KindStore, "store.delete_by_file", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil
	}

	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE file_path = ?", sqlName), filePath); err != nil {
		return noteerr.E(noteerr.KindStore, "store.delete_by_file", err)
	}

	for _, id := range ids {
		if key, exists := t.idMap[id]; exists {
			delete(t.keyMap, key)
			delete(t.idMap, id)
		}
	}

	return nil
}

// Truncate removes all rows and replaces the graph with a fresh one.
func (s *HNSWStore) Truncate(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed("store.truncate")
	}
	t, err := s.table(table, "store.truncate")
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s", sqlTableName(table))); err != nil {
		return noteerr.E(noteerr.KindStore, "store.truncate", err)
	}

	t.graph = s.newGraph()
	t.idMap = make(map[string]uint64)
	t.keyMap = make(map[uint64]string)
	t.nextKey = 0

	return nil
}

// Search returns up to limit nearest chunks by L2 distance. A filter
// widens the ANN pass and drops non-matching chunks afterwards.
func (s *HNSWStore) Search(ctx context.Context, table string, query []float32, limit int, filter *SearchFilter) ([]*VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed("store.search")
	}
	t, err := s.table(table, "store.search")
	if err != nil {
		return nil, err
	}

	if len(query) != s.cfg.Dimensions {
		return nil, noteerr.E(noteerr.KindStore, "store.search",
			ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(query)})
	}

	if limit <= 0 || t.graph.Len() == 0 {
		return []*VectorHit{}, nil
	}

	k := limit
	if !filter.Empty() {
		k = limit * 4 // overfetch so post-filtering can still fill the limit
	}

	nodes := t.graph.Search(query, k)

	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if id, ok := t.keyMap[node.Key]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []*VectorHit{}, nil
	}

	chunkByID, err := s.loadChunks(ctx, table, ids)
	if err != nil {
		return nil, noteerr.E(noteerr.KindStore, "store.search", err)
	}

	hits := make([]*VectorHit, 0, limit)
	for _, node := range nodes {
		id, ok := t.keyMap[node.Key]
		if !ok {
			continue // lazily deleted
		}
		c, ok := chunkByID[id]
		if !ok {
			continue
		}
		if !matchesFilter(c, filter) {
			continue
		}
		hits = append(hits, &VectorHit{
			Chunk:    c,
			Distance: t.graph.Distance(query, node.Value),
		})
		if len(hits) == limit {
			break
		}
	}

	return hits, nil
}

// FileHashes returns file_path -> file_hash for every indexed file.
func (s *HNSWStore) FileHashes(ctx context.Context, table string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed("store.file_hashes")
	}
	if _, err := s.table(table, "store.file_hashes"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT file_path, file_hash FROM %s", sqlTableName(table)))
	if err != nil {
		return nil, noteerr.E(noteerr.KindStore, "store.file_hashes", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, noteerr.E(noteerr.KindStore, "store.file_hashes", err)
		}
		hashes[path] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, noteerr.E(noteerr.KindStore, "store.file_hashes", err)
	}

	return hashes, nil
}

// FilePaths returns the distinct indexed file paths, sorted.
func (s *HNSWStore) FilePaths(ctx context.Context, table string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed("store.file_paths")
	}
	if _, err := s.table(table, "store.file_paths"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT file_path FROM %s ORDER BY file_path", sqlTableName(table)))
	if err != nil {
		return nil, noteerr.E(noteerr.KindStore, "store.file_paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, noteerr.E(noteerr.KindStore, "store.file_paths", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, noteerr.E(noteerr.KindStore, "store.file_paths", err)
	}

	return paths, nil
}

// Count returns the number of chunks in a table.
func (s *HNSWStore) Count(ctx context.Context, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errClosed("store.count")
	}
	if _, err := s.table(table, "store.count"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s", sqlTableName(table))).Scan(&count)
	if err != nil {
		return 0, noteerr.E(noteerr.KindStore, "store.count", err)
	}
	return count, nil
}

// Stats returns per-table chunk and distinct-file counts.
func (s *HNSWStore) Stats(ctx context.Context) (map[string]TableStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed("store.stats")
	}

	stats := make(map[string]TableStats, len(s.tables))
	for name := range s.tables {
		var ts TableStats
		err := s.db.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT COUNT(*), COUNT(DISTINCT file_path) FROM %s",
			sqlTableName(name))).Scan(&ts.Chunks, &ts.Files)
		if err != nil {
			return nil, noteerr.E(noteerr.KindStore, "store.stats", err)
		}
		stats[name] = ts
	}
	return stats, nil
}

// Save exports every graph (atomic temp file + rename) and forces a
// WAL checkpoint on the chunk database.
func (s *HNSWStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errClosed("store.save")
	}
	return s.saveLocked()
}

func (s *HNSWStore) saveLocked() error {
	if s.dir != "" {
		for name, t := range s.tables {
			if err := s.saveGraph(t, s.graphPath(name)); err != nil {
				return noteerr.E(noteerr.KindStore, "store.save", err)
			}
		}
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return noteerr.E(noteerr.KindStore, "store.save", err)
	}
	return nil
}

// Close saves best-effort and releases the database. Idempotent.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if err := s.saveLocked(); err != nil {
		slog.Warn("vector_store_save_on_close_failed",
			slog.String("error", err.Error()))
	}

	s.closed = true
	s.tables = nil
	return s.db.Close()
}

// table returns the named table or a classified error.
func (s *HNSWStore) table(name, op string) (*vectorTable, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, noteerr.Errorf(noteerr.KindStore, op, "unknown table %q", name)
	}
	return t, nil
}

// newGraph builds an empty HNSW graph with the store's parameters.
func (s *HNSWStore) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = s.cfg.M
	g.EfSearch = s.cfg.EfSearch
	g.Ml = 0.25
	return g
}

func (s *HNSWStore) graphPath(name string) string {
	return filepath.Join(s.dir, "vectors", name+".hnsw")
}

// loadTables discovers existing chunk tables and loads their graphs.
func (s *HNSWStore) loadTables() error {
	rows, err := s.db.Query(
		`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE 'chunks_%'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var sqlName string
		if err := rows.Scan(&sqlName); err != nil {
			rows.Close()
			return fmt.Errorf("scan table name: %w", err)
		}
		name := strings.TrimPrefix(sqlName, "chunks_")
		if validTableName.MatchString(name) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, name := range names {
		t, err := s.openTable(name)
		if err != nil {
			return err
		}
		s.tables[name] = t
	}
	return nil
}

// openTable builds the in-memory table, loading a persisted graph when
// one exists. A missing or unloadable graph clears the table's rows:
// rows without vectors would poison change detection and serve nothing.
func (s *HNSWStore) openTable(name string) (*vectorTable, error) {
	t := &vectorTable{
		graph:  s.newGraph(),
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
	if s.dir == "" {
		return t, nil
	}

	path := s.graphPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		var count int
		_ = s.db.QueryRow(fmt.Sprintf(
			"SELECT COUNT(*) FROM %s", sqlTableName(name))).Scan(&count)
		if count > 0 {
			slog.Warn("vector_graph_missing",
				slog.String("table", name),
				slog.Int("rows", count))
			if err := s.clearTableRows(name); err != nil {
				return nil, err
			}
			slog.Info("vector_table_cleared",
				slog.String("table", name),
				slog.String("reason", "graph file missing, please reindex"))
		}
		return t, nil
	}

	if err := s.loadGraph(t, path); err != nil {
		slog.Warn("vector_graph_unloadable",
			slog.String("table", name),
			slog.String("error", err.Error()))

		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		if clearErr := s.clearTableRows(name); clearErr != nil {
			return nil, clearErr
		}
		slog.Info("vector_table_cleared",
			slog.String("table", name),
			slog.String("reason", "graph unloadable, please reindex"))

		t.graph = s.newGraph()
		t.idMap = make(map[string]uint64)
		t.keyMap = make(map[uint64]string)
		t.nextKey = 0
	}

	return t, nil
}

// loadGraph restores the ID mappings and imports the graph export.
func (s *HNSWStore) loadGraph(t *vectorTable, path string) error {
	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open graph metadata: %w", err)
	}
	var meta hnswMetadata
	decodeErr := gob.NewDecoder(metaFile).Decode(&meta)
	_ = metaFile.Close()
	if decodeErr != nil {
		return fmt.Errorf("decode graph metadata: %w", decodeErr)
	}
	if meta.Dimensions != s.cfg.Dimensions {
		return fmt.Errorf("graph built with dimension %d, store configured for %d",
			meta.Dimensions, s.cfg.Dimensions)
	}

	t.idMap = meta.IDMap
	if t.idMap == nil {
		t.idMap = make(map[string]uint64)
	}
	t.keyMap = make(map[uint64]string, len(t.idMap))
	for id, key := range t.idMap {
		t.keyMap[key] = id
	}
	t.nextKey = meta.NextKey

	graphFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open graph file: %w", err)
	}
	defer graphFile.Close()

	// bufio.Reader because coder/hnsw Import requires io.ByteReader
	if err := t.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	return nil
}

// saveGraph exports the graph atomically, then writes its metadata.
func (s *HNSWStore) saveGraph(t *vectorTable, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create graph directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}

	if err := t.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close graph file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename graph file: %w", err)
	}

	return s.saveGraphMeta(t, path+".meta")
}

func (s *HNSWStore) saveGraphMeta(t *vectorTable, path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:      t.idMap,
		NextKey:    t.nextKey,
		Dimensions: s.cfg.Dimensions,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode graph metadata: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// loadChunks hydrates chunk rows for the given IDs.
func (s *HNSWStore) loadChunks(ctx context.Context, table string, ids []string) (map[string]*Chunk, error) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT id, file_path, file_hash, chunk_index, content, vault, title, category, people, projects, date
		 FROM %s WHERE id IN (%s)`,
		sqlTableName(table), strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	chunks := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		var c Chunk
		var people, projects string
		if err := rows.Scan(&c.ID, &c.FilePath, &c.FileHash, &c.ChunkIndex, &c.Content,
			&c.Vault, &c.Title, &c.Category, &people, &projects, &c.Date); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.People = unmarshalList(people)
		c.Projects = unmarshalList(projects)
		chunks[c.ID] = &c
	}

	return chunks, rows.Err()
}

func (s *HNSWStore) clearTableRows(name string) error {
	if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", sqlTableName(name))); err != nil {
		return fmt.Errorf("clear table %s: %w", name, err)
	}
	return nil
}

func sqlTableName(name string) string {
	return "chunks_" + name
}

func errClosed(op string) error {
	return noteerr.Errorf(noteerr.KindStore, op, "store is closed")
}

// matchesFilter applies the optional search filter to a chunk.
// Category comparison and person membership are case-insensitive.
func matchesFilter(c *Chunk, f *SearchFilter) bool {
	if f.Empty() {
		return true
	}
	if f.Category != "" && !strings.EqualFold(c.Category, f.Category) {
		return false
	}
	if f.Person != "" && !containsFold(c.People, f.Person) {
		return false
	}
	return true
}

func marshalList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalList(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}
