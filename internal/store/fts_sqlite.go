package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/noterag/noterag/internal/noteerr"
)

// SQLiteFTS implements FTSStore using a SQLite FTS5 virtual table.
// WAL mode allows the searcher to read while an indexing pass writes.
type SQLiteFTS struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	closed    bool
	stopWords map[string]struct{}
}

// Verify interface implementation at compile time
var _ FTSStore = (*SQLiteFTS)(nil)

// validateFTSIntegrity checks the FTS database before opening.
// Returns nil if valid or absent, an error describing corruption if not.
func validateFTSIntegrity(path string) error {
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

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='notes'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'notes' missing")
	}

	return nil
}

// NewSQLiteFTS opens or creates the FTS index at path. A corrupted
// database is cleared so the next indexing pass rebuilds it. An empty
// path creates an in-memory index for testing.
func NewSQLiteFTS(path string) (*SQLiteFTS, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, noteerr.E(noteerr.KindStore, "fts.open",
				fmt.Errorf("create directory %s: %w", dir, err))
		}

		if validErr := validateFTSIntegrity(path); validErr != nil {
			slog.Warn("fts_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, noteerr.E(noteerr.KindStore, "fts.open",
					fmt.Errorf("FTS index corrupted at %s and cannot remove: %w (original error: %v)",
						path, removeErr, validErr))
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("fts_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, noteerr.E(noteerr.KindStore, "fts.open",
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
			return nil, noteerr.E(noteerr.KindStore, "fts.open",
				fmt.Errorf("set pragma: %w", err))
		}
	}

	idx := &SQLiteFTS{
		db:        db,
		path:      path,
		stopWords: BuildStopWordMap(DefaultNoteStopWords),
	}

	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, noteerr.E(noteerr.KindStore, "fts.open",
			fmt.Errorf("initialize schema: %w", err))
	}

	return idx, nil
}

// initSchema creates the FTS5 virtual table. Both vaults share one
// table with a vault column; title and content are the searchable
// columns, the rest are stored but unindexed.
func (s *SQLiteFTS) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS notes USING fts5(
		file_path UNINDEXED,
		vault UNINDEXED,
		title,
		category UNINDEXED,
		people UNINDEXED,
		projects UNINDEXED,
		date UNINDEXED,
		content,
		tokenize='unicode61'
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertDocument atomically replaces the row for doc.FilePath.
// FTS5 virtual tables don't support REPLACE, so delete-then-insert
// inside one transaction.
func (s *SQLiteFTS) UpsertDocument(ctx context.Context, doc *FTSDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed("fts.upsert")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return noteerr.E(noteerr.KindStore, "fts.upsert",
			fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM notes WHERE file_path = ?`, doc.FilePath); err != nil {
		return noteerr.E(noteerr.KindStore, "fts.upsert",
			fmt.Errorf("delete existing row %s: %w", doc.FilePath, err))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notes (file_path, vault, title, category, people, projects, date, content)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.FilePath, doc.Vault, doc.Title, doc.Category,
		marshalList(doc.People), marshalList(doc.Projects),
		doc.Date, doc.Content); err != nil {
		return noteerr.E(noteerr.KindStore, "fts.upsert",
			fmt.Errorf("insert row %s: %w", doc.FilePath, err))
	}

	if err := tx.Commit(); err != nil {
		return noteerr.E(noteerr.KindStore, "fts.upsert",
			fmt.Errorf("commit: %w", err))
	}
	return nil
}

// DeleteDocument removes one note. Missing rows are not an error.
func (s *SQLiteFTS) DeleteDocument(ctx context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed("fts.delete")
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM notes WHERE file_path = ?`, filePath); err != nil {
		return noteerr.E(noteerr.KindStore, "fts.delete", err)
	}
	return nil
}

// DeleteVault removes every note belonging to one vault.
func (s *SQLiteFTS) DeleteVault(ctx context.Context, vault string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed("fts.delete_vault")
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM notes WHERE vault = ?`, vault); err != nil {
		return noteerr.E(noteerr.KindStore, "fts.delete_vault", err)
	}
	return nil
}

// Search matches the query against title and content and ranks by
// BM25. Query terms are ORed; any matching term qualifies a note.
func (s *SQLiteFTS) Search(ctx context.Context, query, vault, person string, limit int) ([]*FTSHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed("fts.search")
	}

	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*FTSHit{}, nil
	}

	tokens := TokenizeQuery(query, s.stopWords)
	if len(tokens) == 0 {
		return []*FTSHit{}, nil
	}
	match := BuildMatchQuery(tokens)

	// snippet() over the content column (index 7); bm25() is negative,
	// lower = better, so order ascending and negate for callers.
	sqlQuery := `
		SELECT file_path, vault, title, category, people, date,
		       snippet(notes, 7, '', '', '...', 24) AS snip,
		       bm25(notes) AS score
		FROM notes
		WHERE notes MATCH ?`
	args := []any{match}

	if vault != "" && vault != "all" {
		sqlQuery += ` AND vault = ?`
		args = append(args, vault)
	}
	if person != "" {
		// Exact quoted-member match against the JSON people list;
		// LIKE is case-insensitive for ASCII.
		sqlQuery += ` AND people LIKE '%"' || ? || '"%'`
		args = append(args, person)
	}

	sqlQuery += `
		ORDER BY score
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		// FTS5 returns an error for invalid match queries; treat as no results
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*FTSHit{}, nil
		}
		return nil, noteerr.E(noteerr.KindStore, "fts.search",
			fmt.Errorf("search failed: %w", err))
	}
	defer rows.Close()

	var hits []*FTSHit
	for rows.Next() {
		var h FTSHit
		var people string
		var score float64
		if err := rows.Scan(&h.FilePath, &h.Vault, &h.Title, &h.Category,
			&people, &h.Date, &h.Snippet, &score); err != nil {
			return nil, noteerr.E(noteerr.KindStore, "fts.search",
				fmt.Errorf("scan result: %w", err))
		}
		h.People = unmarshalList(people)
		h.Score = -score
		hits = append(hits, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, noteerr.E(noteerr.KindStore, "fts.search", err)
	}

	return hits, nil
}

// DocumentCount returns the number of indexed notes.
func (s *SQLiteFTS) DocumentCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errClosed("fts.count")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count); err != nil {
		return 0, noteerr.E(noteerr.KindStore, "fts.count", err)
	}
	return count, nil
}

// Save forces a WAL checkpoint so all changes reach the main database.
func (s *SQLiteFTS) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed("fts.save")
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return noteerr.E(noteerr.KindStore, "fts.save", err)
	}
	return nil
}

// Close checkpoints and closes the database. Idempotent.
func (s *SQLiteFTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
