package telemetry

import (
	"database/sql"
	"fmt"
	"time"
)

// zeroResultRows caps the persisted zero-result table.
const zeroResultRows = 100

// Store persists query aggregates in SQLite. It wraps a connection the
// caller owns and closes; run InitSchema against it first.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &Store{db: db}, nil
}

var _ FlushTarget = (*Store)(nil)

// InitSchema creates the telemetry tables when missing.
func InitSchema(db *sql.DB) error {
	schema := `
	-- Searches per mode, aggregated daily
	CREATE TABLE IF NOT EXISTS query_mode_stats (
		date  TEXT NOT NULL,
		mode  TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, mode)
	);

	-- Searches per vault selector, aggregated daily
	CREATE TABLE IF NOT EXISTS query_vault_stats (
		date  TEXT NOT NULL,
		vault TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, vault)
	);

	-- Query term frequencies
	CREATE TABLE IF NOT EXISTS query_terms (
		term      TEXT PRIMARY KEY,
		count     INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	-- Recent queries that returned nothing (newest 100 kept)
	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		query     TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Latency histogram, aggregated daily
	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date   TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// saveDatedCounts adds deltas into a (date, key, count) table. The
// table and column names are fixed package constants, never input.
func (s *Store) saveDatedCounts(table, column, date string, counts map[string]int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (date, %s, count) VALUES (?, ?, ?)
		ON CONFLICT(date, %s) DO UPDATE SET count = count + excluded.count
	`, table, column, column))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, count := range counts {
		if _, err := stmt.Exec(date, key, count); err != nil {
			return fmt.Errorf("upsert %s count: %w", column, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) datedCounts(table, column, from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s, SUM(count) FROM %s
		WHERE date >= ? AND date <= ?
		GROUP BY %s
	`, column, table, column), from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s counts: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// SaveModeCounts adds per-mode deltas for a day.
func (s *Store) SaveModeCounts(date string, counts map[string]int64) error {
	return s.saveDatedCounts("query_mode_stats", "mode", date, counts)
}

// ModeCounts sums per-mode counts over an inclusive date range.
func (s *Store) ModeCounts(from, to string) (map[string]int64, error) {
	return s.datedCounts("query_mode_stats", "mode", from, to)
}

// SaveVaultCounts adds per-vault deltas for a day.
func (s *Store) SaveVaultCounts(date string, counts map[string]int64) error {
	return s.saveDatedCounts("query_vault_stats", "vault", date, counts)
}

// VaultCounts sums per-vault counts over an inclusive date range.
func (s *Store) VaultCounts(from, to string) (map[string]int64, error) {
	return s.datedCounts("query_vault_stats", "vault", from, to)
}

// SaveLatencyCounts adds histogram deltas for a day.
func (s *Store) SaveLatencyCounts(date string, counts map[Bucket]int64) error {
	plain := make(map[string]int64, len(counts))
	for bucket, count := range counts {
		plain[string(bucket)] = count
	}
	return s.saveDatedCounts("query_latency_stats", "bucket", date, plain)
}

// LatencyCounts sums histogram counts over an inclusive date range.
func (s *Store) LatencyCounts(from, to string) (map[Bucket]int64, error) {
	plain, err := s.datedCounts("query_latency_stats", "bucket", from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[Bucket]int64, len(plain))
	for bucket, count := range plain {
		counts[Bucket(bucket)] = count
	}
	return counts, nil
}

// UpsertTermCounts adds term frequency deltas.
func (s *Store) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for term, count := range terms {
		if _, err := stmt.Exec(term, count); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TopTerms returns the most frequent terms, highest count first.
func (s *Store) TopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`
		SELECT term, count FROM query_terms
		ORDER BY count DESC, term ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// AddZeroResult records a query that returned nothing and trims the
// table to the newest entries.
func (s *Store) AddZeroResult(query string, at time.Time) error {
	if _, err := s.db.Exec(`
		INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)
	`, query, at); err != nil {
		return fmt.Errorf("insert zero-result query: %w", err)
	}

	if _, err := s.db.Exec(`
		DELETE FROM zero_result_queries
		WHERE id NOT IN (
			SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?
		)
	`, zeroResultRows); err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// ZeroResults returns recent zero-result queries, newest first.
func (s *Store) ZeroResults(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT query FROM zero_result_queries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}
