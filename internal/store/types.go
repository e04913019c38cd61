// Package store is the persistence layer: a chunk-level vector store
// (HNSW graph plus chunk rows in SQLite) and a document-level BM25
// full-text index with interchangeable SQLite FTS5 and Bleve backends.
package store

import (
	"context"
	"fmt"
	"strconv"
)

// Chunk is one stored slice of a note. Document metadata is replicated
// onto every chunk so search filters push down without a join.
type Chunk struct {
	ID         string // FileHash + "_" + ChunkIndex
	FilePath   string // absolute path of the source note
	FileHash   string // shared by all chunks of one file version
	ChunkIndex int    // 0-based, dense per file
	Content    string
	Vault      string // work, personal, or unknown
	Title      string
	Category   string
	People     []string
	Projects   []string
	Date       string // yyyy-mm-dd or empty
	Vector     []float32
}

// ChunkID builds the stored chunk identifier.
func ChunkID(fileHash string, index int) string {
	return fileHash + "_" + strconv.Itoa(index)
}

// VectorHit is a nearest-neighbor match. Distance is L2; smaller is
// more similar. The Chunk carries metadata but not the stored vector.
type VectorHit struct {
	Chunk    *Chunk
	Distance float32
}

// SearchFilter restricts vector search results. Zero value matches
// everything. Category is an equality test; Person is a membership
// test against the chunk's people list (case-insensitive).
type SearchFilter struct {
	Category string
	Person   string
}

// Empty reports whether the filter imposes no constraint.
func (f *SearchFilter) Empty() bool {
	return f == nil || (f.Category == "" && f.Person == "")
}

// TableStats summarizes one vector table.
type TableStats struct {
	Chunks int
	Files  int
}

// VectorStore persists chunks per named table ("work", "personal") and
// answers nearest-neighbor queries over their vectors.
type VectorStore interface {
	// CreateTable ensures a table exists. Idempotent.
	CreateTable(ctx context.Context, name string) error

	// Upsert writes chunks into a table. Callers delete prior rows for
	// the same file first; an existing chunk ID is replaced.
	Upsert(ctx context.Context, table string, chunks []*Chunk) error

	// DeleteByFile removes every chunk for one file path. Missing rows
	// are not an error.
	DeleteByFile(ctx context.Context, table, filePath string) error

	// Truncate removes all rows from a table.
	Truncate(ctx context.Context, table string) error

	// Search returns up to limit nearest chunks, optionally filtered.
	Search(ctx context.Context, table string, query []float32, limit int, filter *SearchFilter) ([]*VectorHit, error)

	// FileHashes returns file_path -> file_hash for every indexed file.
	// The incremental indexer uses it as its skip set.
	FileHashes(ctx context.Context, table string) (map[string]string, error)

	// FilePaths returns the distinct indexed file paths.
	FilePaths(ctx context.Context, table string) ([]string, error)

	// Count returns the number of chunks in a table.
	Count(ctx context.Context, table string) (int, error)

	// Stats returns per-table chunk and file counts.
	Stats(ctx context.Context) (map[string]TableStats, error)

	// Save persists graphs and checkpoints the database.
	Save() error

	Close() error
}

// FTSDocument is one note in the document-level full-text index.
type FTSDocument struct {
	FilePath string
	Vault    string
	Title    string
	Category string
	People   []string
	Projects []string
	Date     string
	Content  string
}

// FTSHit is a BM25 match. Score is positive; higher is better.
type FTSHit struct {
	FilePath string
	Vault    string
	Title    string
	Category string
	Date     string
	People   []string
	Snippet  string
	Score    float64
}

// FTSStore is the document-level keyword index, keyed by file path.
type FTSStore interface {
	// UpsertDocument atomically replaces the row for doc.FilePath.
	UpsertDocument(ctx context.Context, doc *FTSDocument) error

	// DeleteDocument removes one note. Missing rows are not an error.
	DeleteDocument(ctx context.Context, filePath string) error

	// DeleteVault removes every note belonging to one vault.
	DeleteVault(ctx context.Context, vault string) error

	// Search matches the query against title and content. vault of
	// "all" or "" searches both vaults; person filters to notes whose
	// people list contains the name.
	Search(ctx context.Context, query, vault, person string, limit int) ([]*FTSHit, error)

	// DocumentCount returns the number of indexed notes.
	DocumentCount(ctx context.Context) (int, error)

	// Save flushes pending writes to disk.
	Save() error

	Close() error
}

// VectorConfig configures the HNSW-backed vector store.
type VectorConfig struct {
	// Dimensions is the embedding vector dimension.
	Dimensions int

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorConfig returns sensible defaults for the given dimension.
func DefaultVectorConfig(dimensions int) VectorConfig {
	return VectorConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}

// ErrDimensionMismatch indicates a vector of the wrong dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'noterag index --full')", e.Expected, e.Got)
}
