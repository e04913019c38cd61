package store

import (
	"os"
	"path/filepath"

	"github.com/noterag/noterag/internal/noteerr"
)

// FTSBackend selects the full-text index implementation.
type FTSBackend string

const (
	// FTSBackendSQLite uses SQLite FTS5 (default). WAL mode allows
	// concurrent multi-process access.
	FTSBackendSQLite FTSBackend = "sqlite"

	// FTSBackendBleve uses Bleve v2. BoltDB holds an exclusive file
	// lock, so single process only.
	FTSBackendBleve FTSBackend = "bleve"
)

// NewFTSStore creates an FTSStore in dataDir using the configured
// backend. An empty dataDir creates an in-memory index for testing.
func NewFTSStore(dataDir, backend string) (FTSStore, error) {
	switch backend {
	case string(FTSBackendSQLite), "":
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "fts.db")
		}
		return NewSQLiteFTS(path)

	case string(FTSBackendBleve):
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "fts.bleve")
		}
		return NewBleveFTS(path)

	default:
		return nil, noteerr.Errorf(noteerr.KindConfig, "fts.open",
			"unknown FTS backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// DetectFTSBackend detects which backend an existing index uses based
// on file existence. Returns "" when no index exists.
func DetectFTSBackend(dataDir string) FTSBackend {
	if fileExists(filepath.Join(dataDir, "fts.db")) {
		return FTSBackendSQLite
	}
	if dirExists(filepath.Join(dataDir, "fts.bleve")) {
		return FTSBackendBleve
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
