package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/noterag/noterag/internal/noteerr"
)

const (
	// NoteStopFilterName is the name of the registered stop word filter.
	NoteStopFilterName = "note_stop"

	// NoteAnalyzerName is the name of the note text analyzer.
	NoteAnalyzerName = "note_analyzer"
)

func init() {
	_ = registry.RegisterTokenFilter(NoteStopFilterName, noteStopFilterConstructor)
}

// BleveFTS implements FTSStore using Bleve v2. The document ID is the
// file path, so indexing the same path replaces the prior row.
type BleveFTS struct {
	mu        sync.RWMutex
	index     bleve.Index
	path      string
	closed    bool
	stopWords map[string]struct{}
}

// bleveNote is the indexed document shape. Title and content are
// searchable; the rest are stored for hydration only.
type bleveNote struct {
	Vault    string   `json:"vault"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	People   []string `json:"people"`
	Projects []string `json:"projects"`
	Date     string   `json:"date"`
	Content  string   `json:"content"`
}

// Verify interface implementation at compile time
var _ FTSStore = (*BleveFTS)(nil)

// validateBleveIntegrity checks a Bleve index directory before opening.
// Returns nil if valid or absent, an error describing corruption if not.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Index doesn't exist, will be created
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isBleveCorruptionError checks if an error indicates index corruption.
func isBleveCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveFTS opens or creates the FTS index at path. A corrupted
// index is cleared so the next indexing pass rebuilds it. An empty
// path creates an in-memory index for testing.
func NewBleveFTS(path string) (*BleveFTS, error) {
	indexMapping, err := createNoteIndexMapping()
	if err != nil {
		return nil, noteerr.E(noteerr.KindStore, "fts.open",
			fmt.Errorf("create index mapping: %w", err))
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, noteerr.E(noteerr.KindStore, "fts.open",
				fmt.Errorf("create directory %s: %w", dir, err))
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("fts_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, noteerr.E(noteerr.KindStore, "fts.open",
					fmt.Errorf("FTS index corrupted at %s and cannot remove: %w (original error: %v)",
						path, removeErr, validErr))
			}
			slog.Info("fts_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isBleveCorruptionError(err) {
			slog.Warn("fts_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, noteerr.E(noteerr.KindStore, "fts.open",
					fmt.Errorf("FTS index corrupted, cannot clear: %w (original: %v)", removeErr, err))
			}
			slog.Info("fts_index_cleared",
				slog.String("path", path),
				slog.String("reason", "open failed with corruption, please reindex"))

			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, noteerr.E(noteerr.KindStore, "fts.open",
			fmt.Errorf("create/open index: %w", err))
	}

	return &BleveFTS{
		index:     idx,
		path:      path,
		stopWords: BuildStopWordMap(DefaultNoteStopWords),
	}, nil
}

// createNoteIndexMapping builds the index mapping: unicode tokenizer,
// lowercase, stop words for title and content; vault as a keyword
// field for exact filtering; everything else stored but unindexed.
func createNoteIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(NoteAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			NoteStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	textField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = NoteAnalyzerName
		fm.Store = true
		return fm
	}
	storedField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Index = false
		fm.Store = true
		fm.IncludeInAll = false
		return fm
	}

	vaultField := bleve.NewTextFieldMapping()
	vaultField.Analyzer = keyword.Name
	vaultField.Store = true
	vaultField.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("title", textField())
	docMapping.AddFieldMappingsAt("content", textField())
	docMapping.AddFieldMappingsAt("vault", vaultField)
	docMapping.AddFieldMappingsAt("category", storedField())
	docMapping.AddFieldMappingsAt("people", storedField())
	docMapping.AddFieldMappingsAt("projects", storedField())
	docMapping.AddFieldMappingsAt("date", storedField())

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = NoteAnalyzerName

	return indexMapping, nil
}

// UpsertDocument replaces the row for doc.FilePath.
func (b *BleveFTS) UpsertDocument(ctx context.Context, doc *FTSDocument) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errClosed("fts.upsert")
	}

	note := bleveNote{
		Vault:    doc.Vault,
		Title:    doc.Title,
		Category: doc.Category,
		People:   doc.People,
		Projects: doc.Projects,
		Date:     doc.Date,
		Content:  doc.Content,
	}
	if err := b.index.Index(doc.FilePath, note); err != nil {
		return noteerr.E(noteerr.KindStore, "fts.upsert",
			fmt.Errorf("index document %s: %w", doc.FilePath, err))
	}
	return nil
}

// DeleteDocument removes one note. Missing rows are not an error.
func (b *BleveFTS) DeleteDocument(ctx context.Context, filePath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errClosed("fts.delete")
	}

	if err := b.index.Delete(filePath); err != nil {
		return noteerr.E(noteerr.KindStore, "fts.delete", err)
	}
	return nil
}

// DeleteVault removes every note belonging to one vault.
func (b *BleveFTS) DeleteVault(ctx context.Context, vault string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errClosed("fts.delete_vault")
	}

	tq := bleve.NewTermQuery(vault)
	tq.SetField("vault")

	docCount, _ := b.index.DocCount()
	req := bleve.NewSearchRequest(tq)
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return noteerr.E(noteerr.KindStore, "fts.delete_vault",
			fmt.Errorf("find vault rows: %w", err))
	}
	if len(result.Hits) == 0 {
		return nil
	}

	batch := b.index.NewBatch()
	for _, hit := range result.Hits {
		batch.Delete(hit.ID)
	}
	if err := b.index.Batch(batch); err != nil {
		return noteerr.E(noteerr.KindStore, "fts.delete_vault",
			fmt.Errorf("delete vault rows: %w", err))
	}
	return nil
}

// Search matches the query against title and content. The person
// filter is applied after scoring, so the candidate pool is widened
// to keep the limit fillable.
func (b *BleveFTS) Search(ctx context.Context, queryStr, vault, person string, limit int) ([]*FTSHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, errClosed("fts.search")
	}

	if strings.TrimSpace(queryStr) == "" || limit <= 0 {
		return []*FTSHit{}, nil
	}

	tokens := TokenizeQuery(queryStr, b.stopWords)
	if len(tokens) == 0 {
		return []*FTSHit{}, nil
	}
	processed := strings.Join(tokens, " ")

	contentQuery := bleve.NewMatchQuery(processed)
	contentQuery.SetField("content")
	titleQuery := bleve.NewMatchQuery(processed)
	titleQuery.SetField("title")

	var full query.Query = bleve.NewDisjunctionQuery(contentQuery, titleQuery)
	if vault != "" && vault != "all" {
		tq := bleve.NewTermQuery(vault)
		tq.SetField("vault")
		full = bleve.NewConjunctionQuery(full, tq)
	}

	size := limit
	if person != "" {
		size = limit * 3
	}

	req := bleve.NewSearchRequest(full)
	req.Size = size
	req.Fields = []string{"vault", "title", "category", "people", "date", "content"}
	req.IncludeLocations = true // for snippet derivation

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, noteerr.E(noteerr.KindStore, "fts.search",
			fmt.Errorf("search failed: %w", err))
	}

	hits := make([]*FTSHit, 0, limit)
	for _, hit := range result.Hits {
		people := stringsFromField(hit.Fields["people"])
		if person != "" && !containsFold(people, person) {
			continue
		}

		content := stringFromField(hit.Fields["content"])
		hits = append(hits, &FTSHit{
			FilePath: hit.ID,
			Vault:    stringFromField(hit.Fields["vault"]),
			Title:    stringFromField(hit.Fields["title"]),
			Category: stringFromField(hit.Fields["category"]),
			Date:     stringFromField(hit.Fields["date"]),
			People:   people,
			Snippet:  makeSnippet(content, hit.Locations),
			Score:    hit.Score,
		})
		if len(hits) == limit {
			break
		}
	}

	return hits, nil
}

// DocumentCount returns the number of indexed notes.
func (b *BleveFTS) DocumentCount(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, errClosed("fts.count")
	}

	count, err := b.index.DocCount()
	if err != nil {
		return 0, noteerr.E(noteerr.KindStore, "fts.count", err)
	}
	return int(count), nil
}

// Save is a no-op: a disk-backed Bleve index persists automatically.
func (b *BleveFTS) Save() error {
	return nil
}

// Close closes the index. Idempotent.
func (b *BleveFTS) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// makeSnippet cuts a window of content around the earliest match.
// Mirrors the size of the SQLite backend's snippet() output.
func makeSnippet(content string, locations search.FieldTermLocationMap) string {
	const window = 220
	if content == "" {
		return ""
	}

	best := -1
	if terms, ok := locations["content"]; ok {
		for _, locs := range terms {
			for _, loc := range locs {
				if best == -1 || int(loc.Start) < best {
					best = int(loc.Start)
				}
			}
		}
	}

	if best < 0 {
		if len(content) <= window {
			return content
		}
		end := window
		for end > 0 && !utf8.RuneStart(content[end]) {
			end--
		}
		return content[:end] + "..."
	}

	start := best - 60
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(content) {
		end = len(content)
	}
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	snip := content[start:end]
	if start > 0 {
		snip = "..." + snip
	}
	if end < len(content) {
		snip += "..."
	}
	return snip
}

// stringFromField extracts a stored string field value.
func stringFromField(v any) string {
	s, _ := v.(string)
	return s
}

// stringsFromField extracts a stored string-array field value. Bleve
// returns a bare string when the array held a single element.
func stringsFromField(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// noteStopFilterConstructor creates the note stop word filter.
func noteStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &noteStopFilter{
		stopWords: BuildStopWordMap(DefaultNoteStopWords),
	}, nil
}

// noteStopFilter implements analysis.TokenFilter for note stop words.
type noteStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *noteStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
