package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/embed"
	"github.com/noterag/noterag/internal/llm"
	"github.com/noterag/noterag/internal/noteerr"
	"github.com/noterag/noterag/internal/store"
)

const (
	// DefaultCandidateLimit is the per-branch depth feeding fusion.
	DefaultCandidateLimit = 30

	// excerptChars caps the display excerpt derived from chunk content.
	excerptChars = 300

	sourceVector = "vector"
	sourceBM25   = "bm25"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Searcher answers queries against the indexed vaults. Every public
// method degrades instead of failing outright: a dead backend costs a
// branch or a quality pass, never the whole request.
type Searcher struct {
	cfg      *config.Config
	vectors  store.VectorStore
	embedder embed.Embedder
	fts      store.FTSStore
	reranker *Reranker
	answerer llm.Completer
}

// SearcherOption attaches an optional collaborator.
type SearcherOption func(*Searcher)

// WithFTS attaches the document-level BM25 store. Without it the
// lexical branch contributes nothing.
func WithFTS(fts store.FTSStore) SearcherOption {
	return func(s *Searcher) { s.fts = fts }
}

// WithReranker attaches the small-model pass used by query mode.
func WithReranker(r *Reranker) SearcherOption {
	return func(s *Searcher) { s.reranker = r }
}

// WithAnswerer attaches the chat gateway used by Answer.
func WithAnswerer(c llm.Completer) SearcherOption {
	return func(s *Searcher) { s.answerer = c }
}

// NewSearcher creates a Searcher over the given stores. The vector
// store and embedder are required; FTS, reranker, and answerer are
// optional and their absence degrades the matching feature.
func NewSearcher(cfg *config.Config, vectors store.VectorStore, embedder embed.Embedder, opts ...SearcherOption) (*Searcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrNilDependency)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	s := &Searcher{cfg: cfg, vectors: vectors, embedder: embedder}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search dispatches to the pipeline named by opts.Mode (hybrid when
// unset or unknown) and resolves each result's display excerpt.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	opts = s.applyDefaults(opts)

	var results []*Result
	var err error
	switch opts.Mode {
	case ModeVector:
		results, err = s.VectorSearch(ctx, query, opts)
	case ModeBM25:
		results, err = s.BM25Search(ctx, query, opts)
	case ModeQuery:
		results, err = s.QuerySearch(ctx, query, opts)
	default:
		results, err = s.HybridSearch(ctx, query, opts)
	}
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		r.Excerpt = excerptOf(r)
	}
	return results, nil
}

// VectorSearch is pure semantic search. An embedding failure degrades
// to empty results so callers keep whatever other branches produce.
func (s *Searcher) VectorSearch(ctx context.Context, query string, opts Options) ([]*Result, error) {
	opts = s.applyDefaults(opts)

	results, err := s.vectorCandidates(ctx, query, opts, opts.Limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("vector search degraded to empty", slog.String("error", err.Error()))
		return []*Result{}, nil
	}
	return results, nil
}

// BM25Search is pure lexical search. An absent or failing FTS store
// yields empty results, never an error.
func (s *Searcher) BM25Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	opts = s.applyDefaults(opts)

	results, err := s.bm25Candidates(ctx, query, opts, opts.Limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("bm25 search degraded to empty", slog.String("error", err.Error()))
		return []*Result{}, nil
	}
	return results, nil
}

// HybridSearch runs both branches in parallel and fuses them with RRF.
// One failing branch degrades to the other branch's results; both
// failing is an error.
func (s *Searcher) HybridSearch(ctx context.Context, query string, opts Options) ([]*Result, error) {
	opts = s.applyDefaults(opts)
	candidates := s.candidateLimit()

	var bm25Results, vecResults []*Result
	var bm25Err, vecErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bm25Results, bm25Err = s.bm25Candidates(gctx, query, opts, candidates)
		return nil
	})
	g.Go(func() error {
		vecResults, vecErr = s.vectorCandidates(gctx, query, opts, candidates)
		return nil
	})
	_ = g.Wait()

	if bm25Err != nil && vecErr != nil {
		return nil, noteerr.E(noteerr.KindTransient, "search.hybrid", errors.Join(bm25Err, vecErr))
	}
	if bm25Err != nil {
		slog.Warn("bm25 branch failed", slog.String("error", bm25Err.Error()))
		bm25Results = nil
	}
	if vecErr != nil {
		slog.Warn("vector branch failed", slog.String("error", vecErr.Error()))
		vecResults = nil
	}

	slog.Debug("hybrid branches",
		slog.Int("bm25", len(bm25Results)),
		slog.Int("vector", len(vecResults)))

	fused := ReciprocalRankFusion([][]*Result{bm25Results, vecResults}, s.rrfK())
	NormalizeScores(fused)
	if len(fused) > opts.Limit {
		fused = fused[:opts.Limit]
	}
	return fused, nil
}

// QuerySearch is the full pipeline: optional query expansion, hybrid
// search per query, fusion across queries, and an optional rerank pass
// blended into the fused order.
func (s *Searcher) QuerySearch(ctx context.Context, query string, opts Options) ([]*Result, error) {
	opts = s.applyDefaults(opts)

	queries := []string{query}
	if opts.ExpandQuery && s.reranker != nil {
		queries = s.reranker.ExpandQuery(ctx, query)
		slog.Debug("query expanded", slog.Int("queries", len(queries)))
	}

	hybridOpts := opts
	hybridOpts.Limit = s.candidateLimit()

	lists := make([][]*Result, 0, len(queries)+1)
	for _, q := range queries {
		results, err := s.HybridSearch(ctx, q, hybridOpts)
		if err != nil {
			return nil, err
		}
		lists = append(lists, results)
	}

	// The original query's list enters fusion twice, doubling its
	// weight against the expanded variants.
	if len(lists) > 1 {
		lists = append([][]*Result{lists[0]}, lists...)
	}

	fused := ReciprocalRankFusion(lists, s.rrfK())

	if opts.Rerank && s.reranker != nil && len(fused) > 0 {
		scores := s.reranker.Rerank(ctx, query, fused)
		// An empty map means the judge backend is down; keep the
		// fused scores untouched rather than blending against zeros.
		if len(scores) > 0 {
			fused = PositionAwareBlend(fused, scores)
		}
		slog.Debug("reranked", slog.Int("scored", len(scores)))
	}

	if len(fused) > opts.Limit {
		fused = fused[:opts.Limit]
	}
	return fused, nil
}

// vectorCandidates embeds the query and searches the selected tables.
// A per-table store error drops that table's hits; an embedding
// failure fails the whole branch.
func (s *Searcher) vectorCandidates(ctx context.Context, query string, opts Options, limit int) ([]*Result, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	filter := &store.SearchFilter{Category: opts.Category, Person: opts.Person}
	results := []*Result{}
	for _, table := range tablesFor(opts.Vault) {
		hits, err := s.vectors.Search(ctx, table, vec, limit, filter)
		if err != nil {
			slog.Error("vector table search failed",
				slog.String("table", table),
				slog.String("error", err.Error()))
			continue
		}
		for _, hit := range hits {
			results = append(results, vectorResult(hit, table))
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// bm25Candidates queries the FTS store. A missing store is not an
// error, it just contributes nothing.
func (s *Searcher) bm25Candidates(ctx context.Context, query string, opts Options, limit int) ([]*Result, error) {
	if s.fts == nil {
		return []*Result{}, nil
	}

	hits, err := s.fts.Search(ctx, query, string(opts.Vault), opts.Person, limit)
	if err != nil {
		return nil, err
	}
	results := make([]*Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, bm25Result(hit))
	}
	return results, nil
}

func (s *Searcher) applyDefaults(opts Options) Options {
	if opts.Vault == "" {
		opts.Vault = config.VaultAll
	}
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	if opts.Limit <= 0 {
		opts.Limit = s.cfg.Search.DefaultLimit
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if max := s.cfg.Search.MaxLimit; max > 0 && opts.Limit > max {
		opts.Limit = max
	}
	return opts
}

func (s *Searcher) candidateLimit() int {
	if s.cfg.Search.CandidateLimit > 0 {
		return s.cfg.Search.CandidateLimit
	}
	return DefaultCandidateLimit
}

func (s *Searcher) rrfK() int {
	if s.cfg.Search.RRFConstant > 0 {
		return s.cfg.Search.RRFConstant
	}
	return DefaultRRFConstant
}

// tablesFor maps the vault selector to vector table names. An unknown
// selector matches nothing.
func tablesFor(vault config.VaultName) []string {
	var tables []string
	if vault == config.VaultAll || vault == config.VaultWork {
		tables = append(tables, string(config.VaultWork))
	}
	if vault == config.VaultAll || vault == config.VaultPersonal {
		tables = append(tables, string(config.VaultPersonal))
	}
	return tables
}

// vectorResult converts a vector hit to a search result. L2 distance
// becomes similarity via 1/(1+d).
func vectorResult(hit *store.VectorHit, table string) *Result {
	c := hit.Chunk
	excerpt := c.Content
	if utf8.RuneCountInString(excerpt) > excerptChars {
		excerpt = firstRunes(excerpt, excerptChars) + "..."
	}
	return &Result{
		Score:    1.0 / (1.0 + float64(hit.Distance)),
		FilePath: c.FilePath,
		Title:    c.Title,
		Excerpt:  excerpt,
		Date:     c.Date,
		People:   c.People,
		Category: c.Category,
		Vault:    table,
		Content:  c.Content,
		Source:   sourceVector,
	}
}

// bm25Result converts an FTS hit to a search result.
func bm25Result(hit *store.FTSHit) *Result {
	return &Result{
		Score:    hit.Score,
		FilePath: hit.FilePath,
		Title:    hit.Title,
		Date:     hit.Date,
		People:   hit.People,
		Category: hit.Category,
		Vault:    hit.Vault,
		Snippet:  hit.Snippet,
		Source:   sourceBM25,
	}
}

// excerptOf resolves the display excerpt: the vector branch's excerpt,
// else the FTS snippet, else truncated content.
func excerptOf(r *Result) string {
	if r.Excerpt != "" {
		return r.Excerpt
	}
	if r.Snippet != "" {
		return r.Snippet
	}
	if utf8.RuneCountInString(r.Content) > excerptChars {
		return firstRunes(r.Content, excerptChars) + "..."
	}
	return r.Content
}
