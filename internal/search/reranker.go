package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/noterag/noterag/internal/llm"
)

const (
	// DefaultRerankTopK caps how many fused candidates are judged.
	DefaultRerankTopK = 30

	// DefaultRerankConcurrency bounds parallel judge calls.
	DefaultRerankConcurrency = 5

	// rerankDocChars truncates a document before judging so the small
	// model's context is never overflowed.
	rerankDocChars = 2000

	scoreNumPredict   = 10
	expandNumPredict  = 50
	expandTemperature = 0.7
)

const rerankPrompt = `You are a relevance judge. Given a query and a document, determine if the document is relevant.

Query: %s

Document:
%s

Is this document relevant to the query? Answer with only YES or NO.`

const expandPrompt = `Generate 2 alternative search queries for: "%s"

Rules:
- Keep the same meaning/intent
- Use different words or phrasings
- One should be more specific, one more general
- Keep each under 10 words

Output exactly 2 lines, one query per line:`

var expansionPrefixes = []string{"1.", "2.", "1:", "2:", "1)", "2)", "-", "•"}

// Reranker scores candidate documents and expands queries with a small
// local model. All methods degrade: callers never see a hard failure
// from a missing or slow model, only fewer scores or the original
// query.
type Reranker struct {
	gen         llm.Generator
	topK        int
	concurrency int
}

// NewReranker wraps the generate backend. topK and concurrency fall
// back to their defaults when non-positive.
func NewReranker(gen llm.Generator, topK, concurrency int) *Reranker {
	if topK <= 0 {
		topK = DefaultRerankTopK
	}
	if concurrency <= 0 {
		concurrency = DefaultRerankConcurrency
	}
	return &Reranker{gen: gen, topK: topK, concurrency: concurrency}
}

// ScoreDocument asks the judge model whether doc is relevant to query.
// A response starting with YES maps to 1.0, NO to 0.0, anything else
// to 0.5.
func (r *Reranker) ScoreDocument(ctx context.Context, query, doc string) (float64, error) {
	prompt := fmt.Sprintf(rerankPrompt, query, firstRunes(doc, rerankDocChars))
	resp, err := r.gen.Generate(ctx, prompt, llm.GenerateOptions{Temperature: 0, NumPredict: scoreNumPredict})
	if err != nil {
		return 0, err
	}

	verdict := strings.ToUpper(strings.TrimSpace(resp))
	switch {
	case strings.HasPrefix(verdict, "YES"):
		return 1.0, nil
	case strings.HasPrefix(verdict, "NO"):
		return 0.0, nil
	default:
		slog.Debug("ambiguous rerank response", slog.String("response", resp))
		return 0.5, nil
	}
}

// Rerank judges the first topK results against the query with a
// bounded fan-out. Failed judgments are logged and left out of the
// returned map, so a dead backend yields an empty map, never an error.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []*Result) map[string]float64 {
	if len(docs) > r.topK {
		docs = docs[:r.topK]
	}

	var mu sync.Mutex
	scores := make(map[string]float64, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, doc := range docs {
		g.Go(func() error {
			score, err := r.ScoreDocument(gctx, query, judgeText(doc))
			if err != nil {
				slog.Warn("rerank judgment failed",
					slog.String("file", doc.FilePath),
					slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			scores[doc.FilePath] = score
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return scores
}

// ExpandQuery returns the query plus up to two alternative phrasings
// parsed from the expansion model's response. On any failure the
// original query comes back alone.
func (r *Reranker) ExpandQuery(ctx context.Context, query string) []string {
	resp, err := r.gen.Generate(ctx, fmt.Sprintf(expandPrompt, query),
		llm.GenerateOptions{Temperature: expandTemperature, NumPredict: expandNumPredict})
	if err != nil {
		slog.Warn("query expansion failed", slog.String("error", err.Error()))
		return []string{query}
	}

	var lines []string
	for _, line := range strings.Split(resp, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > 2 {
		lines = lines[:2]
	}

	queries := []string{query}
	for _, line := range lines {
		for _, prefix := range expansionPrefixes {
			if strings.HasPrefix(line, prefix) {
				line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
			}
		}
		if line != "" && line != query {
			queries = append(queries, line)
		}
	}
	return queries
}

// Available reports whether the judge model is installed.
func (r *Reranker) Available(ctx context.Context) bool {
	return r.gen.Available(ctx)
}

// judgeText picks the richest text available for a result: full chunk
// content from the vector branch, else the FTS snippet, else the
// excerpt.
func judgeText(r *Result) string {
	if r.Content != "" {
		return r.Content
	}
	if r.Snippet != "" {
		return r.Snippet
	}
	return r.Excerpt
}
