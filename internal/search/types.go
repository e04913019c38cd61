// Package search implements retrieval over the indexed vaults. A query
// runs lexical (BM25) and semantic (vector) branches in parallel, the
// ranked lists are merged with Reciprocal Rank Fusion, and an optional
// small-model pass expands the query and reranks the fused candidates.
// On top of retrieval sit the RAG answer pipeline and the person and
// action-item views used for 1:1 prep.
package search

import (
	"strings"
	"unicode/utf8"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/noteerr"
)

// Mode selects the retrieval pipeline for one search call.
type Mode string

const (
	// ModeVector is pure semantic search over chunk embeddings.
	ModeVector Mode = "vector"

	// ModeBM25 is pure lexical search over whole documents.
	ModeBM25 Mode = "bm25"

	// ModeHybrid fuses both branches with RRF. The default.
	ModeHybrid Mode = "hybrid"

	// ModeQuery is the full pipeline: expansion, hybrid search per
	// query, fusion, rerank. Highest quality, highest latency.
	ModeQuery Mode = "query"
)

// ParseMode validates a mode selector from the CLI or HTTP surface.
// Empty means hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeVector:
		return ModeVector, nil
	case ModeBM25:
		return ModeBM25, nil
	case ModeQuery:
		return ModeQuery, nil
	default:
		return "", noteerr.Errorf(noteerr.KindMalformedInput, "search.mode",
			"unknown search mode %q (want vector, bm25, hybrid, or query)", s)
	}
}

// Result is one search hit. The JSON shape is the public API response;
// fields used only inside the pipeline are not serialized.
type Result struct {
	Score    float64  `json:"score"`
	FilePath string   `json:"file_path"`
	Title    string   `json:"title"`
	Excerpt  string   `json:"excerpt"`
	Date     string   `json:"date"`
	People   []string `json:"people"`
	Category string   `json:"category"`
	Vault    string   `json:"vault"`

	// Content is the full chunk text, populated by the vector branch.
	// The reranker judges on it when present.
	Content string `json:"-"`

	// Snippet is the FTS highlight, populated by the BM25 branch.
	Snippet string `json:"-"`

	// Source names the branch that produced the preserved payload:
	// "vector" or "bm25".
	Source string `json:"-"`

	// RRFRank is the 0-based position after fusion.
	RRFRank int `json:"-"`

	// RRFScore and RerankScore are the pre-blend components, kept for
	// logging and tests.
	RRFScore    float64 `json:"-"`
	RerankScore float64 `json:"-"`
}

// Options configures one search call. NewOptions returns the resolved
// defaults; the Searcher fills remaining zero values per its config.
type Options struct {
	// Vault selects "work", "personal", or "all".
	Vault config.VaultName

	// Category keeps only vector hits whose category matches
	// (case-insensitive).
	Category string

	// Person keeps only notes that list the person in frontmatter.
	Person string

	// Limit caps returned results.
	Limit int

	// Mode selects the pipeline.
	Mode Mode

	// Rerank and ExpandQuery gate the two LLM passes of ModeQuery.
	Rerank      bool
	ExpandQuery bool
}

// NewOptions returns the default options: hybrid mode over all vaults,
// with both LLM passes enabled should the caller switch to query mode.
func NewOptions() Options {
	return Options{
		Vault:       config.VaultAll,
		Mode:        ModeHybrid,
		Rerank:      true,
		ExpandQuery: true,
	}
}

// AnswerSource is a short citation attached to a generated answer.
type AnswerSource struct {
	File    string `json:"file"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

// Answer is the RAG response: generated text plus its citations.
type Answer struct {
	Answer  string         `json:"answer"`
	Sources []AnswerSource `json:"sources"`
}

// PersonContext is the 1:1 prep view for one person.
type PersonContext struct {
	Person         string    `json:"person"`
	MeetingCount   int       `json:"meeting_count"`
	LastMeeting    string    `json:"last_meeting"`
	RecentTopics   []string  `json:"recent_topics"`
	OpenActions    []string  `json:"open_actions"`
	RecentMeetings []Meeting `json:"recent_meetings"`
}

// Meeting is one entry in PersonContext.RecentMeetings.
type Meeting struct {
	Date    string `json:"date"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// ActionItem is one extracted follow-up line with its provenance.
type ActionItem struct {
	Item   string `json:"item"`
	Date   string `json:"date"`
	Source string `json:"source"`
}

// firstRunes returns the first n runes of s.
func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
