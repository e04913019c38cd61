package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/noterag/noterag/internal/noteerr"
)

// answerPrompt is the RAG template sent to the chat gateway.
const answerPrompt = `Based on the following context from my notes, please answer this question:

Question: %s

Context:
%s

Please provide a concise, helpful answer based only on the information provided. If the context doesn't contain enough information to fully answer the question, say so.`

// noAnswerText is returned when retrieval finds nothing to ground an
// answer on.
const noAnswerText = "I couldn't find any relevant information in your notes."

const (
	sourceExcerptChars   = 100
	defaultContextChunks = 5
)

// Answer retrieves context for the question and asks the chat gateway
// for a grounded answer. A gateway failure falls back to returning the
// raw context block, so the caller still gets the excerpts.
func (s *Searcher) Answer(ctx context.Context, question string, opts Options) (*Answer, error) {
	opts = s.applyDefaults(opts)
	opts.Limit = s.maxContextChunks()

	results, err := s.Search(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Answer{Answer: noAnswerText, Sources: []AnswerSource{}}, nil
	}

	var parts []string
	sources := []AnswerSource{}
	for i, r := range results {
		if s.isExcluded(r.FilePath) {
			continue
		}

		date := r.Date
		if date == "" {
			date = "undated"
		}
		parts = append(parts, fmt.Sprintf("[Source %d: %s (%s)]", i+1, r.Title, date))
		parts = append(parts, r.Excerpt)
		parts = append(parts, "")

		sources = append(sources, AnswerSource{
			File:    r.FilePath,
			Title:   r.Title,
			Excerpt: firstRunes(r.Excerpt, sourceExcerptChars) + "...",
		})
	}
	contextBlock := strings.Join(parts, "\n")

	answer, err := s.complete(ctx, fmt.Sprintf(answerPrompt, question, contextBlock))
	if err != nil {
		slog.Error("answer gateway failed", slog.String("error", err.Error()))
		answer = fmt.Sprintf("Error generating answer: %v\n\nBased on search results, here are relevant excerpts:\n\n%s", err, contextBlock)
	}
	return &Answer{Answer: answer, Sources: sources}, nil
}

func (s *Searcher) complete(ctx context.Context, prompt string) (string, error) {
	if s.answerer == nil {
		return "", noteerr.Errorf(noteerr.KindConfig, "search.answer", "answer gateway is not configured")
	}
	return s.answerer.Complete(ctx, prompt)
}

func (s *Searcher) maxContextChunks() int {
	if s.cfg.Answer.MaxContextChunks > 0 {
		return s.cfg.Answer.MaxContextChunks
	}
	return defaultContextChunks
}

// isExcluded reports whether the path lies in a configured excluded
// folder. Matching is by substring, the same rule indexing applies.
func (s *Searcher) isExcluded(path string) bool {
	for _, excl := range s.cfg.Index.ExcludedFolders {
		if excl != "" && strings.Contains(path, excl) {
			return true
		}
	}
	return false
}
