package store

import (
	"regexp"
	"strings"
)

// wordPattern matches alphanumeric runs. Markdown punctuation (#, *,
// -, [, ], backticks) falls away as separators, matching what the
// FTS5 unicode61 tokenizer does to indexed content.
var wordPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// DefaultNoteStopWords are common English words excluded from keyword
// queries. They carry no signal in personal notes and would otherwise
// match nearly every document in an OR query.
var DefaultNoteStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by",
	"did", "do", "does", "for", "from", "had", "has", "have", "how",
	"in", "is", "it", "its", "my", "of", "on", "or", "our",
	"that", "the", "their", "this", "to", "was", "we", "were",
	"what", "when", "where", "which", "who", "will", "with",
	"you", "your",
}

// TokenizeQuery lowercases text and extracts search terms, dropping
// stop words and single-character tokens.
func TokenizeQuery(text string, stopWords map[string]struct{}) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// BuildMatchQuery joins tokens into an FTS5 MATCH expression. Each
// term is quoted so reserved words (NEAR, NOT) and stray operators
// cannot produce syntax errors, and terms are ORed: any matching term
// qualifies a document, BM25 ranks by how many match.
func BuildMatchQuery(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, token := range tokens {
		quoted[i] = `"` + token + `"`
	}
	return strings.Join(quoted, " OR ")
}

// BuildStopWordMap converts a slice of stop words to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// containsFold reports whether values contains s, ignoring case.
func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
