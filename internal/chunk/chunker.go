// Package chunk splits note bodies into overlapping chunks sized for
// the embedding model.
package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Default sizes are in approximate tokens; one token is taken as four
// characters of text.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	charsPerToken = 4
)

// headingPattern matches section headings that force a chunk boundary.
// Only level-2 and level-3 headings split; deeper headings stay inside
// their section.
var headingPattern = regexp.MustCompile(`^###?\s`)

// Chunk is one slice of a note body.
type Chunk struct {
	Index   int // 0-based, dense per document
	Content string
}

// Chunker accumulates markdown sections into bounded chunks with a
// trailing overlap carried into the next chunk.
type Chunker struct {
	maxChars     int
	overlapChars int
}

// NewChunker creates a chunker for the given sizes in approximate
// tokens. Non-positive values fall back to the defaults.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	return &Chunker{
		maxChars:     chunkSize * charsPerToken,
		overlapChars: chunkOverlap * charsPerToken,
	}
}

// Split breaks a body into chunks. Sections are delimited by blank
// lines and by `##`/`###` heading lines; whitespace-only sections are
// dropped. When a section would push the current chunk past the size
// limit, the chunk is emitted and the next one starts with the emitted
// chunk's trailing overlap.
func (c *Chunker) Split(body string) []Chunk {
	var chunks []Chunk
	var current string
	index := 0

	emit := func() {
		chunks = append(chunks, Chunk{Index: index, Content: strings.TrimSpace(current)})
		index++
	}

	for _, section := range splitSections(body) {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}

		if len(current)+len(section) > c.maxChars {
			if current != "" {
				emit()
				current = c.overlapTail(current) + "\n\n" + section
			} else {
				current = section
			}
			continue
		}

		if current != "" {
			current += "\n\n" + section
		} else {
			current = section
		}
	}

	if strings.TrimSpace(current) != "" {
		emit()
	}
	return chunks
}

// overlapTail returns the trailing overlap of an emitted chunk, aligned
// to a rune boundary.
func (c *Chunker) overlapTail(s string) string {
	start := len(s) - c.overlapChars
	if start <= 0 {
		return s
	}
	for start > 0 && !utf8.RuneStart(s[start]) {
		start--
	}
	return s[start:]
}

// splitSections breaks a body into sections at blank lines and before
// heading lines.
func splitSections(body string) []string {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")

	var sections []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range strings.Split(normalized, "\n") {
		switch {
		case line == "":
			flush()
		case headingPattern.MatchString(line):
			flush()
			current = append(current, line)
		default:
			current = append(current, line)
		}
	}
	flush()
	return sections
}
