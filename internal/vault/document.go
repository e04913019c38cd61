// Package vault discovers and parses markdown notes in the configured
// vault directories. It extracts frontmatter metadata, derives document
// identity from a content hash, and classifies each note by vault and
// category for filtered retrieval.
package vault

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/noterag/noterag/internal/config"
)

// Document is a parsed note. All fields except Body are replicated onto
// every chunk derived from the note.
type Document struct {
	FilePath string           // absolute path
	FileHash string           // content hash; changes when the file changes
	Vault    config.VaultName // work, personal, or unknown
	Title    string
	Category string // first path segment under the vault root, or "other"
	People   []string
	Projects []string
	Date     string // yyyy-mm-dd or empty
	Body     string // content after frontmatter
}

// datePattern matches an ISO date embedded in a filename, e.g.
// "2024-03-15 team sync.md".
var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// HashBytes returns the content hash used for change detection.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)[:16]
}

// Parser turns raw note files into Documents.
type Parser struct {
	workRoot     string
	personalRoot string
}

// NewParser creates a parser that classifies paths against the given
// vault roots. Roots may be empty when a vault is not configured.
func NewParser(workRoot, personalRoot string) *Parser {
	return &Parser{
		workRoot:     filepath.Clean(workRoot),
		personalRoot: filepath.Clean(personalRoot),
	}
}

// Parse builds a Document from raw file content. It never fails:
// malformed frontmatter degrades to an empty metadata map with the full
// content as body.
func (p *Parser) Parse(absPath string, raw []byte) *Document {
	meta, body, err := ParseFrontmatter(raw)
	if err != nil {
		slog.Warn("malformed frontmatter, indexing without metadata",
			slog.String("path", absPath),
			slog.String("error", err.Error()))
		meta = map[string]any{}
		body = string(raw)
	}

	vault, root := p.classify(absPath)

	doc := &Document{
		FilePath: absPath,
		FileHash: HashBytes(raw),
		Vault:    vault,
		Title:    titleFrom(meta, absPath),
		Category: categoryFrom(root, absPath),
		People:   parseListField(meta["people"]),
		Projects: parseListField(meta["projects"]),
		Date:     dateFrom(meta, absPath),
		Body:     body,
	}
	return doc
}

// classify returns the vault containing absPath and that vault's root.
func (p *Parser) classify(absPath string) (config.VaultName, string) {
	if p.workRoot != "." && pathWithin(absPath, p.workRoot) {
		return config.VaultWork, p.workRoot
	}
	if p.personalRoot != "." && pathWithin(absPath, p.personalRoot) {
		return config.VaultPersonal, p.personalRoot
	}
	return config.VaultUnknown, ""
}

func pathWithin(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func titleFrom(meta map[string]any, absPath string) string {
	if t, ok := meta["title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
}

// categoryFrom derives the category from the path's first segment under
// the vault root. Files directly under the root go to "other".
func categoryFrom(root, absPath string) string {
	if root == "" {
		return "other"
	}
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "other"
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return "other"
	}
	parts := strings.Split(dir, string(filepath.Separator))
	return parts[0]
}

// dateFrom prefers the frontmatter date, then an ISO date embedded in
// the filename.
func dateFrom(meta map[string]any, absPath string) string {
	switch v := meta["date"].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case time.Time:
		return v.Format("2006-01-02")
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return datePattern.FindString(filepath.Base(absPath))
}

// parseListField accepts a YAML list or a comma-separated string.
func parseListField(v any) []string {
	switch val := v.(type) {
	case []any:
		var out []string
		for _, item := range val {
			s := strings.TrimSpace(fmt.Sprint(item))
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(val, ",") {
			s := strings.TrimSpace(part)
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
