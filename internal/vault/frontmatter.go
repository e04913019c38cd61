package vault

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterFence = "---"

// ParseFrontmatter splits a note into its YAML frontmatter and body.
// Content without a leading fence returns an empty map and the full
// content. A fenced block that fails to parse returns an error; the
// caller decides how to degrade.
func ParseFrontmatter(raw []byte) (map[string]any, string, error) {
	content := string(raw)

	rest, ok := strings.CutPrefix(content, frontmatterFence+"\n")
	if !ok {
		// Allow CRLF and a bare "---" final line.
		if rest, ok = strings.CutPrefix(content, frontmatterFence+"\r\n"); !ok {
			return map[string]any{}, content, nil
		}
	}

	block, body, found := cutFence(rest)
	if !found {
		return map[string]any{}, content, nil
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, body, nil
}

// cutFence finds the closing fence line and returns the YAML block and
// the remaining body.
func cutFence(s string) (block, body string, found bool) {
	// Empty frontmatter: the closing fence is the first line.
	for _, prefix := range []string{"---\n", "---\r\n"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			return "", after, true
		}
	}
	for _, marker := range []string{"\n---\n", "\n---\r\n", "\r\n---\r\n", "\r\n---\n"} {
		if i := strings.Index(s, marker); i >= 0 {
			return s[:i], s[i+len(marker):], true
		}
	}
	// Closing fence as the last line with no trailing newline.
	for _, marker := range []string{"\n---", "\r\n---"} {
		if strings.HasSuffix(s, marker) {
			return strings.TrimSuffix(s, marker), "", true
		}
	}
	if s == frontmatterFence {
		return "", "", true
	}
	return "", "", false
}
