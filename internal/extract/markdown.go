package extract

import (
	"context"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
)

// MarkdownExtractor handles Markdown and plain-text files. A YAML
// frontmatter block is stripped from the text; its title field wins over
// the first H1 heading.
type MarkdownExtractor struct{}

var _ Extractor = (*MarkdownExtractor)(nil)

func (m *MarkdownExtractor) Extract(ctx context.Context, uri string) (*domain.ExtractedContent, error) {
	path, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Extraction(uri, err)
	}

	text := string(data)
	title := ""

	if body, meta, ok := splitFrontmatter(text); ok {
		text = body
		if t, ok := meta["title"].(string); ok {
			title = t
		}
	}
	if title == "" {
		title = firstHeading(text)
	}

	return &domain.ExtractedContent{Text: text, Title: title}, nil
}

// splitFrontmatter strips a leading YAML frontmatter block. Returns the
// remaining body, the parsed metadata, and whether a block was found.
func splitFrontmatter(text string) (string, map[string]any, bool) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return text, nil, false
	}

	rest := normalized[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return text, nil, false
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return text, nil, false
	}
	return body, meta, true
}

// firstHeading returns the text of the first level-one heading, if any.
func firstHeading(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
