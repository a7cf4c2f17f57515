package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
)

// HTMLExtractor extracts visible text from HTML documents, local or
// remote. Script and style content is dropped; block-level text is joined
// with newlines.
type HTMLExtractor struct {
	fetcher *Fetcher
}

var _ Extractor = (*HTMLExtractor)(nil)

// NewHTMLExtractor creates the extractor. fetcher may be nil when only
// local files are expected.
func NewHTMLExtractor(fetcher *Fetcher) *HTMLExtractor {
	return &HTMLExtractor{fetcher: fetcher}
}

func (h *HTMLExtractor) Extract(ctx context.Context, uri string) (*domain.ExtractedContent, error) {
	data, err := h.readSource(ctx, uri)
	if err != nil {
		return nil, err
	}
	return parseHTML(uri, data)
}

func (h *HTMLExtractor) readSource(ctx context.Context, uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		if h.fetcher == nil {
			return nil, errs.Extraction(uri, fmt.Errorf("no fetcher configured for remote documents"))
		}
		return h.fetcher.Fetch(ctx, uri)
	}
	path, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Extraction(uri, err)
	}
	return data, nil
}

// parseHTML extracts the title and visible text from an HTML body.
func parseHTML(uri string, data []byte) (*domain.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Extraction(uri, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript").Remove()

	var lines []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td, th, blockquote").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	text := strings.Join(lines, "\n")

	// Bare markup or plain text without block elements still yields its
	// visible body content.
	if text == "" {
		text = strings.TrimSpace(doc.Find("body").Text())
	}

	return &domain.ExtractedContent{Text: text, Title: title}, nil
}
