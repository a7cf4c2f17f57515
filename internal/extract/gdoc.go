package extract

import (
	"context"
	"fmt"
	"regexp"

	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
)

var gdocIDPattern = regexp.MustCompile(`docs\.google\.com/document/d/([a-zA-Z0-9_-]+)`)

// GDocExtractor handles Google Docs links by fetching the document's HTML
// export and running it through the HTML parser. Only link-shared
// documents are reachable without credentials.
type GDocExtractor struct {
	fetcher *Fetcher
}

var _ Extractor = (*GDocExtractor)(nil)

// NewGDocExtractor creates the extractor.
func NewGDocExtractor(fetcher *Fetcher) *GDocExtractor {
	return &GDocExtractor{fetcher: fetcher}
}

func (g *GDocExtractor) Extract(ctx context.Context, uri string) (*domain.ExtractedContent, error) {
	m := gdocIDPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, errs.Extraction(uri, fmt.Errorf("not a Google Docs document URL"))
	}

	exportURL := fmt.Sprintf("https://docs.google.com/document/d/%s/export?format=html", m[1])
	data, err := g.fetcher.Fetch(ctx, exportURL)
	if err != nil {
		return nil, err
	}
	return parseHTML(uri, data)
}
