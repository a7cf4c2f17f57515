package extract

import (
	"context"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
)

// PDFExtractor extracts text from local PDF files, page by page.
type PDFExtractor struct{}

var _ Extractor = (*PDFExtractor)(nil)

func (p *PDFExtractor) Extract(ctx context.Context, uri string) (*domain.ExtractedContent, error) {
	path, err := localPath(uri)
	if err != nil {
		return nil, err
	}

	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, errs.Extraction(uri, err)
	}
	defer file.Close()

	total := reader.NumPage()
	var pages []string
	for num := 1; num <= total; num++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not fail the document.
			continue
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}

	return &domain.ExtractedContent{
		Text:  strings.Join(pages, "\n\n"),
		Extra: map[string]any{"page_count": total},
	}, nil
}
