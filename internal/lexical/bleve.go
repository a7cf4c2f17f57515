package lexical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/docsift/docsift/internal/domain"
)

// BleveIndex implements Index on Bleve. Unlike FTS5 it holds an exclusive
// lock on its directory, so it suits single-process deployments only.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ Index = (*BleveIndex)(nil)

type bleveChunk struct {
	DocID string `json:"doc_id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// NewBleveIndex opens (or creates) a Bleve index at path. An empty path
// creates an in-memory index for testing.
func NewBleveIndex(path string) (*BleveIndex, error) {
	mapping := bleve.NewIndexMapping()

	// doc_id is stored verbatim so DeleteDoc can find a document's chunks
	// with an exact term query.
	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("doc_id", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("title", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("text", bleve.NewTextFieldMapping())
	mapping.DefaultMapping = docMapping

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveIndex{index: idx, path: path}, nil
}

func (b *BleveIndex) UpsertChunks(ctx context.Context, doc *domain.Document, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		entry := bleveChunk{DocID: c.DocID, Title: doc.Title, Text: c.Text}
		if err := batch.Index(c.ID, entry); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func (b *BleveIndex) DeleteDoc(ctx context.Context, docID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("index is closed")
	}

	query := bleve.NewTermQuery(docID)
	query.SetField("doc_id")
	req := bleve.NewSearchRequest(query)
	req.Size = 10000

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to find document chunks: %w", err)
	}

	batch := b.index.NewBatch()
	for _, hit := range result.Hits {
		batch.Delete(hit.ID)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

func (b *BleveIndex) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(query) == "" || topK <= 0 {
		return []Hit{}, nil
	}

	match := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(match)
	req.Size = topK
	req.Fields = []string{"doc_id"}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		docID, _ := hit.Fields["doc_id"].(string)
		hits = append(hits, Hit{ChunkID: hit.ID, DocID: docID, Score: hit.Score})
	}
	return hits, nil
}

// Close closes the index. Idempotent.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
