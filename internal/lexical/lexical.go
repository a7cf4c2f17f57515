// Package lexical provides keyword search over chunks with BM25 scoring.
// Two backends are available: SQLite FTS5 (default, concurrent access via
// WAL) and Bleve (single-process). Both score higher-is-better.
package lexical

import (
	"context"
	"path/filepath"

	"github.com/docsift/docsift/internal/config"
	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
)

// Hit is a single lexical search result.
type Hit struct {
	ChunkID string
	DocID   string
	Score   float64
}

// Index is the lexical search interface. A malformed query is not an
// error: Search returns an empty result set for queries the backend
// cannot parse.
type Index interface {
	// UpsertChunks indexes the chunks of doc, replacing any previous rows
	// with the same chunk IDs.
	UpsertChunks(ctx context.Context, doc *domain.Document, chunks []*domain.Chunk) error
	// DeleteDoc removes all chunks belonging to docID.
	DeleteDoc(ctx context.Context, docID string) error
	// Search returns up to topK hits ordered by descending score.
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
	Close() error
}

// New creates the lexical index selected by cfg.LexicalBackend, storing
// index files under cfg.Storage.IndexDir.
func New(cfg *config.Config) (Index, error) {
	switch cfg.LexicalBackend {
	case config.LexicalBackendFTS5:
		return NewFTS5Index(filepath.Join(cfg.Storage.IndexDir, "lexical.db"))
	case config.LexicalBackendBleve:
		return NewBleveIndex(filepath.Join(cfg.Storage.IndexDir, "bleve"))
	case config.LexicalBackendPgFTS:
		return nil, errs.BackendUnavailable("lexical backend %q is not built in this binary", cfg.LexicalBackend)
	default:
		return nil, errs.Validation("unknown lexical backend %q", cfg.LexicalBackend)
	}
}
