// Package vector provides approximate nearest neighbor search over chunk
// embeddings. The HNSW backend pairs an in-memory graph with a SQLite
// sidecar table that owns vector identity: rows are soft-deleted, graph
// nodes are orphaned lazily, and Compact rebuilds the graph from the
// surviving rows.
package vector

import (
	"context"

	"github.com/docsift/docsift/internal/config"
	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
)

// Hit is a single vector search result. Score is cosine similarity mapped
// to [0, 1], higher is better.
type Hit struct {
	ChunkID string
	DocID   string
	Score   float64
}

// Store is the vector search interface.
type Store interface {
	// UpsertEmbeddings replaces the stored vectors for the given chunks.
	// chunks and vecs must be parallel slices.
	UpsertEmbeddings(ctx context.Context, chunks []*domain.Chunk, vecs [][]float32) error
	// DeleteDoc soft-deletes every vector belonging to docID.
	DeleteDoc(ctx context.Context, docID string) error
	// Query returns up to topK live hits nearest to vec.
	Query(ctx context.Context, vec []float32, topK int) ([]Hit, error)
	// Compact rebuilds the graph from live rows and drops deleted ones.
	Compact(ctx context.Context) error
	Close() error
}

// New creates the vector store selected by cfg.VectorBackend.
func New(cfg *config.Config) (Store, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendHNSW:
		return NewHNSWStore(cfg.Storage.IndexDir, cfg.Embedding.Dim)
	case config.VectorBackendPgVector:
		return nil, errs.BackendUnavailable("vector backend %q is not built in this binary", cfg.VectorBackend)
	default:
		return nil, errs.Validation("unknown vector backend %q", cfg.VectorBackend)
	}
}
