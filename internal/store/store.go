// Package store provides persistent metadata storage for sources,
// documents, chunks, and jobs. The SQLite backend is the default; the
// postgres backend identifier is recognized by the factory but not built.
package store

import (
	"context"

	"github.com/docsift/docsift/internal/domain"
)

// MetadataStore is the persistence interface for pipeline metadata.
// Implementations must return errors.KindNotFound errors for missing
// entities so callers can map them to HTTP 404.
type MetadataStore interface {
	// Sources.
	UpsertSource(ctx context.Context, src *domain.Source) error
	GetSource(ctx context.Context, id string) (*domain.Source, error)
	ListSources(ctx context.Context) ([]*domain.Source, error)

	// Documents. URI is unique across the store; UpsertDocument keyed on ID
	// refreshes updated_at on every write.
	UpsertDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	GetDocumentByURI(ctx context.Context, uri string) (*domain.Document, error)
	ListDocuments(ctx context.Context, sourceID string) ([]*domain.Document, error)
	MarkDocumentDeleted(ctx context.Context, id string) error

	// Chunks. ListChunks returns chunks ordered by chunk_index.
	UpsertChunks(ctx context.Context, chunks []*domain.Chunk) error
	ListChunks(ctx context.Context, docID string) ([]*domain.Chunk, error)
	GetChunksByIDs(ctx context.Context, ids []string) ([]*domain.Chunk, error)
	DeleteChunks(ctx context.Context, docID string) error

	// Jobs. GetPendingJobs returns pending jobs oldest-first.
	CreateJob(ctx context.Context, job *domain.Job) error
	UpdateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*domain.Job, error)
	GetPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error)

	Close() error
}
