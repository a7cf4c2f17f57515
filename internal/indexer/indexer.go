// Package indexer runs the ingestion pipeline: scanning sources into
// document candidates, extracting and chunking content, and keeping the
// metadata store, the lexical index, and the vector store consistent.
package indexer

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/docsift/docsift/internal/chunk"
	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/embed"
	errs "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/hashing"
	"github.com/docsift/docsift/internal/ingest"
	"github.com/docsift/docsift/internal/lexical"
	"github.com/docsift/docsift/internal/store"
	"github.com/docsift/docsift/internal/vector"
)

// defaultConcurrency bounds how many indexing pipelines may run at once.
// The background worker uses one slot; the rest serve direct requests.
const defaultConcurrency = 2

// Extractor converts a document URI into text. Satisfied by
// extract.Registry.
type Extractor interface {
	Extract(ctx context.Context, uri, mimeType string) (*domain.ExtractedContent, error)
}

// Service implements the indexing operations.
type Service struct {
	meta      store.MetadataStore
	lex       lexical.Index
	vec       vector.Store
	embedder  embed.Provider
	extractor Extractor
	splitter  *chunk.Splitter
	maxFileMB int
	sem       *semaphore.Weighted
}

// New creates the indexing service.
func New(meta store.MetadataStore, lex lexical.Index, vec vector.Store,
	embedder embed.Provider, extractor Extractor, splitter *chunk.Splitter,
	maxFileMB int) *Service {
	return &Service{
		meta:      meta,
		lex:       lex,
		vec:       vec,
		embedder:  embedder,
		extractor: extractor,
		splitter:  splitter,
		maxFileMB: maxFileMB,
		sem:       semaphore.NewWeighted(defaultConcurrency),
	}
}

// ScanSource diffs the source's current candidates against the stored
// documents and indexes everything new or changed. Documents whose URIs
// vanished are marked deleted and purged from both indices. A failing
// document is logged and skipped; the scan continues.
func (s *Service) ScanSource(ctx context.Context, sourceID string, progress func(float64)) error {
	src, err := s.meta.GetSource(ctx, sourceID)
	if err != nil {
		return err
	}

	candidates, err := ingest.Scan(src, s.maxFileMB)
	if err != nil {
		return err
	}

	existing, err := s.meta.ListDocuments(ctx, src.ID)
	if err != nil {
		return err
	}
	byURI := make(map[string]*domain.Document, len(existing))
	for _, doc := range existing {
		byURI[doc.URI] = doc
	}

	var toIndex []*domain.Document
	seen := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		// The same URI can appear more than once, e.g. one bookmark filed
		// in two folders. Only the first occurrence counts.
		if seen[cand.URI] {
			continue
		}
		seen[cand.URI] = true
		prev, ok := byURI[cand.URI]
		if !ok {
			cand.Status = domain.DocStatusNew
			if err := s.meta.UpsertDocument(ctx, cand); err != nil {
				return err
			}
			toIndex = append(toIndex, cand)
			continue
		}
		if prev.Mtime.Equal(cand.Mtime) && prev.SizeBytes == cand.SizeBytes &&
			prev.Status == domain.DocStatusIndexed {
			continue
		}
		prev.Title = cand.Title
		prev.MimeType = cand.MimeType
		prev.SizeBytes = cand.SizeBytes
		prev.Mtime = cand.Mtime
		prev.Status = domain.DocStatusChanged
		if err := s.meta.UpsertDocument(ctx, prev); err != nil {
			return err
		}
		toIndex = append(toIndex, prev)
	}

	// Documents that no longer exist at the source.
	for _, doc := range existing {
		if seen[doc.URI] || doc.Status == domain.DocStatusDeleted {
			continue
		}
		if err := s.DeleteDocument(ctx, doc.ID); err != nil {
			slog.Error("failed to delete vanished document",
				slog.String("doc_id", doc.ID),
				slog.String("uri", doc.URI),
				slog.String("error", err.Error()))
		}
	}

	for i, doc := range toIndex {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.IndexDocument(ctx, doc.ID); err != nil {
			slog.Error("failed to index document",
				slog.String("doc_id", doc.ID),
				slog.String("uri", doc.URI),
				slog.String("error", err.Error()))
		}
		if progress != nil {
			progress(float64(i+1) / float64(len(toIndex)))
		}
	}
	if progress != nil {
		progress(1.0)
	}
	return nil
}

// IndexDocument runs the full pipeline for one document: extract, hash,
// chunk, replace index rows, embed, and store vectors. On failure the
// document is marked with status error and the error is returned.
func (s *Service) IndexDocument(ctx context.Context, docID string) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	doc, err := s.meta.GetDocument(ctx, docID)
	if errs.IsKind(err, errs.KindNotFound) {
		// The document may have been purged between enqueue and execution;
		// there is nothing left to index.
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.indexDocument(ctx, doc); err != nil {
		doc.Status = domain.DocStatusError
		if upErr := s.meta.UpsertDocument(ctx, doc); upErr != nil {
			slog.Error("failed to record document error status",
				slog.String("doc_id", doc.ID),
				slog.String("error", upErr.Error()))
		}
		return err
	}
	return nil
}

func (s *Service) indexDocument(ctx context.Context, doc *domain.Document) error {
	content, err := s.extractor.Extract(ctx, doc.URI, doc.MimeType)
	if err != nil {
		return err
	}

	if content.Title != "" {
		doc.Title = content.Title
	}
	docHash := hashing.Hash(content.Text)

	// Unchanged content needs no re-chunking or re-embedding.
	if doc.DocHash == docHash && doc.Status == domain.DocStatusIndexed {
		return nil
	}
	doc.DocHash = docHash
	if err := s.meta.UpsertDocument(ctx, doc); err != nil {
		return err
	}

	drafts := s.splitter.Split(content.Text)
	chunks := make([]*domain.Chunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = &domain.Chunk{
			ID:          domain.NewID(),
			DocID:       doc.ID,
			ChunkIndex:  i,
			Text:        d.Text,
			StartOffset: d.StartOffset,
			EndOffset:   d.EndOffset,
			ChunkHash:   hashing.Hash(d.Text),
		}
	}

	// Old rows go first so a re-index never leaves orphans behind, in the
	// indices or in the chunks table.
	if err := s.lex.DeleteDoc(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.vec.DeleteDoc(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.meta.DeleteChunks(ctx, doc.ID); err != nil {
		return err
	}

	if len(chunks) > 0 {
		if err := s.meta.UpsertChunks(ctx, chunks); err != nil {
			return err
		}
		if err := s.lex.UpsertChunks(ctx, doc, chunks); err != nil {
			return err
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if err := s.vec.UpsertEmbeddings(ctx, chunks, vecs); err != nil {
			return err
		}
	}

	doc.Status = domain.DocStatusIndexed
	if err := s.meta.UpsertDocument(ctx, doc); err != nil {
		return err
	}

	slog.Info("indexed document",
		slog.String("doc_id", doc.ID),
		slog.String("uri", doc.URI),
		slog.Int("chunks", len(chunks)))
	return nil
}

// DeleteDocument marks the document deleted and purges its chunks from
// the metadata store and both indices.
func (s *Service) DeleteDocument(ctx context.Context, docID string) error {
	if err := s.meta.MarkDocumentDeleted(ctx, docID); err != nil {
		return err
	}
	if err := s.lex.DeleteDoc(ctx, docID); err != nil {
		return err
	}
	if err := s.vec.DeleteDoc(ctx, docID); err != nil {
		return err
	}
	return s.meta.DeleteChunks(ctx, docID)
}

// ReindexAll rescans every registered source.
func (s *Service) ReindexAll(ctx context.Context, progress func(float64)) error {
	sources, err := s.meta.ListSources(ctx)
	if err != nil {
		return err
	}
	for i, src := range sources {
		if err := s.ScanSource(ctx, src.ID, nil); err != nil {
			slog.Error("failed to rescan source",
				slog.String("source_id", src.ID),
				slog.String("error", err.Error()))
		}
		if progress != nil {
			progress(float64(i+1) / float64(len(sources)))
		}
	}
	if progress != nil {
		progress(1.0)
	}
	return nil
}
