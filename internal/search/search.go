// Package search fuses lexical and vector retrieval into a single ranked
// result list using reciprocal rank fusion.
package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/embed"
	"github.com/docsift/docsift/internal/lexical"
	"github.com/docsift/docsift/internal/store"
	"github.com/docsift/docsift/internal/vector"
)

const (
	// rrfK dampens the influence of top ranks in reciprocal rank fusion.
	rrfK = 60
	// candidatesPerLeg is how many hits each retrieval leg contributes
	// before fusion.
	candidatesPerLeg = 20
)

// Reranker reorders fused results before they are returned. Implementations
// may truncate but must not invent results.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []*domain.SearchResult) ([]*domain.SearchResult, error)
}

// NoopReranker returns results unchanged.
type NoopReranker struct{}

var _ Reranker = (*NoopReranker)(nil)

func (NoopReranker) Rerank(_ context.Context, _ string, results []*domain.SearchResult) ([]*domain.SearchResult, error) {
	return results, nil
}

// Service runs hybrid queries.
type Service struct {
	meta     store.MetadataStore
	lex      lexical.Index
	vec      vector.Store
	embedder embed.Provider
	reranker Reranker
}

// New creates the search service. A nil reranker defaults to NoopReranker.
func New(meta store.MetadataStore, lex lexical.Index, vec vector.Store, embedder embed.Provider, reranker Reranker) *Service {
	if reranker == nil {
		reranker = NoopReranker{}
	}
	return &Service{meta: meta, lex: lex, vec: vec, embedder: embedder, reranker: reranker}
}

// fusedHit accumulates per-leg evidence for one chunk.
type fusedHit struct {
	chunkID  string
	docID    string
	rrfScore float64
	lexScore float64
	lexRank  int
	vecScore float64
	vecRank  int
}

// Search runs both retrieval legs, fuses them, hydrates chunk and document
// rows, and applies the reranker. An empty query returns an empty list.
// Lexical-leg failures degrade to an empty lexical list; embedding and
// vector failures surface to the caller.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*domain.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if strings.TrimSpace(query) == "" {
		return []*domain.SearchResult{}, nil
	}

	lexHits, err := s.lex.Search(ctx, query, candidatesPerLeg)
	if err != nil {
		slog.Warn("lexical search failed, continuing with vector results only",
			slog.String("error", err.Error()))
		lexHits = nil
	}

	var vecHits []vector.Hit
	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 1 {
		vecHits, err = s.vec.Query(ctx, vecs[0], candidatesPerLeg)
		if err != nil {
			return nil, err
		}
	}

	fused := fuse(lexHits, vecHits)
	results, err := s.hydrate(ctx, fused, limit)
	if err != nil {
		return nil, err
	}

	results, err = s.reranker.Rerank(ctx, query, results)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// fuse merges the two hit lists by reciprocal rank: each leg contributes
// 1/(k+rank) with 1-based ranks. Ties break on higher lexical score, then
// on chunk ID for a stable order.
func fuse(lexHits []lexical.Hit, vecHits []vector.Hit) []*fusedHit {
	byChunk := make(map[string]*fusedHit, len(lexHits)+len(vecHits))

	get := func(chunkID, docID string) *fusedHit {
		if h, ok := byChunk[chunkID]; ok {
			return h
		}
		h := &fusedHit{chunkID: chunkID, docID: docID}
		byChunk[chunkID] = h
		return h
	}

	for i, hit := range lexHits {
		h := get(hit.ChunkID, hit.DocID)
		h.lexScore = hit.Score
		h.lexRank = i + 1
		h.rrfScore += 1.0 / float64(rrfK+i+1)
	}
	for i, hit := range vecHits {
		h := get(hit.ChunkID, hit.DocID)
		h.vecScore = hit.Score
		h.vecRank = i + 1
		h.rrfScore += 1.0 / float64(rrfK+i+1)
	}

	fused := make([]*fusedHit, 0, len(byChunk))
	for _, h := range byChunk {
		fused = append(fused, h)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].rrfScore != fused[j].rrfScore {
			return fused[i].rrfScore > fused[j].rrfScore
		}
		if fused[i].lexScore != fused[j].lexScore {
			return fused[i].lexScore > fused[j].lexScore
		}
		return fused[i].chunkID < fused[j].chunkID
	})
	return fused
}

// hydrate loads chunk text and document metadata for the top fused hits.
// Chunks that no longer exist in the store are dropped silently; a stale
// index entry must not fail the whole query.
func (s *Service) hydrate(ctx context.Context, fused []*fusedHit, limit int) ([]*domain.SearchResult, error) {
	take := 2 * limit
	if take > len(fused) {
		take = len(fused)
	}
	fused = fused[:take]
	if len(fused) == 0 {
		return []*domain.SearchResult{}, nil
	}

	ids := make([]string, len(fused))
	for i, h := range fused {
		ids[i] = h.chunkID
	}
	chunks, err := s.meta.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	chunkByID := make(map[string]*domain.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}

	docCache := make(map[string]*domain.Document)
	results := make([]*domain.SearchResult, 0, len(fused))
	for _, h := range fused {
		c, ok := chunkByID[h.chunkID]
		if !ok {
			continue
		}
		doc, ok := docCache[c.DocID]
		if !ok {
			doc, err = s.meta.GetDocument(ctx, c.DocID)
			if err != nil {
				slog.Warn("dropping hit with missing document",
					slog.String("chunk_id", c.ID),
					slog.String("doc_id", c.DocID))
				continue
			}
			docCache[c.DocID] = doc
		}
		results = append(results, &domain.SearchResult{
			ChunkID:  c.ID,
			DocID:    doc.ID,
			Text:     c.Text,
			DocTitle: doc.Title,
			DocURI:   doc.URI,
			Score:    h.rrfScore,
			Breakdown: domain.ScoreBreakdown{
				LexScore: h.lexScore,
				LexRank:  h.lexRank,
				VecScore: h.vecScore,
				VecRank:  h.vecRank,
			},
		})
	}
	return results, nil
}
