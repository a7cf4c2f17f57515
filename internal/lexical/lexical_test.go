package lexical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/domain"
)

func newBackends(t *testing.T) map[string]Index {
	t.Helper()
	fts, err := NewFTS5Index("")
	require.NoError(t, err)
	blv, err := NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = fts.Close()
		_ = blv.Close()
	})
	return map[string]Index{"fts5": fts, "bleve": blv}
}

func indexFixture(t *testing.T, idx Index) {
	t.Helper()
	ctx := context.Background()

	docA := &domain.Document{ID: "doc-a", URI: "file:///docs/a.md", Title: "Alpha Guide"}
	docB := &domain.Document{ID: "doc-b", URI: "file:///docs/b.md", Title: "Beta Notes"}

	require.NoError(t, idx.UpsertChunks(ctx, docA, []*domain.Chunk{
		{ID: "a-0", DocID: "doc-a", ChunkIndex: 0, Text: "installing the database server on linux"},
		{ID: "a-1", DocID: "doc-a", ChunkIndex: 1, Text: "tuning query performance with indexes"},
	}))
	require.NoError(t, idx.UpsertChunks(ctx, docB, []*domain.Chunk{
		{ID: "b-0", DocID: "doc-b", ChunkIndex: 0, Text: "weekly meeting notes about the roadmap"},
	}))
}

func TestSearchFindsMatchingChunks(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			indexFixture(t, idx)

			hits, err := idx.Search(context.Background(), "database", 10)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "a-0", hits[0].ChunkID)
			assert.Equal(t, "doc-a", hits[0].DocID)
			assert.Greater(t, hits[0].Score, 0.0)
		})
	}
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			indexFixture(t, idx)

			hits, err := idx.Search(context.Background(), "   ", 10)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestSearchMalformedQueryReturnsNothing(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			indexFixture(t, idx)

			// Unbalanced quote trips the FTS5 query parser.
			hits, err := idx.Search(context.Background(), `"unbalanced AND (`, 10)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestDeleteDocRemovesAllChunks(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			indexFixture(t, idx)
			ctx := context.Background()

			require.NoError(t, idx.DeleteDoc(ctx, "doc-a"))

			hits, err := idx.Search(ctx, "database", 10)
			require.NoError(t, err)
			assert.Empty(t, hits)

			// Other documents stay searchable.
			hits, err = idx.Search(ctx, "roadmap", 10)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "b-0", hits[0].ChunkID)
		})
	}
}

func TestUpsertReplacesExistingChunk(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			indexFixture(t, idx)
			ctx := context.Background()

			docA := &domain.Document{ID: "doc-a", URI: "file:///docs/a.md", Title: "Alpha Guide"}
			require.NoError(t, idx.UpsertChunks(ctx, docA, []*domain.Chunk{
				{ID: "a-0", DocID: "doc-a", ChunkIndex: 0, Text: "completely rewritten content about kubernetes"},
			}))

			hits, err := idx.Search(ctx, "database", 10)
			require.NoError(t, err)
			assert.Empty(t, hits)

			hits, err = idx.Search(ctx, "kubernetes", 10)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "a-0", hits[0].ChunkID)
		})
	}
}

func TestSearchRespectsTopK(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := &domain.Document{ID: "doc-c", URI: "file:///docs/c.md", Title: "Fruit"}
			var chunks []*domain.Chunk
			for i := 0; i < 5; i++ {
				chunks = append(chunks, &domain.Chunk{
					ID: domain.NewID(), DocID: "doc-c", ChunkIndex: i,
					Text: "apples and oranges",
				})
			}
			require.NoError(t, idx.UpsertChunks(ctx, doc, chunks))

			hits, err := idx.Search(ctx, "apples", 3)
			require.NoError(t, err)
			assert.Len(t, hits, 3)
		})
	}
}
