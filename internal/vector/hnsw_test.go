package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/domain"
)

func newTestHNSW(t *testing.T) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore("", 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func chunk(id, docID string) *domain.Chunk {
	return &domain.Chunk{ID: id, DocID: docID}
}

func TestQueryReturnsNearestLiveVectors(t *testing.T) {
	s := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEmbeddings(ctx,
		[]*domain.Chunk{chunk("c1", "d1"), chunk("c2", "d1"), chunk("c3", "d2")},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}))

	hits, err := s.Query(ctx, []float32{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.Equal(t, "d1", hits[0].DocID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestQueryEmptyStore(t *testing.T) {
	s := newTestHNSW(t)
	hits, err := s.Query(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteDocHidesVectors(t *testing.T) {
	s := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEmbeddings(ctx,
		[]*domain.Chunk{chunk("c1", "d1"), chunk("c2", "d2")},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.DeleteDoc(ctx, "d1"))

	hits, err := s.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].ChunkID)
}

func TestUpsertReplacesChunkVector(t *testing.T) {
	s := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEmbeddings(ctx,
		[]*domain.Chunk{chunk("c1", "d1")}, [][]float32{{1, 0, 0}}))
	// Re-upsert the same chunk pointing the opposite way.
	require.NoError(t, s.UpsertEmbeddings(ctx,
		[]*domain.Chunk{chunk("c1", "d1")}, [][]float32{{0, 1, 0}}))

	hits, err := s.Query(ctx, []float32{0, 1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)

	// The stale vector must not resurface.
	hits, err = s.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	for _, h := range hits {
		if h.ChunkID == "c1" {
			assert.Less(t, h.Score, 0.9)
		}
	}
}

func TestCompactDropsDeletedRows(t *testing.T) {
	s := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEmbeddings(ctx,
		[]*domain.Chunk{chunk("c1", "d1"), chunk("c2", "d2")},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.DeleteDoc(ctx, "d1"))
	require.NoError(t, s.Compact(ctx))

	var total int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM chunk_vectors`).Scan(&total))
	assert.Equal(t, 1, total)

	hits, err := s.Query(ctx, []float32{0, 1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].ChunkID)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewHNSWStore(dir, 3)
	require.NoError(t, err)
	require.NoError(t, s.UpsertEmbeddings(ctx,
		[]*domain.Chunk{chunk("c1", "d1"), chunk("c2", "d2")},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.DeleteDoc(ctx, "d2"))
	require.NoError(t, s.Close())

	reopened, err := NewHNSWStore(dir, 3)
	require.NoError(t, err)
	defer reopened.Close()

	hits, err := reopened.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ChunkID)
}

func TestDimensionMismatchRejected(t *testing.T) {
	s := newTestHNSW(t)
	ctx := context.Background()

	err := s.UpsertEmbeddings(ctx, []*domain.Chunk{chunk("c1", "d1")}, [][]float32{{1, 0}})
	assert.Error(t, err)

	require.NoError(t, s.UpsertEmbeddings(ctx,
		[]*domain.Chunk{chunk("c1", "d1")}, [][]float32{{1, 0, 0}}))
	_, err = s.Query(ctx, []float32{1, 0}, 5)
	assert.Error(t, err)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3.75}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
