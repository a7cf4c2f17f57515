package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSource(name string) *domain.Source {
	return &domain.Source{
		ID:   domain.NewID(),
		Name: name,
		Type: domain.SourceTypeDirectory,
		Path: "/docs/" + name,
	}
}

func testDocument(sourceID, uri string) *domain.Document {
	return &domain.Document{
		ID:       domain.NewID(),
		SourceID: sourceID,
		URI:      uri,
		Title:    "doc",
		MimeType: "text/markdown",
		Mtime:    time.Now().UTC(),
		Status:   domain.DocStatusScanned,
	}
}

func TestSourceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src := testSource("docs")
	src.Config = map[string]any{"recursive": true}
	require.NoError(t, s.UpsertSource(ctx, src))

	got, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, src.Name, got.Name)
	assert.Equal(t, domain.SourceTypeDirectory, got.Type)
	assert.Equal(t, true, got.Config["recursive"])
	assert.False(t, got.CreatedAt.IsZero())
}

func TestDuplicateSourceNameConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSource(ctx, testSource("docs")))
	err := s.UpsertSource(ctx, testSource("docs"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConflict))
}

func TestGetSourceNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSource(context.Background(), "missing")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestDocumentURIUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src := testSource("docs")
	require.NoError(t, s.UpsertSource(ctx, src))

	doc := testDocument(src.ID, "file:///docs/a.md")
	require.NoError(t, s.UpsertDocument(ctx, doc))

	dup := testDocument(src.ID, "file:///docs/a.md")
	err := s.UpsertDocument(ctx, dup)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConflict))
}

func TestDocumentUpsertRefreshesUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("src-1", "file:///docs/a.md")
	require.NoError(t, s.UpsertDocument(ctx, doc))
	first := doc.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	doc.Status = domain.DocStatusIndexed
	require.NoError(t, s.UpsertDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocStatusIndexed, got.Status)
	assert.True(t, got.UpdatedAt.After(first))
}

func TestGetDocumentByURI(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("src-1", "file:///docs/b.md")
	require.NoError(t, s.UpsertDocument(ctx, doc))

	got, err := s.GetDocumentByURI(ctx, "file:///docs/b.md")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	_, err = s.GetDocumentByURI(ctx, "file:///docs/missing.md")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestMarkDocumentDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("src-1", "file:///docs/c.md")
	require.NoError(t, s.UpsertDocument(ctx, doc))
	require.NoError(t, s.MarkDocumentDeleted(ctx, doc.ID))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocStatusDeleted, got.Status)

	err = s.MarkDocumentDeleted(ctx, "missing")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestChunkLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID := domain.NewID()
	chunks := []*domain.Chunk{
		{ID: "c2", DocID: docID, ChunkIndex: 1, Text: "second"},
		{ID: "c1", DocID: docID, ChunkIndex: 0, Text: "first"},
	}
	require.NoError(t, s.UpsertChunks(ctx, chunks))

	got, err := s.ListChunks(ctx, docID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by chunk_index regardless of insertion order.
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)

	byID, err := s.GetChunksByIDs(ctx, []string{"c1", "missing"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "c1", byID[0].ID)

	require.NoError(t, s.DeleteChunks(ctx, docID))
	got, err = s.ListChunks(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPendingJobsFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &domain.Job{ID: "j1", Type: domain.JobTypeScanSource, CreatedAt: time.Now().Add(-2 * time.Second)}
	second := &domain.Job{ID: "j2", Type: domain.JobTypeIndexDoc, CreatedAt: time.Now().Add(-1 * time.Second)}
	require.NoError(t, s.CreateJob(ctx, first))
	require.NoError(t, s.CreateJob(ctx, second))

	pending, err := s.GetPendingJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "j1", pending[0].ID)

	first.Status = domain.JobStatusDone
	first.Progress = 1.0
	require.NoError(t, s.UpdateJob(ctx, first))

	pending, err = s.GetPendingJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "j2", pending[0].ID)
}

func TestJobPayloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &domain.Job{
		ID:      domain.NewID(),
		Type:    domain.JobTypeIndexDoc,
		Payload: map[string]any{"doc_id": "doc-1"},
	}
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Equal(t, "doc-1", got.Payload["doc_id"])
}
