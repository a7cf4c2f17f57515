package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/chunk"
	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/indexer"
	"github.com/docsift/docsift/internal/lexical"
	"github.com/docsift/docsift/internal/store"
	"github.com/docsift/docsift/internal/vector"
)

const testDim = 4

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, testDim)
		for j, b := range []byte(text) {
			vec[j%testDim] += float32(b)
		}
		out[i] = vec
	}
	return out, nil
}

func (fakeEmbedder) Dimensions() int   { return testDim }
func (fakeEmbedder) ModelName() string { return "fake" }
func (fakeEmbedder) Close() error      { return nil }

type fileExtractor struct{}

func (fileExtractor) Extract(_ context.Context, uri, _ string) (*domain.ExtractedContent, error) {
	path := uri[len("file://"):]
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &domain.ExtractedContent{Text: string(data), Title: filepath.Base(path)}, nil
}

func newRunner(t *testing.T) (*Runner, store.MetadataStore) {
	t.Helper()

	meta, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	lex, err := lexical.NewFTS5Index("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lex.Close() })

	vec, err := vector.NewHNSWStore("", testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vec.Close() })

	splitter, err := chunk.NewSplitter(64, 8)
	require.NoError(t, err)

	idx := indexer.New(meta, lex, vec, fakeEmbedder{}, fileExtractor{}, splitter, 20)
	r := NewRunner(meta, idx)
	r.poll = 10 * time.Millisecond
	r.backoff = 10 * time.Millisecond
	return r, meta
}

func waitForJob(t *testing.T, meta store.MetadataStore, id string) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := meta.GetJob(context.Background(), id)
		require.NoError(t, err)
		if job.Status == domain.JobStatusDone || job.Status == domain.JobStatusFailed {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	r, _ := newRunner(t)
	_, err := r.Enqueue(context.Background(), domain.JobType("mystery"), nil)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestRunnerExecutesScanSourceJob(t *testing.T) {
	r, meta := newRunner(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("content about tidepools"), 0o644))
	src := &domain.Source{ID: domain.NewID(), Name: "docs", Type: domain.SourceTypeDirectory, Path: dir}
	require.NoError(t, meta.UpsertSource(ctx, src))

	job, err := r.Enqueue(ctx, domain.JobTypeScanSource, map[string]any{"source_id": src.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)

	r.Start(ctx)
	defer r.Stop()

	done := waitForJob(t, meta, job.ID)
	assert.Equal(t, domain.JobStatusDone, done.Status)
	assert.Equal(t, 1.0, done.Progress)
	assert.Empty(t, done.Error)

	docs, err := meta.ListDocuments(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.DocStatusIndexed, docs[0].Status)
}

func TestRunnerRecordsFailure(t *testing.T) {
	r, meta := newRunner(t)
	ctx := context.Background()

	job, err := r.Enqueue(ctx, domain.JobTypeScanSource, map[string]any{"source_id": "no-such-source"})
	require.NoError(t, err)

	r.Start(ctx)
	defer r.Stop()

	done := waitForJob(t, meta, job.ID)
	assert.Equal(t, domain.JobStatusFailed, done.Status)
	assert.NotEmpty(t, done.Error)
}

func TestRunnerIndexMissingDocCompletes(t *testing.T) {
	r, meta := newRunner(t)
	ctx := context.Background()

	// The document can vanish between enqueue and execution; the job
	// completes instead of failing.
	job, err := r.Enqueue(ctx, domain.JobTypeIndexDoc, map[string]any{"doc_id": "no-such-doc"})
	require.NoError(t, err)

	r.Start(ctx)
	defer r.Stop()

	done := waitForJob(t, meta, job.ID)
	assert.Equal(t, domain.JobStatusDone, done.Status)
	assert.Empty(t, done.Error)
}

func TestRunnerFailsJobWithBadPayload(t *testing.T) {
	r, meta := newRunner(t)
	ctx := context.Background()

	job, err := r.Enqueue(ctx, domain.JobTypeScanSource, map[string]any{})
	require.NoError(t, err)

	r.Start(ctx)
	defer r.Stop()

	done := waitForJob(t, meta, job.ID)
	assert.Equal(t, domain.JobStatusFailed, done.Status)
	assert.Contains(t, done.Error, "source_id")
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	r, _ := newRunner(t)
	r.Start(context.Background())
	r.Stop()
	r.Stop()
	r.Start(context.Background())
	r.Stop()
}
