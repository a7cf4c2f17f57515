package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/docsift/docsift/internal/errors"
)

// fakeProvider counts calls and returns deterministic vectors.
type fakeProvider struct {
	calls atomic.Int64
	fail  bool
}

func (f *fakeProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.fail {
		return nil, fmt.Errorf("provider down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (f *fakeProvider) Dimensions() int   { return 3 }
func (f *fakeProvider) ModelName() string { return "fake-model" }
func (f *fakeProvider) Close() error      { return nil }

func TestDiskCacheAvoidsSecondFetch(t *testing.T) {
	fake := &fakeProvider{}
	cache, err := NewDiskCache(fake, t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cache.EmbedTexts(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), fake.calls.Load())

	second, err := cache.EmbedTexts(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	// Both texts served from disk, no extra provider call.
	assert.Equal(t, int64(1), fake.calls.Load())
}

func TestDiskCachePartialMissReinterleaves(t *testing.T) {
	fake := &fakeProvider{}
	cache, err := NewDiskCache(fake, t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cache.EmbedTexts(ctx, []string{"cached"})
	require.NoError(t, err)

	out, err := cache.EmbedTexts(ctx, []string{"miss-one", "cached", "miss-two"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []float32{8, 1, 0}, out[0])
	assert.Equal(t, []float32{6, 1, 0}, out[1])
	assert.Equal(t, []float32{8, 1, 0}, out[2])
	assert.Equal(t, int64(2), fake.calls.Load())
}

func TestDiskCachePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := &fakeProvider{}
	cache1, err := NewDiskCache(first, dir)
	require.NoError(t, err)
	_, err = cache1.EmbedTexts(ctx, []string{"durable"})
	require.NoError(t, err)

	// A failing provider proves the second instance reads from disk.
	second := &fakeProvider{fail: true}
	cache2, err := NewDiskCache(second, dir)
	require.NoError(t, err)
	out, err := cache2.EmbedTexts(ctx, []string{"durable"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(0), second.calls.Load())
}

func TestLRUCacheHits(t *testing.T) {
	fake := &fakeProvider{}
	cached := NewCachedProvider(fake, 10)
	ctx := context.Background()

	_, err := cached.EmbedTexts(ctx, []string{"query"})
	require.NoError(t, err)
	_, err = cached.EmbedTexts(ctx, []string{"query"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), fake.calls.Load())
}

func TestOpenAIClientSortsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)

		// Respond out of order; the client must sort by index.
		fmt.Fprint(w, `{"data":[
			{"index":1,"embedding":[0,1,0]},
			{"index":0,"embedding":[1,0,0]}
		]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{
		BaseURL: srv.URL, APIKey: "sk-test", Model: "test-embed", Dim: 3,
	})
	defer client.Close()

	vecs, err := client.EmbedTexts(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1, 0}, vecs[1])
}

func TestOpenAIClientRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[1,0,0]}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Model: "test-embed", Dim: 3})
	defer client.Close()

	vecs, err := client.EmbedTexts(context.Background(), []string{"text"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestOpenAIClientBatchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Model: "test-embed", Dim: 3})
	defer client.Close()

	_, err := client.EmbedTexts(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindBackendUnavailable))
}
