// Package embed turns chunk text into vectors via a remote
// OpenAI-compatible embeddings endpoint. Results are cached twice: a
// content-addressed disk cache survives restarts, and a small LRU in front
// of it absorbs repeated queries.
package embed

import (
	"context"

	"github.com/docsift/docsift/internal/config"
)

// Provider is the embedding interface. EmbedTexts returns one vector per
// input text, in input order.
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}

// New builds the provider stack from cfg: remote client, disk cache, LRU.
func New(cfg *config.Config) (Provider, error) {
	client := NewOpenAIClient(OpenAIConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.ModelName,
		Dim:     cfg.Embedding.Dim,
	})
	disk, err := NewDiskCache(client, cfg.CacheDir())
	if err != nil {
		return nil, err
	}
	return NewCachedProvider(disk, 0), nil
}
