package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, MetadataBackendSQLite, cfg.MetadataBackend)
	assert.Equal(t, LexicalBackendFTS5, cfg.LexicalBackend)
	assert.Equal(t, VectorBackendHNSW, cfg.VectorBackend)
	assert.Equal(t, 512, cfg.Ingestion.ChunkSizeTokens)
	assert.Equal(t, 64, cfg.Ingestion.ChunkOverlapTokens)
}

func TestDerivedPathsFollowDataDir(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("./data", "metadata.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, filepath.Join("./data", "index"), cfg.Storage.IndexDir)
	assert.Equal(t, filepath.Join("./data", "cache", "embeddings"), cfg.CacheDir())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
lexical_backend: bleve
storage:
  data_dir: /tmp/docsift-test
ingestion:
  chunk_size_tokens: 256
embedding:
  model_name: custom-embed
  dim: 768
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, LexicalBackendBleve, cfg.LexicalBackend)
	assert.Equal(t, "/tmp/docsift-test", cfg.Storage.DataDir)
	assert.Equal(t, 256, cfg.Ingestion.ChunkSizeTokens)
	assert.Equal(t, "custom-embed", cfg.Embedding.ModelName)
	assert.Equal(t, 768, cfg.Embedding.Dim)
	// Untouched sections keep defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("APP_INGESTION_CHUNK_SIZE_TOKENS", "128")
	t.Setenv("APP_WEB_FETCH_ENABLED", "false")
	t.Setenv("APP_EMBEDDING_API_KEY", "sk-test")
	t.Setenv("APP_SERVER_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.Ingestion.ChunkSizeTokens)
	assert.False(t, cfg.WebFetch.Enabled)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown lexical backend", func(c *Config) { c.LexicalBackend = "elasticsearch" }},
		{"unknown vector backend", func(c *Config) { c.VectorBackend = "annoy" }},
		{"zero chunk size", func(c *Config) { c.Ingestion.ChunkSizeTokens = 0 }},
		{"negative overlap", func(c *Config) { c.Ingestion.ChunkOverlapTokens = -1 }},
		{"overlap >= size", func(c *Config) { c.Ingestion.ChunkSizeTokens = 64; c.Ingestion.ChunkOverlapTokens = 64 }},
		{"zero dim", func(c *Config) { c.Embedding.Dim = 0 }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.resolvePaths()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
