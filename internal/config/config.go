// Package config loads the application configuration from YAML with
// environment overrides. Precedence, lowest to highest: built-in defaults,
// config file, APP_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend identifiers accepted by the factory layer. The postgres-family
// backends are recognized but not built in this binary.
const (
	MetadataBackendSQLite   = "sqlite"
	MetadataBackendPostgres = "postgres"

	LexicalBackendFTS5  = "fts5"
	LexicalBackendBleve = "bleve"
	LexicalBackendPgFTS = "pg_fts"

	VectorBackendHNSW     = "hnsw"
	VectorBackendPgVector = "pgvector"
)

// Config is the complete application configuration.
type Config struct {
	MetadataBackend string `yaml:"metadata_backend"`
	LexicalBackend  string `yaml:"lexical_backend"`
	VectorBackend   string `yaml:"vector_backend"`

	Storage   StorageConfig   `yaml:"storage"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	WebFetch  WebFetchConfig  `yaml:"web_fetch"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Server    ServerConfig    `yaml:"server"`
}

// StorageConfig configures on-disk locations. SQLitePath and IndexDir
// default to subpaths of DataDir when left empty.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	IndexDir   string `yaml:"index_dir"`
}

// IngestionConfig configures scanning and chunking.
type IngestionConfig struct {
	ChunkSizeTokens    int `yaml:"chunk_size_tokens"`
	ChunkOverlapTokens int `yaml:"chunk_overlap_tokens"`
	MaxFileMB          int `yaml:"max_file_mb"`
}

// WebFetchConfig configures fetching of remote bookmark documents.
type WebFetchConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TimeoutSec int    `yaml:"timeout_sec"`
	UserAgent  string `yaml:"user_agent"`
}

// EmbeddingConfig configures the remote embedding provider.
// The API key is read only from APP_EMBEDDING_API_KEY, never from the file.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	ModelName string `yaml:"model_name"`
	Dim       int    `yaml:"dim"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"-"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		MetadataBackend: MetadataBackendSQLite,
		LexicalBackend:  LexicalBackendFTS5,
		VectorBackend:   VectorBackendHNSW,
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Ingestion: IngestionConfig{
			ChunkSizeTokens:    512,
			ChunkOverlapTokens: 64,
			MaxFileMB:          20,
		},
		WebFetch: WebFetchConfig{
			Enabled:    true,
			TimeoutSec: 15,
			UserAgent:  "docsift/1.0",
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			ModelName: "text-embedding-3-small",
			Dim:       1536,
			BaseURL:   "https://api.openai.com",
		},
		Server: ServerConfig{
			Addr:     ":8080",
			LogLevel: "info",
		},
	}
}

// Load reads configuration from path (optional), applies environment
// overrides, resolves derived paths, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML merges a YAML file over the current values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies APP_* environment variable overrides. Section
// and key join with underscores: APP_INGESTION_CHUNK_SIZE_TOKENS.
func (c *Config) applyEnvOverrides() {
	envString("APP_METADATA_BACKEND", &c.MetadataBackend)
	envString("APP_LEXICAL_BACKEND", &c.LexicalBackend)
	envString("APP_VECTOR_BACKEND", &c.VectorBackend)

	envString("APP_STORAGE_DATA_DIR", &c.Storage.DataDir)
	envString("APP_STORAGE_SQLITE_PATH", &c.Storage.SQLitePath)
	envString("APP_STORAGE_INDEX_DIR", &c.Storage.IndexDir)

	envInt("APP_INGESTION_CHUNK_SIZE_TOKENS", &c.Ingestion.ChunkSizeTokens)
	envInt("APP_INGESTION_CHUNK_OVERLAP_TOKENS", &c.Ingestion.ChunkOverlapTokens)
	envInt("APP_INGESTION_MAX_FILE_MB", &c.Ingestion.MaxFileMB)

	envBool("APP_WEB_FETCH_ENABLED", &c.WebFetch.Enabled)
	envInt("APP_WEB_FETCH_TIMEOUT_SEC", &c.WebFetch.TimeoutSec)
	envString("APP_WEB_FETCH_USER_AGENT", &c.WebFetch.UserAgent)

	envString("APP_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	envString("APP_EMBEDDING_MODEL_NAME", &c.Embedding.ModelName)
	envInt("APP_EMBEDDING_DIM", &c.Embedding.Dim)
	envString("APP_EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	envString("APP_EMBEDDING_API_KEY", &c.Embedding.APIKey)

	envString("APP_SERVER_ADDR", &c.Server.Addr)
	envString("APP_SERVER_LOG_LEVEL", &c.Server.LogLevel)
}

// resolvePaths fills SQLitePath and IndexDir from DataDir when unset.
func (c *Config) resolvePaths() {
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Storage.DataDir, "metadata.db")
	}
	if c.Storage.IndexDir == "" {
		c.Storage.IndexDir = filepath.Join(c.Storage.DataDir, "index")
	}
}

// CacheDir returns the embedding cache directory under DataDir.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Storage.DataDir, "cache", "embeddings")
}

// Validate checks the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch c.MetadataBackend {
	case MetadataBackendSQLite, MetadataBackendPostgres:
	default:
		return fmt.Errorf("metadata_backend must be %q or %q, got %q",
			MetadataBackendSQLite, MetadataBackendPostgres, c.MetadataBackend)
	}

	switch c.LexicalBackend {
	case LexicalBackendFTS5, LexicalBackendBleve, LexicalBackendPgFTS:
	default:
		return fmt.Errorf("lexical_backend must be %q, %q, or %q, got %q",
			LexicalBackendFTS5, LexicalBackendBleve, LexicalBackendPgFTS, c.LexicalBackend)
	}

	switch c.VectorBackend {
	case VectorBackendHNSW, VectorBackendPgVector:
	default:
		return fmt.Errorf("vector_backend must be %q or %q, got %q",
			VectorBackendHNSW, VectorBackendPgVector, c.VectorBackend)
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Ingestion.ChunkSizeTokens <= 0 {
		return fmt.Errorf("ingestion.chunk_size_tokens must be positive, got %d", c.Ingestion.ChunkSizeTokens)
	}
	if c.Ingestion.ChunkOverlapTokens < 0 {
		return fmt.Errorf("ingestion.chunk_overlap_tokens must be non-negative, got %d", c.Ingestion.ChunkOverlapTokens)
	}
	if c.Ingestion.ChunkOverlapTokens >= c.Ingestion.ChunkSizeTokens {
		return fmt.Errorf("ingestion.chunk_overlap_tokens (%d) must be smaller than chunk_size_tokens (%d)",
			c.Ingestion.ChunkOverlapTokens, c.Ingestion.ChunkSizeTokens)
	}
	if c.Ingestion.MaxFileMB <= 0 {
		return fmt.Errorf("ingestion.max_file_mb must be positive, got %d", c.Ingestion.MaxFileMB)
	}
	if c.WebFetch.TimeoutSec <= 0 {
		return fmt.Errorf("web_fetch.timeout_sec must be positive, got %d", c.WebFetch.TimeoutSec)
	}
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("embedding.dim must be positive, got %d", c.Embedding.Dim)
	}
	if c.Embedding.ModelName == "" {
		return fmt.Errorf("embedding.model_name must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel)
	}

	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			*dst = true
		case "false", "0", "no":
			*dst = false
		}
	}
}
