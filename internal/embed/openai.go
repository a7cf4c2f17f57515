package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	errs "github.com/docsift/docsift/internal/errors"
)

const (
	// defaultRequestTimeout bounds a single embeddings call.
	defaultRequestTimeout = 60 * time.Second
	// maxRetries is the number of attempts for transient failures.
	maxRetries = 3
)

// OpenAIConfig configures the remote embeddings client.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Dim     int
	Timeout time.Duration
}

// OpenAIClient calls a POST /v1/embeddings endpoint speaking the OpenAI
// wire format. Any provider exposing that shape works unchanged.
type OpenAIClient struct {
	config OpenAIConfig
	client *http.Client
}

var _ Provider = (*OpenAIClient)(nil)

// NewOpenAIClient creates the remote client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	// No http.Client.Timeout: the per-request context carries the deadline.
	return &OpenAIClient{
		config: cfg,
		client: &http.Client{Transport: transport},
	}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedTexts embeds all texts in one request. A failed request fails the
// whole batch; partial results are never returned.
func (c *OpenAIClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(embeddingsRequest{Model: c.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 100ms * 2^attempt.
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		vecs, err := c.doRequest(ctx, body, len(texts))
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return nil, errs.Wrap(errs.KindBackendUnavailable, lastErr, "embedding request failed")
}

// retryableError marks transport and server-side failures worth retrying.
type retryableError struct{ err error }

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

func isRetryable(err error) bool {
	_, ok := err.(*retryableError)
	return ok
}

func (c *OpenAIClient) doRequest(ctx context.Context, body []byte, want int) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := c.config.BaseURL + "/v1/embeddings"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &retryableError{fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		reqErr := fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, data)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{reqErr}
		}
		return nil, reqErr
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Data) != want {
		return nil, fmt.Errorf("embeddings endpoint returned %d vectors, want %d", len(parsed.Data), want)
	}

	// Providers may return data out of order; the index field is canonical.
	sort.Slice(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})

	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if c.config.Dim > 0 && len(d.Embedding) != c.config.Dim {
			return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", c.config.Dim, len(d.Embedding))
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (c *OpenAIClient) Dimensions() int {
	return c.config.Dim
}

func (c *OpenAIClient) ModelName() string {
	return c.config.Model
}

// Close releases pooled connections.
func (c *OpenAIClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
