package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docsift/docsift/internal/config"
	errs "github.com/docsift/docsift/internal/errors"
)

// maxFetchBytes caps remote document bodies.
const maxFetchBytes = 10 << 20

// Fetcher retrieves remote documents for bookmark sources. Fetching can
// be disabled entirely; extraction of remote URIs then fails cleanly.
type Fetcher struct {
	enabled   bool
	userAgent string
	client    *http.Client
}

// NewFetcher creates a fetcher from the web_fetch configuration.
func NewFetcher(cfg config.WebFetchConfig) *Fetcher {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		enabled:   cfg.Enabled,
		userAgent: cfg.UserAgent,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch downloads url and returns the response body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f == nil || !f.enabled {
		return nil, errs.New(errs.KindExtraction, "web fetch is disabled, cannot retrieve %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Extraction(url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.Extraction(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Extraction(url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, errs.Extraction(url, err)
	}
	return body, nil
}
