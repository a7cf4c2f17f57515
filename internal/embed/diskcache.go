package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DiskCache wraps a Provider with a content-addressed on-disk cache. Each
// vector lives in its own JSON file named by SHA-256 of text and model, so
// re-indexing unchanged documents never re-calls the remote endpoint.
type DiskCache struct {
	inner Provider
	dir   string
}

var _ Provider = (*DiskCache)(nil)

// NewDiskCache creates the cache under dir, creating it if needed.
func NewDiskCache(inner Provider, dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &DiskCache{inner: inner, dir: dir}, nil
}

// cachePath returns the file path for a text's cached vector.
func (d *DiskCache) cachePath(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + d.inner.ModelName()))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:])+".json")
}

// EmbedTexts serves hits from disk, batches the misses to the inner
// provider, and re-interleaves results in input order.
func (d *DiskCache) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	missIndices := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := d.read(text); ok {
			results[i] = vec
		} else {
			missIndices = append(missIndices, i)
			missTexts = append(missTexts, text)
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := d.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIndices {
		results[idx] = fresh[j]
		if err := d.write(texts[idx], fresh[j]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (d *DiskCache) read(text string) ([]float32, bool) {
	data, err := os.ReadFile(d.cachePath(text))
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		// Unreadable entry, treat as a miss and let the write repair it.
		return nil, false
	}
	return vec, true
}

// write persists a vector atomically (temp file + rename).
func (d *DiskCache) write(text string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to encode cached vector: %w", err)
	}

	path := d.cachePath(text)
	tmp, err := os.CreateTemp(d.dir, "embed-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize cache file: %w", err)
	}
	return nil
}

func (d *DiskCache) Dimensions() int {
	return d.inner.Dimensions()
}

func (d *DiskCache) ModelName() string {
	return d.inner.ModelName()
}

func (d *DiskCache) Close() error {
	return d.inner.Close()
}
