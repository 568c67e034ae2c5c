package embed

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder wraps an Embedder with a ristretto cache keyed by the
// SHA-256 of the input text. Embed is pure, so a cache hit is always valid;
// this cuts the dominant latency source out of re-ingestion and repeated
// queries.
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps inner with a cache holding roughly maxEntries vectors.
func NewCachedEmbedder(inner Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embed cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) Model() string   { return c.inner.Model() }
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Embed returns the cached vector for text when available, otherwise embeds
// through the wrapped provider and caches the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := contentKey(c.inner.Model(), text)
	if cached, ok := c.cache.Get(key); ok {
		if vec, ok := cached.([]float64); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, vec, 1)
	return vec, nil
}

// Wait drains the cache's set buffers. Tests use it to make Set visible.
func (c *CachedEmbedder) Wait() { c.cache.Wait() }

// Close releases the cache's resources.
func (c *CachedEmbedder) Close() { c.cache.Close() }

func contentKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%x", model, sum)
}
