package embedding

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CachedProvider memoizes embedding calls in a ristretto cache. The trigger
// detector and recall path frequently re-embed identical text within one
// session; memoization makes those hits free without changing results,
// because providers are deterministic for fixed input.
//
// Document and query embeddings are cached under distinct key prefixes,
// since asymmetric models produce different vectors for the same text.
type CachedProvider struct {
	inner Provider
	cache *ristretto.Cache
	ttl   time.Duration
}

// Cached wraps a provider with memoization. TTL <= 0 disables expiry.
// Returns the inner provider unchanged if the cache cannot be constructed.
func Cached(inner Provider, ttl time.Duration) Provider {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 14,
		MaxCost:     1 << 24, // ~16MB of vectors
		BufferItems: 64,
	})
	if err != nil {
		return inner
	}
	return &CachedProvider{inner: inner, cache: cache, ttl: ttl}
}

func (c *CachedProvider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, "d\x00"+text, text, c.inner.EmbedDocument)
}

func (c *CachedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, "q\x00"+text, text, c.inner.EmbedQuery)
}

func (c *CachedProvider) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedProvider) embed(ctx context.Context, key, text string, fn func(context.Context, string) ([]float32, error)) ([]float32, error) {
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := fn(ctx, text)
	if err != nil {
		return nil, err
	}
	cost := int64(4 * len(vec))
	if c.ttl > 0 {
		c.cache.SetWithTTL(key, vec, cost, c.ttl)
	} else {
		c.cache.Set(key, vec, cost)
	}
	return vec, nil
}
