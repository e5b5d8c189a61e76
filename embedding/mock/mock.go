// Package mock provides a deterministic embedding provider for tests.
// Vectors are derived from a text hash, so identical text always embeds
// identically, but there is no real semantic similarity between texts.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Provider is a hash-based mock embedding provider.
type Provider struct {
	dims        int
	queryPrefix string
}

// New creates a mock provider with the given dimensionality.
func New(dims int) *Provider {
	return &Provider{dims: dims}
}

// NewAsymmetric creates a mock that applies a query prefix, mirroring
// asymmetric production models: EmbedQuery("x") differs from
// EmbedDocument("x") unless the prefix is empty.
func NewAsymmetric(dims int, queryPrefix string) *Provider {
	return &Provider{dims: dims, queryPrefix: queryPrefix}
}

func (p *Provider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return p.hashEmbed(text), nil
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.hashEmbed(p.queryPrefix + text), nil
}

func (p *Provider) Dimensions() int {
	return p.dims
}

// hashEmbed generates a deterministic unit vector from a text hash using an
// LCG seeded by the hash.
func (p *Provider) hashEmbed(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.dims)
	for i := 0; i < p.dims; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// Fixed is a provider that returns pre-assigned vectors per exact text,
// letting tests construct literal geometry (e.g. orthogonal axes) instead of
// hash noise. Unknown text falls back to hash embedding.
type Fixed struct {
	*Provider
	vectors map[string][]float32
}

// NewFixed creates a Fixed provider over the given text→vector table.
func NewFixed(dims int, vectors map[string][]float32) *Fixed {
	return &Fixed{Provider: New(dims), vectors: vectors}
}

func (f *Fixed) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.Provider.EmbedDocument(ctx, text)
}

func (f *Fixed) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.Provider.EmbedQuery(ctx, text)
}
