// Package embedding defines the text-to-vector provider contract and the
// process-wide provider pool. Two interchangeable model kinds exist: a prose
// model for conversation and knowledge text, and a code model for source
// material. Some models are asymmetric and require a fixed textual prefix on
// queries only, so the contract splits document and query embedding: the
// prefix is applied inside EmbedQuery and never inside EmbedDocument.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/b17z/sage/core"
)

// Provider converts text to fixed-length vectors.
type Provider interface {
	// EmbedDocument embeds stored material. No query prefix is applied.
	EmbedDocument(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery embeds a retrieval query. Asymmetric models apply their
	// query prefix here; symmetric models behave like EmbedDocument.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector length.
	Dimensions() int
}

// Kind selects which model a call site wants.
type Kind string

const (
	KindProse Kind = "prose"
	KindCode  Kind = "code"
)

// Factory constructs a provider. Construction is expensive (model load), so
// the Pool calls a factory at most once per kind.
type Factory func() (Provider, error)

// Pool lazily constructs and memoizes one provider per kind. Construction is
// lock-guarded so concurrent first-callers wait instead of double-loading.
// A failed load is remembered: the pool keeps returning the same
// core.ErrModelUnavailable until the process restarts, and dependent
// features degrade to keyword-only behavior.
type Pool struct {
	mu        sync.Mutex
	factories map[Kind]Factory
	built     map[Kind]Provider
	failed    map[Kind]error
}

// NewPool creates a pool over the given factories. A kind with no factory
// reports model-unavailable.
func NewPool(factories map[Kind]Factory) *Pool {
	return &Pool{
		factories: factories,
		built:     make(map[Kind]Provider),
		failed:    make(map[Kind]error),
	}
}

// Get returns the memoized provider for kind, constructing it on first use.
func (p *Pool) Get(kind Kind) (Provider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prov, ok := p.built[kind]; ok {
		return prov, nil
	}
	if err, ok := p.failed[kind]; ok {
		return nil, err
	}

	factory, ok := p.factories[kind]
	if !ok {
		err := fmt.Errorf("%w: no %s model configured", core.ErrModelUnavailable, kind)
		p.failed[kind] = err
		return nil, err
	}

	prov, err := factory()
	if err != nil {
		err = fmt.Errorf("%w: load %s model: %v", core.ErrModelUnavailable, kind, err)
		p.failed[kind] = err
		return nil, err
	}
	p.built[kind] = prov
	return prov, nil
}
