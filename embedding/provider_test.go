package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b17z/sage/core"
)

type staticProvider struct{ dims int }

func (p *staticProvider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, p.dims), nil
}

func (p *staticProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, p.dims), nil
}

func (p *staticProvider) Dimensions() int { return p.dims }

func TestPoolMemoizesProvider(t *testing.T) {
	calls := 0
	pool := NewPool(map[Kind]Factory{
		KindProse: func() (Provider, error) {
			calls++
			return &staticProvider{dims: 8}, nil
		},
	})

	first, err := pool.Get(KindProse)
	require.NoError(t, err)
	second, err := pool.Get(KindProse)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls, "factory must run at most once")
}

func TestPoolRemembersFailure(t *testing.T) {
	calls := 0
	pool := NewPool(map[Kind]Factory{
		KindProse: func() (Provider, error) {
			calls++
			return nil, errors.New("model file missing")
		},
	})

	_, err := pool.Get(KindProse)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelUnavailable)

	_, err = pool.Get(KindProse)
	require.Error(t, err)
	assert.Equal(t, 1, calls, "failed load must not be retried")
}

func TestPoolUnconfiguredKind(t *testing.T) {
	pool := NewPool(nil)
	_, err := pool.Get(KindCode)
	assert.ErrorIs(t, err, core.ErrModelUnavailable)
}
