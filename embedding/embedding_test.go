package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider(t *testing.T) {
	p, err := NewStaticProvider(64)
	require.NoError(t, err)
	assert.Equal(t, 64, p.Dimension())

	ctx := context.Background()
	vecs, err := p.Embed(ctx, []string{"red running shoes", "red running shoes", "blue jacket"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// Deterministic: equal texts embed identically.
	assert.Equal(t, vecs[0], vecs[1])
	assert.NotEqual(t, vecs[0], vecs[2])

	// Unit norm.
	for _, v := range vecs {
		require.Len(t, v, 64)
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	}
}

func TestStaticProvider_InvalidDimension(t *testing.T) {
	_, err := NewStaticProvider(0)
	assert.Error(t, err)
}

func TestStaticProvider_CanceledContext(t *testing.T) {
	p, err := NewStaticProvider(8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
