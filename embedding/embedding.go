// Package embedding defines the boundary to the external text-to-vector
// model. The serving layer treats the provider as an opaque function and
// applies no retry or batching policy of its own.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/vecshard/vecshard/distance"
)

// Provider converts a batch of texts into fixed-dimension vectors.
type Provider interface {
	// Embed returns one vector per input text, all of the same dimension.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of produced vectors.
	Dimension() int
}

// StaticProvider is a deterministic hash-based Provider for tests and demos.
// It stands in for a model server: equal texts map to equal vectors, and the
// vectors are unit-normalized.
type StaticProvider struct {
	dim int
}

// NewStaticProvider creates a StaticProvider with the given dimension.
func NewStaticProvider(dim int) (*StaticProvider, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding: dimension must be positive, got %d", dim)
	}
	return &StaticProvider{dim: dim}, nil
}

// Dimension returns the configured vector dimension.
func (p *StaticProvider) Dimension() int { return p.dim }

// Embed derives each vector from an FNV hash chain over the text.
func (p *StaticProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(text))
		state := h.Sum64()

		vec := make([]float32, p.dim)
		for j := range vec {
			// xorshift64 over the seed hash
			state ^= state << 13
			state ^= state >> 7
			state ^= state << 17
			vec[j] = float32(int64(state%2000)-1000) / 1000
		}
		distance.NormalizeL2InPlace(vec)
		out[i] = vec
	}
	return out, nil
}
