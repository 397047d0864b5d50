package ivfpq

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecshard/vecshard/internal/kmeans"
)

// clusteredVectors generates n vectors of dimension dim grouped into tight
// clusters, the shape embedding sets take in practice. Vector i belongs to
// cluster i%clusters.
func clusteredVectors(n, dim, clusters int, noise float32, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))

	centers := make([]float32, clusters*dim)
	for i := range centers {
		centers[i] = rng.Float32()
	}

	vectors := make([]float32, n*dim)
	for i := 0; i < n; i++ {
		center := centers[(i%clusters)*dim : (i%clusters+1)*dim]
		vec := vectors[i*dim : (i+1)*dim]
		for j := range vec {
			vec[j] = center[j] + noise*(rng.Float32()*2-1)
		}
	}
	return vectors
}

func sequentialIDs(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids
}

func buildIndex(t *testing.T, vectors []float32, params Params, opts ...BuilderOption) *Index {
	t.Helper()

	b, err := NewBuilder(params, opts...)
	require.NoError(t, err)
	require.NoError(t, b.Train(vectors))
	require.NoError(t, b.Add(vectors, sequentialIDs(len(vectors)/params.Dimension)))

	idx, err := b.Seal()
	require.NoError(t, err)
	return idx
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"valid", Params{Dimension: 384, NList: 32, M: 8, NBits: 8}, false},
		{"valid small", Params{Dimension: 8, NList: 2, M: 2, NBits: 1}, false},
		{"zero dimension", Params{Dimension: 0, NList: 32, M: 8, NBits: 8}, true},
		{"zero nlist", Params{Dimension: 384, NList: 0, M: 8, NBits: 8}, true},
		{"m does not divide d", Params{Dimension: 384, NList: 32, M: 7, NBits: 8}, true},
		{"zero m", Params{Dimension: 384, NList: 32, M: 0, NBits: 8}, true},
		{"nbits zero", Params{Dimension: 384, NList: 32, M: 8, NBits: 0}, true},
		{"nbits too large", Params{Dimension: 384, NList: 32, M: 8, NBits: 9}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuilder_StateMachine(t *testing.T) {
	params := Params{Dimension: 8, NList: 2, M: 2, NBits: 2}
	vectors := clusteredVectors(32, 8, 2, 0.01, 1)

	b, err := NewBuilder(params, WithSeed(1))
	require.NoError(t, err)

	// Add before Train fails.
	err = b.Add(vectors, sequentialIDs(32))
	assert.ErrorIs(t, err, ErrNotTrained)

	// Seal before Train fails.
	_, err = b.Seal()
	assert.ErrorIs(t, err, ErrNotTrained)

	require.NoError(t, b.Train(vectors))

	// Double train fails.
	assert.Error(t, b.Train(vectors))

	require.NoError(t, b.Add(vectors, sequentialIDs(32)))

	idx, err := b.Seal()
	require.NoError(t, err)
	assert.Equal(t, StatePopulated, idx.State())
	assert.Equal(t, 32, idx.Count())

	// Mutation after seal fails.
	err = b.Add(vectors, sequentialIDs(32))
	assert.ErrorIs(t, err, ErrSealed)
	_, err = b.Seal()
	assert.ErrorIs(t, err, ErrSealed)
}

func TestSearch_BeforeSeal(t *testing.T) {
	params := Params{Dimension: 8, NList: 2, M: 2, NBits: 2}
	vectors := clusteredVectors(32, 8, 2, 0.01, 1)

	b, err := NewBuilder(params, WithSeed(1))
	require.NoError(t, err)
	require.NoError(t, b.Train(vectors))

	_, err = b.idx.Search(vectors[:8], 1, 1)
	assert.ErrorIs(t, err, ErrNotSealed)
}

func TestBuilder_DuplicateID(t *testing.T) {
	params := Params{Dimension: 8, NList: 2, M: 2, NBits: 2}
	vectors := clusteredVectors(32, 8, 2, 0.01, 2)

	b, err := NewBuilder(params, WithSeed(2))
	require.NoError(t, err)
	require.NoError(t, b.Train(vectors))
	require.NoError(t, b.Add(vectors[:16*8], sequentialIDs(16)))

	// Re-adding id 3 is rejected.
	err = b.Add(vectors[:8], []int64{3})
	var dup *ErrDuplicateID
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, int64(3), dup.ID)
}

func TestBuilder_CountMismatch(t *testing.T) {
	params := Params{Dimension: 8, NList: 2, M: 2, NBits: 2}
	vectors := clusteredVectors(32, 8, 2, 0.01, 3)

	b, err := NewBuilder(params, WithSeed(3))
	require.NoError(t, err)
	require.NoError(t, b.Train(vectors))

	assert.Error(t, b.Add(vectors[:16], sequentialIDs(3)))
	assert.Error(t, b.Add(vectors[:7], sequentialIDs(1)))
}

// TestSearch_SelfRetrieval builds an index over 1000 vectors of dimension 384
// with nlist=32, m=8, nbits=8, then queries with stored vector #7. The stored
// code of a vector minimizes its own distance table, so the vector must come
// back first with near-zero distance.
func TestSearch_SelfRetrieval(t *testing.T) {
	params := Params{Dimension: 384, NList: 32, M: 8, NBits: 8}
	vectors := clusteredVectors(1000, 384, 32, 1e-4, 42)

	idx := buildIndex(t, vectors, params, WithSeed(42))
	require.Equal(t, 1000, idx.Count())

	query := vectors[7*384 : 8*384]
	results, err := idx.Search(query, 5, 10)
	require.NoError(t, err)

	require.Len(t, results, 5)
	assert.Equal(t, int64(7), results[0].ID)
	assert.Less(t, results[0].Distance, float32(1e-3))

	// Ascending distance order.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
}

func TestSearch_DimensionGuard(t *testing.T) {
	params := Params{Dimension: 384, NList: 4, M: 8, NBits: 4}
	vectors := clusteredVectors(200, 384, 4, 0.01, 7)
	idx := buildIndex(t, vectors, params, WithSeed(7))

	_, err := idx.Search(make([]float32, 128), 5, 1)
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 384, dm.Expected)
	assert.Equal(t, 128, dm.Actual)
}

func TestSearch_InvalidTopK(t *testing.T) {
	params := Params{Dimension: 8, NList: 2, M: 2, NBits: 2}
	vectors := clusteredVectors(32, 8, 2, 0.01, 8)
	idx := buildIndex(t, vectors, params, WithSeed(8))

	_, err := idx.Search(vectors[:8], 0, 1)
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestSearch_ResultLengthBound(t *testing.T) {
	params := Params{Dimension: 8, NList: 2, M: 2, NBits: 2}
	vectors := clusteredVectors(5, 8, 2, 0.01, 9)
	idx := buildIndex(t, vectors, params, WithSeed(9))

	// Fewer vectors than top_k: all of them come back (all cells probed).
	results, err := idx.Search(vectors[:8], 8, params.NList)
	require.NoError(t, err)
	assert.Len(t, results, 5)

	// More vectors than top_k: exactly top_k.
	results, err = idx.Search(vectors[:8], 3, params.NList)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_NProbeClamp(t *testing.T) {
	params := Params{Dimension: 8, NList: 4, M: 2, NBits: 2}
	vectors := clusteredVectors(64, 8, 4, 0.01, 10)
	idx := buildIndex(t, vectors, params, WithSeed(10))

	// Out-of-range nprobe values are clamped, not rejected.
	for _, nprobe := range []int{-5, 0, 1, 4, 100} {
		results, err := idx.Search(vectors[:8], 3, nprobe)
		require.NoError(t, err)
		assert.NotEmpty(t, results)
	}
}

// TestSearch_NProbeMonotonicity checks that widening the probe never loses
// recall: the probed cells at a larger nprobe are a superset, and an exact
// match sits at the minimum of its own distance table, so it cannot be
// evicted by candidates from additional cells.
func TestSearch_NProbeMonotonicity(t *testing.T) {
	params := Params{Dimension: 32, NList: 16, M: 4, NBits: 4}

	rng := rand.New(rand.NewSource(11))
	vectors := make([]float32, 400*32)
	for i := range vectors {
		vectors[i] = rng.Float32()
	}
	idx := buildIndex(t, vectors, params, WithSeed(11))

	recallAt := func(nprobe int) int {
		hits := 0
		for q := 0; q < 50; q++ {
			query := vectors[q*32 : (q+1)*32]
			results, err := idx.Search(query, 10, nprobe)
			require.NoError(t, err)
			for _, r := range results {
				if r.ID == int64(q) {
					hits++
					break
				}
			}
		}
		return hits
	}

	r1 := recallAt(1)
	r4 := recallAt(4)
	r16 := recallAt(16)

	assert.LessOrEqual(t, r1, r4)
	assert.LessOrEqual(t, r4, r16)
	assert.Equal(t, 50, r16, "probing every cell must find every stored vector")
}

func TestSearch_TieBreaksByID(t *testing.T) {
	params := Params{Dimension: 8, NList: 2, M: 2, NBits: 2}

	// Duplicate vectors quantize to identical codes, so their distances tie
	// exactly and order falls back to the external id.
	base := clusteredVectors(8, 8, 2, 0.01, 12)
	vectors := append(append([]float32{}, base...), base...)

	b, err := NewBuilder(params, WithSeed(12))
	require.NoError(t, err)
	require.NoError(t, b.Train(vectors))

	ids := []int64{10, 11, 12, 13, 14, 15, 16, 17, 0, 1, 2, 3, 4, 5, 6, 7}
	require.NoError(t, b.Add(vectors, ids))
	idx, err := b.Seal()
	require.NoError(t, err)

	results, err := idx.Search(base[:8], 16, params.NList)
	require.NoError(t, err)
	require.Len(t, results, 16)

	// base[0] was stored as id 10 and again as id 0; the lower id surfaces
	// first among the tied pair.
	assert.Equal(t, int64(0), results[0].ID)

	var dup *Result
	for i := range results {
		if results[i].ID == 10 {
			dup = &results[i]
		}
	}
	require.NotNil(t, dup)
	assert.Equal(t, results[0].Distance, dup.Distance)

	// Equal distances always order by ascending id.
	for i := 1; i < len(results); i++ {
		if results[i].Distance == results[i-1].Distance {
			assert.Less(t, results[i-1].ID, results[i].ID)
		}
	}
}

func TestBuilder_SmallTrainingSetWarns(t *testing.T) {
	// Below nlist*39 the build proceeds; the warning is advisory only.
	params := Params{Dimension: 8, NList: 4, M: 2, NBits: 2}
	vectors := clusteredVectors(20, 8, 4, 0.01, 13)

	b, err := NewBuilder(params, WithSeed(13))
	require.NoError(t, err)
	require.NoError(t, b.Train(vectors))
}

func TestBuilder_TrainCapSubsamples(t *testing.T) {
	params := Params{Dimension: 8, NList: 2, M: 2, NBits: 2}
	vectors := clusteredVectors(200, 8, 2, 0.01, 14)

	b, err := NewBuilder(params, WithSeed(14), WithTrainCap(50))
	require.NoError(t, err)
	require.NoError(t, b.Train(vectors))

	// Population is not capped: all vectors are added.
	require.NoError(t, b.Add(vectors, sequentialIDs(200)))
	idx, err := b.Seal()
	require.NoError(t, err)
	assert.Equal(t, 200, idx.Count())
}

func TestBuilder_DeterministicWithSeed(t *testing.T) {
	params := Params{Dimension: 16, NList: 4, M: 4, NBits: 4}
	vectors := clusteredVectors(100, 16, 4, 0.01, 15)

	build := func() *Index {
		return buildIndex(t, vectors, params, WithSeed(99))
	}
	a, b := build(), build()

	query := vectors[3*16 : 4*16]
	ra, err := a.Search(query, 5, 4)
	require.NoError(t, err)
	rb, err := b.Search(query, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestBuilder_TooFewVectors(t *testing.T) {
	params := Params{Dimension: 8, NList: 16, M: 2, NBits: 2}
	vectors := clusteredVectors(8, 8, 2, 0.01, 16)

	b, err := NewBuilder(params, WithSeed(16))
	require.NoError(t, err)
	err = b.Train(vectors)
	assert.ErrorIs(t, err, kmeans.ErrTooFewVectors)
}
