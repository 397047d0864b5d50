package ivfpq

import (
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/vecshard/vecshard/internal/kmeans"
	"github.com/vecshard/vecshard/internal/math32"
)

// ProductQuantizer compresses residual vectors into m byte codes using m
// independently trained sub-codebooks.
type ProductQuantizer struct {
	dim    int
	m      int
	nbits  int
	subDim int
	ksub   int

	// codebooks[s] holds the ksub centroids of segment s, flat ksub*subDim.
	codebooks [][]float32
}

// trainPQ clusters the m residual segments independently. Each segment runs
// its own k-means on its own goroutine with a derived seed, so training is
// deterministic for a fixed rng.
func trainPQ(residuals []float32, n int, p Params, rng *rand.Rand) (*ProductQuantizer, error) {
	pq := &ProductQuantizer{
		dim:       p.Dimension,
		m:         p.M,
		nbits:     p.NBits,
		subDim:    p.SubDim(),
		ksub:      p.KSub(),
		codebooks: make([][]float32, p.M),
	}

	// Seeds are drawn serially so the parallel segment training never shares
	// the parent rng.
	seeds := make([]int64, p.M)
	for s := range seeds {
		seeds[s] = rng.Int63()
	}

	var g errgroup.Group
	for s := 0; s < p.M; s++ {
		s := s
		g.Go(func() error {
			sub := make([]float32, n*pq.subDim)
			for i := 0; i < n; i++ {
				off := i*pq.dim + s*pq.subDim
				copy(sub[i*pq.subDim:(i+1)*pq.subDim], residuals[off:off+pq.subDim])
			}

			opts := kmeans.DefaultOptions(rand.New(rand.NewSource(seeds[s])))
			centroids, err := kmeans.Train(sub, pq.subDim, pq.ksub, opts)
			if err != nil {
				return fmt.Errorf("segment %d: %w", s, err)
			}
			pq.codebooks[s] = centroids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return pq, nil
}

// CodeSize returns the encoded size of one vector in bytes.
func (pq *ProductQuantizer) CodeSize() int { return pq.m }

// EncodeInto writes the m segment codes of residual into code.
func (pq *ProductQuantizer) EncodeInto(residual []float32, code []byte) {
	for s := 0; s < pq.m; s++ {
		seg := residual[s*pq.subDim : (s+1)*pq.subDim]
		code[s] = byte(kmeans.AssignPartition(seg, pq.codebooks[s], pq.subDim))
	}
}

// DistanceTableInto fills table (m*ksub) with the squared distances from each
// residual segment to every centroid of that segment's codebook. The table is
// built once per probed cell and reused for every candidate in the cell.
func (pq *ProductQuantizer) DistanceTableInto(residual []float32, table []float32) {
	for s := 0; s < pq.m; s++ {
		seg := residual[s*pq.subDim : (s+1)*pq.subDim]
		math32.SquaredL2Batch(seg, pq.codebooks[s], pq.subDim, table[s*pq.ksub:(s+1)*pq.ksub])
	}
}

// ADC computes the approximate squared distance of one candidate from a
// distance table built by DistanceTableInto.
func (pq *ProductQuantizer) ADC(table []float32, code []byte) float32 {
	return math32.PqAdcLookup(table, code, pq.m)
}

// Decode reconstructs the approximate residual from a code. Used by tests
// and diagnostics; the search path never decodes.
func (pq *ProductQuantizer) Decode(code []byte) []float32 {
	out := make([]float32, pq.dim)
	for s := 0; s < pq.m; s++ {
		c := int(code[s])
		copy(out[s*pq.subDim:(s+1)*pq.subDim], pq.codebooks[s][c*pq.subDim:(c+1)*pq.subDim])
	}
	return out
}
