package kmeans

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/vecshard/vecshard/internal/math32"
)

// Options controls a clustering run.
type Options struct {
	// MaxIterations caps the number of Lloyd iterations.
	MaxIterations int

	// Tolerance stops iteration early when the maximum squared centroid
	// movement between two iterations falls below it.
	Tolerance float32

	// Rand is the randomness source for seeding and empty-cluster repair.
	// Must not be nil.
	Rand *rand.Rand
}

// DefaultOptions returns the clustering parameters used for index builds.
func DefaultOptions(rng *rand.Rand) Options {
	return Options{
		MaxIterations: 25,
		Tolerance:     1e-4,
		Rand:          rng,
	}
}

// ErrTooFewVectors is returned when there are fewer vectors than clusters.
var ErrTooFewVectors = errors.New("kmeans: fewer vectors than clusters")

// Train clusters n = len(vectors)/dim vectors into k centroids using Lloyd's
// algorithm with k-means++ seeding. It returns the flattened centroids (k*dim).
func Train(vectors []float32, dim, k int, opts Options) ([]float32, error) {
	n := len(vectors) / dim
	if n < k {
		return nil, ErrTooFewVectors
	}

	centroids := seedPlusPlus(vectors, dim, n, k, opts.Rand)

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)
	cellDists := make([]float32, k)

	for iter := 0; iter < opts.MaxIterations; iter++ {
		changed := false

		// Assignment step
		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			math32.SquaredL2Batch(vec, centroids, dim, cellDists)

			best := 0
			minDist := cellDists[0]
			for j := 1; j < k; j++ {
				if cellDists[j] < minDist {
					minDist = cellDists[j]
					best = j
				}
			}

			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed && iter > 0 {
			break
		}

		// Update step
		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}

		for i := 0; i < n; i++ {
			cluster := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[cluster*dim+d] += vec[d]
			}
			counts[cluster]++
		}

		var maxShift float32
		for j := 0; j < k; j++ {
			dst := centroids[j*dim : (j+1)*dim]
			if counts[j] > 0 {
				scale := 1.0 / float32(counts[j])
				var shift float32
				for d := 0; d < dim; d++ {
					next := sums[j*dim+d] * scale
					delta := next - dst[d]
					shift += delta * delta
					dst[d] = next
				}
				if shift > maxShift {
					maxShift = shift
				}
			} else {
				// Re-seed an empty cluster with a random point.
				idx := opts.Rand.Intn(n)
				copy(dst, vectors[idx*dim:(idx+1)*dim])
				maxShift = math.MaxFloat32
			}
		}

		if maxShift < opts.Tolerance {
			break
		}
	}

	return centroids, nil
}

// seedPlusPlus picks k initial centroids with k-means++ sampling:
// each subsequent centroid is drawn proportional to its squared distance
// from the nearest already-chosen one.
func seedPlusPlus(vectors []float32, dim, n, k int, rng *rand.Rand) []float32 {
	centroids := make([]float32, k*dim)

	first := rng.Intn(n)
	copy(centroids[0:dim], vectors[first*dim:(first+1)*dim])

	minDistSq := make([]float32, n)
	var sum float32
	for i := 0; i < n; i++ {
		d := math32.SquaredL2(vectors[i*dim:(i+1)*dim], centroids[0:dim])
		minDistSq[i] = d
		sum += d
	}

	for c := 1; c < k; c++ {
		dst := centroids[c*dim : (c+1)*dim]

		if sum == 0 {
			idx := rng.Intn(n)
			copy(dst, vectors[idx*dim:(idx+1)*dim])
			continue
		}

		target := rng.Float32() * sum
		var cumsum float32
		chosen := 0
		for i, d := range minDistSq {
			cumsum += d
			if cumsum >= target {
				chosen = i
				break
			}
		}
		copy(dst, vectors[chosen*dim:(chosen+1)*dim])

		sum = 0
		for i := 0; i < n; i++ {
			d := math32.SquaredL2(vectors[i*dim:(i+1)*dim], dst)
			if d < minDistSq[i] {
				minDistSq[i] = d
			}
			sum += minDistSq[i]
		}
	}

	return centroids
}

// AssignPartition finds the closest centroid for a vector.
// Ties resolve to the lowest centroid index.
func AssignPartition(vec []float32, centroids []float32, dim int) int {
	k := len(centroids) / dim

	best := -1
	minDist := float32(math.MaxFloat32)

	for j := 0; j < k; j++ {
		d := math32.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}

	return best
}

type centroidDist struct {
	id   int
	dist float32
}

// FindClosestCentroids returns the indices of the n closest centroids to the
// query vector, nearest first. Equal distances order by lower centroid index.
func FindClosestCentroids(query []float32, centroids []float32, dim, n int) []int {
	k := len(centroids) / dim
	if n > k {
		n = k
	}

	dists := make([]centroidDist, k)
	for i := 0; i < k; i++ {
		d := math32.SquaredL2(query, centroids[i*dim:(i+1)*dim])
		dists[i] = centroidDist{id: i, dist: d}
	}

	sort.Slice(dists, func(i, j int) bool {
		if dists[i].dist != dists[j].dist {
			return dists[i].dist < dists[j].dist
		}
		return dists[i].id < dists[j].id
	})

	result := make([]int, n)
	for i := 0; i < n; i++ {
		result[i] = dists[i].id
	}

	return result
}

// Subsample uniformly samples limit vectors without replacement from the n
// vectors in src, returning a new flattened slice. If n <= limit, src is
// returned unchanged.
func Subsample(src []float32, dim, limit int, rng *rand.Rand) []float32 {
	n := len(src) / dim
	if n <= limit {
		return src
	}

	perm := rng.Perm(n)[:limit]
	out := make([]float32, limit*dim)
	for i, idx := range perm {
		copy(out[i*dim:(i+1)*dim], src[idx*dim:(idx+1)*dim])
	}

	return out
}
