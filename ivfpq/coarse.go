package ivfpq

import (
	"math/rand"

	"github.com/vecshard/vecshard/internal/kmeans"
)

// CoarseQuantizer partitions the vector space into nlist Voronoi cells.
type CoarseQuantizer struct {
	dim       int
	nlist     int
	centroids []float32 // nlist * dim, row-major
}

// trainCoarse clusters n vectors (flat, n*dim) into nlist cells.
func trainCoarse(vectors []float32, dim, nlist int, rng *rand.Rand) (*CoarseQuantizer, error) {
	centroids, err := kmeans.Train(vectors, dim, nlist, kmeans.DefaultOptions(rng))
	if err != nil {
		return nil, err
	}
	return &CoarseQuantizer{dim: dim, nlist: nlist, centroids: centroids}, nil
}

// NList returns the number of cells.
func (cq *CoarseQuantizer) NList() int { return cq.nlist }

// Centroid returns the centroid of cell. The returned slice aliases internal
// storage and must not be modified.
func (cq *CoarseQuantizer) Centroid(cell int) []float32 {
	return cq.centroids[cell*cq.dim : (cell+1)*cq.dim]
}

// Assign returns the cell whose centroid is closest to vec by squared L2
// distance, ties broken by the lower cell id.
func (cq *CoarseQuantizer) Assign(vec []float32) int {
	return kmeans.AssignPartition(vec, cq.centroids, cq.dim)
}

// AssignBatch assigns every vector in vectors (flat, len = n*dim) to its
// closest cell.
func (cq *CoarseQuantizer) AssignBatch(vectors []float32) []int {
	n := len(vectors) / cq.dim
	cells := make([]int, n)
	for i := 0; i < n; i++ {
		cells[i] = cq.Assign(vectors[i*cq.dim : (i+1)*cq.dim])
	}
	return cells
}

// Closest returns the n cells closest to query, ordered by ascending
// distance, ties by ascending cell id.
func (cq *CoarseQuantizer) Closest(query []float32, n int) []int {
	return kmeans.FindClosestCentroids(query, cq.centroids, cq.dim, n)
}
