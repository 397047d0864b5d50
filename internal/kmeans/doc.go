// Package kmeans implements k-means clustering for quantizer training.
//
// Used internally by the coarse quantizer (cell centroids) and the product
// quantizer (per-subspace codebooks). All clustering is squared-L2; the
// iteration cap and convergence tolerance are fixed in DefaultOptions so
// index builds are reproducible given a seeded source.
package kmeans
