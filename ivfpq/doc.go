// Package ivfpq implements an inverted-file index with product quantization
// (IVF-PQ) for approximate nearest-neighbor search.
//
// The vector space is partitioned into nlist Voronoi cells by a coarse
// quantizer. Each stored vector is reduced to its residual against the
// assigned cell centroid, and the residual is compressed to m byte codes by
// a product quantizer with m independent sub-codebooks of 2^nbits centroids.
//
// A search probes the nprobe cells whose centroids are closest to the query,
// builds one distance table per probed cell from the query residual, and
// scores every candidate in those cells with m table lookups instead of a
// full d-dimensional distance (asymmetric distance computation).
//
// Indexes move through three states: a Builder trains the quantizers
// (Untrained -> Trained), populates the inverted lists, and seals the result
// (Trained -> Populated). A sealed Index is immutable and safe for
// concurrent searches without locking. Updates are a rebuild followed by an
// atomic swap at the serving layer, never in-place mutation.
package ivfpq
