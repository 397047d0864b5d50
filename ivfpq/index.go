package ivfpq

import (
	"errors"
	"fmt"

	"github.com/vecshard/vecshard/internal/queue"
)

// Params are the structural parameters of an index. They are fixed at
// construction and persisted in the artifact.
type Params struct {
	// Dimension is the vector dimensionality d.
	Dimension int
	// NList is the number of coarse cells.
	NList int
	// M is the number of product-quantizer segments. Must divide Dimension.
	M int
	// NBits is the number of bits per segment code, 1..8. Each segment code
	// is stored in one byte, so a sub-codebook has 2^NBits centroids.
	NBits int
}

// Validate checks the structural invariants.
func (p Params) Validate() error {
	if p.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", p.Dimension)
	}
	if p.NList <= 0 {
		return fmt.Errorf("nlist must be positive, got %d", p.NList)
	}
	if p.M <= 0 || p.Dimension%p.M != 0 {
		return fmt.Errorf("m must divide dimension: d=%d m=%d", p.Dimension, p.M)
	}
	if p.NBits < 1 || p.NBits > 8 {
		return fmt.Errorf("nbits must be in [1,8], got %d", p.NBits)
	}
	return nil
}

// KSub returns the number of centroids per sub-codebook (2^NBits).
func (p Params) KSub() int {
	return 1 << p.NBits
}

// SubDim returns the dimensionality of one segment (Dimension/M).
func (p Params) SubDim() int {
	return p.Dimension / p.M
}

// State is the lifecycle state of an index.
type State uint8

const (
	StateUntrained State = iota
	StateTrained
	StatePopulated
)

func (s State) String() string {
	switch s {
	case StateUntrained:
		return "untrained"
	case StateTrained:
		return "trained"
	case StatePopulated:
		return "populated"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Index is a sealed IVF-PQ index. All fields are immutable after Seal, so an
// Index is safe for concurrent searches without locking.
type Index struct {
	params Params
	coarse *CoarseQuantizer
	pq     *ProductQuantizer
	lists  *InvertedLists
	count  int
	state  State
}

// Params returns the structural parameters.
func (idx *Index) Params() Params { return idx.params }

// Dimension returns the vector dimensionality.
func (idx *Index) Dimension() int { return idx.params.Dimension }

// Count returns the total number of stored vectors.
func (idx *Index) Count() int { return idx.count }

// State returns the lifecycle state.
func (idx *Index) State() State { return idx.state }

// Result is one search hit.
type Result struct {
	// ID is the external id supplied at Add time.
	ID int64
	// Distance is the approximate squared L2 distance to the query.
	Distance float32
}

// Search returns up to topK results ordered by ascending distance, ties by
// ascending id. nprobe is clamped to [1, NList]. Only candidates in the
// probed cells are scanned, so fewer than topK results may be returned even
// when the index holds more vectors.
func (idx *Index) Search(query []float32, topK, nprobe int) ([]Result, error) {
	if idx.state != StatePopulated {
		return nil, fmt.Errorf("search: %w (state %s)", ErrNotSealed, idx.state)
	}
	if len(query) != idx.params.Dimension {
		return nil, &ErrDimensionMismatch{Expected: idx.params.Dimension, Actual: len(query)}
	}
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	if nprobe < 1 {
		nprobe = 1
	}
	if nprobe > idx.params.NList {
		nprobe = idx.params.NList
	}

	probed := idx.coarse.Closest(query, nprobe)

	residual := make([]float32, idx.params.Dimension)
	table := make([]float32, idx.params.M*idx.params.KSub())
	codeSize := idx.lists.CodeSize()

	top := queue.NewTopK(topK)
	for _, cell := range probed {
		centroid := idx.coarse.Centroid(cell)
		for i := range residual {
			residual[i] = query[i] - centroid[i]
		}
		idx.pq.DistanceTableInto(residual, table)

		ids, codes := idx.lists.Cell(cell)
		for i, id := range ids {
			dist := idx.pq.ADC(table, codes[i*codeSize:(i+1)*codeSize])
			top.Push(id, dist)
		}
	}

	items := top.Results()
	results := make([]Result, len(items))
	for i, it := range items {
		results[i] = Result{ID: it.ID, Distance: it.Distance}
	}
	return results, nil
}

// sealedIndexGuard reports errors for operations that require a sealed index.
func sealedIndexGuard(idx *Index) error {
	if idx == nil {
		return errors.New("nil index")
	}
	if idx.state != StatePopulated {
		return ErrNotSealed
	}
	return nil
}
