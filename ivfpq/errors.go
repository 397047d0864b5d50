package ivfpq

import (
	"errors"
	"fmt"
)

var (
	// ErrNotTrained is returned when vectors are added before Train.
	ErrNotTrained = errors.New("index not trained")

	// ErrNotSealed is returned when an index is searched before Seal.
	ErrNotSealed = errors.New("index not sealed")

	// ErrSealed is returned when a sealed index is mutated.
	ErrSealed = errors.New("index already sealed")

	// ErrInvalidTopK is returned when top_k is not positive.
	ErrInvalidTopK = errors.New("top_k must be positive")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrDuplicateID indicates an external id that is already present.
type ErrDuplicateID struct {
	ID int64
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate external id: %d", e.ID)
}
