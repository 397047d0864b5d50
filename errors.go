package vecshard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vecshard/vecshard/ivfpq"
)

var (
	// ErrEmptyQuery is returned for a search request without a query vector.
	ErrEmptyQuery = errors.New("query vector is empty")

	// ErrMissingShardKey is returned when a request names no shard and no
	// default shard key is configured.
	ErrMissingShardKey = errors.New("missing shard key and no default configured")

	// ErrNotTrained mirrors the index state error for callers that do not
	// import ivfpq directly.
	ErrNotTrained = ivfpq.ErrNotTrained

	// ErrNotSealed mirrors the index state error for callers that do not
	// import ivfpq directly.
	ErrNotSealed = ivfpq.ErrNotSealed
)

// ErrDimensionMismatch is the query/index dimensionality error.
type ErrDimensionMismatch = ivfpq.ErrDimensionMismatch

// ErrShardNotFound indicates an unknown shard key. The message lists the
// currently available keys so the caller can correct the request.
type ErrShardNotFound struct {
	Key       string
	Available []string
}

func (e *ErrShardNotFound) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("shard %q not found: no shards loaded", e.Key)
	}
	return fmt.Sprintf("shard %q not found, available: %s", e.Key, strings.Join(e.Available, ", "))
}
