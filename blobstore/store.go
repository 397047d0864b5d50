// Package blobstore abstracts access to immutable index artifacts.
//
// Shard artifacts are written once per build generation and read whole at
// load time; the interface reflects that: Create for build output, Open and
// List for discovery and reload. Implementations must be safe for concurrent
// use.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for storing and retrieving index artifacts.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create creates a new writable blob. The blob becomes visible to
	// readers no later than a successful Close.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a complete blob in one call.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored artifact.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// Size returns the size of the blob in bytes.
	Size() int64

	// Close releases the handle.
	Close() error
}

// WritableBlob is a write-once handle for a new artifact.
type WritableBlob interface {
	io.Writer

	// Sync flushes buffered data to stable storage where supported.
	Sync() error

	// Close finalizes the blob. The data is not guaranteed visible
	// before Close returns nil.
	Close() error
}

// ReadAll reads the entire named blob into memory.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	data := make([]byte, blob.Size())
	if len(data) == 0 {
		return data, nil
	}

	n, err := blob.ReadAt(ctx, data, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}
