package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore implements BlobStore on a local directory: one artifact file
// per shard under a configured root.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
// The directory is created if it does not exist.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, name)
}

// Open opens a blob for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &localBlob{f: f, size: info.Size()}, nil
}

// Create creates a writable blob. Data is staged in a temp file and renamed
// into place on Close, so concurrent readers never observe a partial artifact.
func (s *LocalStore) Create(_ context.Context, name string) (WritableBlob, error) {
	tmp, err := os.CreateTemp(s.root, name+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &localWritableBlob{f: tmp, final: s.path(name)}, nil
}

// Put writes a complete blob atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List returns all blob names with the given prefix, sorted.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

type localBlob struct {
	f    *os.File
	size int64
}

func (b *localBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= b.size {
		return 0, io.EOF
	}
	return b.f.ReadAt(p, off)
}

func (b *localBlob) Size() int64 {
	return b.size
}

func (b *localBlob) Close() error {
	return b.f.Close()
}

type localWritableBlob struct {
	f     *os.File
	final string
}

func (b *localWritableBlob) Write(p []byte) (int, error) {
	return b.f.Write(p)
}

func (b *localWritableBlob) Sync() error {
	return b.f.Sync()
}

func (b *localWritableBlob) Close() error {
	tmp := b.f.Name()
	if err := b.f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, b.final); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
