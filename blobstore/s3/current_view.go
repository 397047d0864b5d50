package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/vecshard/vecshard/blobstore"
)

// artifactSuffix is the stable blob name suffix the view presents per shard key.
const artifactSuffix = ".index"

// CurrentView presents the published generations of a fixed set of shard keys
// as a blobstore.BlobStore. Blob names are stable ("<key>.index"); Open
// resolves the name through the generation pointer on every call, so a
// registry reload of an unchanged source name picks up the newest published
// artifact. Put and Create publish the next generation. Delete is rejected,
// published generations are immutable.
type CurrentView struct {
	current *CurrentStore
	keys    []string
}

var _ blobstore.BlobStore = (*CurrentView)(nil)

// NewCurrentView creates a view over the given shard keys.
func NewCurrentView(current *CurrentStore, keys []string) *CurrentView {
	ks := make([]string, len(keys))
	copy(ks, keys)
	sort.Strings(ks)
	return &CurrentView{current: current, keys: ks}
}

// Open resolves name's shard key to its current generation and opens the
// backing object.
func (v *CurrentView) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key, ok := v.shardKey(name)
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return v.current.Open(ctx, key)
}

// Put publishes data as the next generation of name's shard key.
func (v *CurrentView) Put(ctx context.Context, name string, data []byte) error {
	key, ok := v.shardKey(name)
	if !ok {
		return fmt.Errorf("put %s: not a configured shard key", name)
	}
	_, err := v.current.Publish(ctx, key, data)
	return err
}

// Create returns a blob that buffers writes and publishes them as the next
// generation on Close.
func (v *CurrentView) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	key, ok := v.shardKey(name)
	if !ok {
		return nil, fmt.Errorf("create %s: not a configured shard key", name)
	}
	return &publishBlob{ctx: ctx, current: v.current, key: key}, nil
}

// Delete is rejected: published generations are immutable.
func (v *CurrentView) Delete(ctx context.Context, name string) error {
	return fmt.Errorf("delete %s: published generations are immutable", name)
}

// List returns the stable name of every configured shard key with at least
// one published generation, sorted.
func (v *CurrentView) List(ctx context.Context, prefix string) ([]string, error) {
	names := make([]string, 0, len(v.keys))
	for _, key := range v.keys {
		name := key + artifactSuffix
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		_, err := v.current.CurrentArtifact(ctx, key)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (v *CurrentView) shardKey(name string) (string, bool) {
	key, ok := strings.CutSuffix(name, artifactSuffix)
	if !ok {
		return "", false
	}
	for _, k := range v.keys {
		if k == key {
			return key, true
		}
	}
	return "", false
}

// publishBlob buffers a build output and publishes it on Close.
type publishBlob struct {
	ctx     context.Context
	current *CurrentStore
	key     string
	buf     bytes.Buffer
	closed  atomic.Bool
}

func (b *publishBlob) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

func (b *publishBlob) Sync() error { return nil }

func (b *publishBlob) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return errors.New("blob already closed")
	}
	_, err := b.current.Publish(b.ctx, b.key, b.buf.Bytes())
	return err
}
