package vecshard

import (
	"bytes"
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecshard/vecshard/blobstore"
	"github.com/vecshard/vecshard/ivfpq"
)

func testVectors(n, dim, clusters int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))

	centers := make([]float32, clusters*dim)
	for i := range centers {
		centers[i] = rng.Float32()
	}

	vectors := make([]float32, n*dim)
	for i := 0; i < n; i++ {
		center := centers[(i%clusters)*dim : (i%clusters+1)*dim]
		vec := vectors[i*dim : (i+1)*dim]
		for j := range vec {
			vec[j] = center[j] + 1e-4*(rng.Float32()*2-1)
		}
	}
	return vectors
}

func buildArtifact(t *testing.T, n, dim int, params ivfpq.Params, seed int64) []byte {
	t.Helper()

	vectors := testVectors(n, dim, params.NList, seed)
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i)
	}

	b, err := ivfpq.NewBuilder(params, ivfpq.WithSeed(seed))
	require.NoError(t, err)
	require.NoError(t, b.Train(vectors))
	require.NoError(t, b.Add(vectors, ids))
	idx, err := b.Seal()
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = idx.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func smallParams(dim int) ivfpq.Params {
	return ivfpq.Params{Dimension: dim, NList: 4, M: 4, NBits: 4}
}

func newTestRegistry(t *testing.T, artifacts map[string][]byte) *Registry {
	t.Helper()
	ctx := context.Background()

	store := blobstore.NewMemoryStore()
	for name, data := range artifacts {
		require.NoError(t, store.Put(ctx, name, data))
	}

	reg := NewRegistry(store, WithLogger(NoopLogger()))
	require.NoError(t, reg.Discover(ctx))
	return reg
}

func TestRegistry_Discover(t *testing.T) {
	artifact := buildArtifact(t, 100, 16, smallParams(16), 1)
	reg := newTestRegistry(t, map[string][]byte{
		"users.index": artifact,
		"items.index": artifact,
		"notes.txt":   []byte("not an artifact"),
	})

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"items", "users"}, reg.Keys())

	shard, err := reg.Get("users")
	require.NoError(t, err)
	assert.Equal(t, "users", shard.Key)
	assert.Equal(t, "users.index", shard.Source)
	assert.Equal(t, uint64(1), shard.Generation)
	assert.Equal(t, 100, shard.Index.Count())
}

func TestRegistry_DiscoverEmptyStore(t *testing.T) {
	reg := newTestRegistry(t, nil)
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.Keys())
}

// A corrupt artifact is skipped; the remaining shards still load.
func TestRegistry_DiscoverSkipsCorrupt(t *testing.T) {
	artifact := buildArtifact(t, 100, 16, smallParams(16), 2)

	// A corrupt header that keeps the magic/version prefix but carries an
	// absurd payload length field (1<<63, little-endian).
	badHeader := append([]byte("VSI1"), 1, 0, 0, 0, 0, 0, 0, 0)
	badHeader = append(badHeader, 0, 0, 0, 0, 0, 0, 0, 0x80)

	reg := newTestRegistry(t, map[string][]byte{
		"good.index":   artifact,
		"bad.index":    []byte("garbage bytes"),
		"bigger.index": badHeader,
	})

	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, []string{"good"}, reg.Keys())
}

func TestRegistry_GetNotFound(t *testing.T) {
	artifact := buildArtifact(t, 100, 16, smallParams(16), 3)
	reg := newTestRegistry(t, map[string][]byte{"users.index": artifact})

	_, err := reg.Get("missing")
	var nf *ErrShardNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.Key)
	assert.Equal(t, []string{"users"}, nf.Available)
	assert.Contains(t, err.Error(), "users")
}

func TestRegistry_Reload(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "users.index", buildArtifact(t, 100, 16, smallParams(16), 4)))

	reg := NewRegistry(store, WithLogger(NoopLogger()))
	require.NoError(t, reg.Discover(ctx))

	before, err := reg.Get("users")
	require.NoError(t, err)

	// Publish a new artifact and reload.
	require.NoError(t, store.Put(ctx, "users.index", buildArtifact(t, 150, 16, smallParams(16), 5)))
	require.NoError(t, reg.Reload(ctx, "users"))

	after, err := reg.Get("users")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), after.Generation)
	assert.Equal(t, 150, after.Index.Count())

	// The previous shard value is untouched.
	assert.Equal(t, uint64(1), before.Generation)
	assert.Equal(t, 100, before.Index.Count())
}

func TestRegistry_ReloadUnknownKey(t *testing.T) {
	reg := newTestRegistry(t, nil)

	err := reg.Reload(context.Background(), "ghost")
	var nf *ErrShardNotFound
	assert.ErrorAs(t, err, &nf)
}

// A failed reload keeps the previous generation serving.
func TestRegistry_ReloadFailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "users.index", buildArtifact(t, 100, 16, smallParams(16), 6)))

	reg := NewRegistry(store, WithLogger(NoopLogger()))
	require.NoError(t, reg.Discover(ctx))

	require.NoError(t, store.Put(ctx, "users.index", []byte("truncated garbage")))
	require.Error(t, reg.Reload(ctx, "users"))

	shard, err := reg.Get("users")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), shard.Generation)
	assert.Equal(t, 100, shard.Index.Count())

	// A corrupt length field behind a valid prefix behaves the same.
	badHeader := append([]byte("VSI1"), 1, 0, 0, 0, 0, 0, 0, 0)
	badHeader = append(badHeader, 0, 0, 0, 0, 0, 0, 0, 0x80)
	require.NoError(t, store.Put(ctx, "users.index", badHeader))
	require.Error(t, reg.Reload(ctx, "users"))

	shard, err = reg.Get("users")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), shard.Generation)

	// Deleting the artifact behaves the same.
	require.NoError(t, store.Delete(ctx, "users.index"))
	require.Error(t, reg.Reload(ctx, "users"))

	shard, err = reg.Get("users")
	require.NoError(t, err)
	assert.Equal(t, 100, shard.Index.Count())
}

// Reloading from an unchanged artifact returns identical search results.
func TestRegistry_ReloadIdempotent(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "users.index", buildArtifact(t, 100, 16, smallParams(16), 7)))

	reg := NewRegistry(store, WithLogger(NoopLogger()))
	require.NoError(t, reg.Discover(ctx))

	query := testVectors(100, 16, 4, 7)[:16]

	shard, err := reg.Get("users")
	require.NoError(t, err)
	before, err := shard.Index.Search(query, 10, 4)
	require.NoError(t, err)

	require.NoError(t, reg.Reload(ctx, "users"))

	shard, err = reg.Get("users")
	require.NoError(t, err)
	after, err := shard.Index.Search(query, 10, 4)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, uint64(2), shard.Generation)
}

// Concurrent searches during reloads observe either the old or the new index
// in full. Every search against a consistent snapshot of either artifact
// succeeds with a full result set.
func TestRegistry_ReloadAtomicity(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	oldArtifact := buildArtifact(t, 100, 16, smallParams(16), 8)
	newArtifact := buildArtifact(t, 200, 16, smallParams(16), 9)
	require.NoError(t, store.Put(ctx, "users.index", oldArtifact))

	reg := NewRegistry(store, WithLogger(NoopLogger()))
	require.NoError(t, reg.Discover(ctx))

	query := testVectors(100, 16, 4, 8)[:16]

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				shard, err := reg.Get("users")
				assert.NoError(t, err)

				count := shard.Index.Count()
				assert.Contains(t, []int{100, 200}, count)

				results, err := shard.Index.Search(query, 10, 4)
				assert.NoError(t, err)
				assert.Len(t, results, 10)
			}
		}()
	}

	for i := 0; i < 20; i++ {
		artifact := oldArtifact
		if i%2 == 0 {
			artifact = newArtifact
		}
		require.NoError(t, store.Put(ctx, "users.index", artifact))
		require.NoError(t, reg.Reload(ctx, "users"))
	}
	close(stop)
	wg.Wait()

	shard, err := reg.Get("users")
	require.NoError(t, err)
	assert.Equal(t, uint64(21), shard.Generation)
}

func TestRegistry_ConcurrentReloadsSameKey(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "users.index", buildArtifact(t, 100, 16, smallParams(16), 10)))

	reg := NewRegistry(store, WithLogger(NoopLogger()))
	require.NoError(t, reg.Discover(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, reg.Reload(ctx, "users"))
		}()
	}
	wg.Wait()

	// Serialized reloads: every attempt bumped the generation exactly once.
	shard, err := reg.Get("users")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), shard.Generation)
}
