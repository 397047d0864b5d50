package vecshard

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vecshard/vecshard/blobstore"
	"github.com/vecshard/vecshard/ivfpq"
)

// ArtifactSuffix is the blob name suffix identifying index artifacts. The
// name stem is the shard key.
const ArtifactSuffix = ".index"

// discoverParallelism bounds concurrent artifact loads during Discover.
const discoverParallelism = 4

// Shard is one loaded index artifact. A Shard value is immutable; a reload
// publishes a new value with a higher generation.
type Shard struct {
	// Key is the shard key (artifact name stem).
	Key string
	// Source is the blob name the index was loaded from.
	Source string
	// Generation counts successful loads of this key, starting at 1.
	Generation uint64
	// Index is the sealed index. Never mutated after publication.
	Index *ivfpq.Index
}

// Registry holds the process-wide shard map. Readers dereference the current
// shard value without blocking; reloads swap the slot pointer under a
// short-lived per-key lock, so in-flight searches keep the index they
// started with.
type Registry struct {
	store   blobstore.BlobStore
	logger  *Logger
	metrics MetricsCollector
	limiter *rate.Limiter

	mu    sync.Mutex // guards slots and keyMu map shape, not slot contents
	slots map[string]*atomic.Pointer[Shard]
	keyMu map[string]*sync.Mutex
}

// NewRegistry creates a registry over an artifact store. Call Discover to
// populate it.
func NewRegistry(store blobstore.BlobStore, opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Registry{
		store:   store,
		logger:  o.logger,
		metrics: o.metrics,
		limiter: rate.NewLimiter(o.reloadLimit, o.reloadBurst),
		slots:   make(map[string]*atomic.Pointer[Shard]),
		keyMu:   make(map[string]*sync.Mutex),
	}
}

// Discover lists the store and loads every artifact blob. Each artifact
// becomes one shard keyed by its name stem. A per-shard load failure is
// logged and that shard is skipped; discovery itself fails only when the
// store cannot be listed.
func (r *Registry) Discover(ctx context.Context) error {
	start := time.Now()

	names, err := r.store.List(ctx, "")
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		loaded  []*Shard
		skipped int
	)
	g.SetLimit(discoverParallelism)

	for _, name := range names {
		if !strings.HasSuffix(name, ArtifactSuffix) {
			continue
		}
		name := name
		g.Go(func() error {
			shard, err := r.loadShard(ctx, name, 1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.LogShardSkipped(ctx, name, err)
				skipped++
				return nil
			}
			loaded = append(loaded, shard)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	for _, shard := range loaded {
		slot := new(atomic.Pointer[Shard])
		slot.Store(shard)
		r.slots[shard.Key] = slot
		r.keyMu[shard.Key] = new(sync.Mutex)
	}
	r.mu.Unlock()

	r.logger.LogDiscovery(ctx, len(loaded), skipped)
	r.metrics.RecordDiscovery(len(loaded), skipped, time.Since(start))
	return nil
}

func (r *Registry) loadShard(ctx context.Context, name string, generation uint64) (*Shard, error) {
	data, err := blobstore.ReadAll(ctx, r.store, name)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	idx, err := ivfpq.ReadIndex(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", name, err)
	}
	return &Shard{
		Key:        strings.TrimSuffix(path.Base(name), ArtifactSuffix),
		Source:     name,
		Generation: generation,
		Index:      idx,
	}, nil
}

// Get returns the current shard for key.
func (r *Registry) Get(key string) (*Shard, error) {
	r.mu.Lock()
	slot, ok := r.slots[key]
	r.mu.Unlock()
	if !ok {
		return nil, &ErrShardNotFound{Key: key, Available: r.Keys()}
	}
	return slot.Load(), nil
}

// Keys returns the registered shard keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.slots))
	for key := range r.slots {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Shards returns the current shard values, sorted by key.
func (r *Registry) Shards() []*Shard {
	r.mu.Lock()
	slots := make([]*atomic.Pointer[Shard], 0, len(r.slots))
	for _, slot := range r.slots {
		slots = append(slots, slot)
	}
	r.mu.Unlock()

	shards := make([]*Shard, len(slots))
	for i, slot := range slots {
		shards[i] = slot.Load()
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Key < shards[j].Key })
	return shards
}

// Len returns the number of registered shards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Reload re-reads key's artifact into a fresh index and atomically swaps it
// in. Concurrent reloads of the same key serialize; a failed reload keeps
// the previous generation live and returns the failure.
func (r *Registry) Reload(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() {
		r.metrics.RecordReload(key, time.Since(start), err)
	}()

	if err = r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("reload rate limit: %w", err)
	}

	r.mu.Lock()
	slot, ok := r.slots[key]
	keyLock := r.keyMu[key]
	r.mu.Unlock()
	if !ok {
		err = &ErrShardNotFound{Key: key, Available: r.Keys()}
		r.logger.LogReload(ctx, key, 0, err)
		return err
	}

	keyLock.Lock()
	defer keyLock.Unlock()

	prev := slot.Load()
	next, loadErr := r.loadShard(ctx, prev.Source, prev.Generation+1)
	if loadErr != nil {
		err = loadErr
		r.logger.LogReload(ctx, key, prev.Generation, err)
		return err
	}

	slot.Store(next)
	r.logger.LogReload(ctx, key, next.Generation, nil)
	return nil
}
