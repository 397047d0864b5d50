package ivfpq

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/vecshard/vecshard/internal/kmeans"
)

const (
	// RecommendedPointsPerCell is the minimum recommended number of training
	// vectors per coarse cell. Training below it proceeds with a quality
	// warning, never a failure.
	RecommendedPointsPerCell = 39

	// DefaultTrainCap bounds the number of vectors fed to clustering. Larger
	// training sets are uniformly subsampled without replacement; the full
	// set is still used for population.
	DefaultTrainCap = 1_000_000
)

// Builder trains and populates an Index, then seals it. A Builder is not
// safe for concurrent use; index construction runs outside the serving path.
type Builder struct {
	idx      *Index
	rng      *rand.Rand
	logger   *slog.Logger
	trainCap int
	seen     *roaring64.Bitmap
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithSeed makes training deterministic for a fixed seed. Without it every
// build samples and seeds clustering from a random source.
func WithSeed(seed int64) BuilderOption {
	return func(b *Builder) {
		b.rng = rand.New(rand.NewSource(seed))
	}
}

// WithTrainLogger sets the logger for training diagnostics.
func WithTrainLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTrainCap overrides DefaultTrainCap.
func WithTrainCap(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.trainCap = n
		}
	}
}

// NewBuilder creates a Builder for an index with the given parameters.
func NewBuilder(params Params, opts ...BuilderOption) (*Builder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	b := &Builder{
		idx: &Index{
			params: params,
			state:  StateUntrained,
		},
		rng:      rand.New(rand.NewSource(rand.Int63())),
		logger:   slog.Default(),
		trainCap: DefaultTrainCap,
		seen:     roaring64.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Train clusters the coarse centroids and the product sub-codebooks from
// vectors (flat, len = n*Dimension). The same (possibly subsampled) set
// trains both quantizers; the product quantizer sees residuals against the
// assigned coarse centroid.
func (b *Builder) Train(vectors []float32) error {
	if b.idx.state != StateUntrained {
		return fmt.Errorf("train: index already %s", b.idx.state)
	}

	p := b.idx.params
	n, err := b.vectorCount(vectors)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("train: no vectors provided")
	}

	if n < p.NList*RecommendedPointsPerCell {
		b.logger.Warn("training set below recommended size, recall may degrade",
			slog.Int("vectors", n),
			slog.Int("nlist", p.NList),
			slog.Int("recommended", p.NList*RecommendedPointsPerCell),
		)
	}

	sample := kmeans.Subsample(vectors, p.Dimension, b.trainCap, b.rng)
	sn := len(sample) / p.Dimension

	coarse, err := trainCoarse(sample, p.Dimension, p.NList, b.rng)
	if err != nil {
		return fmt.Errorf("train coarse quantizer: %w", err)
	}

	cells := coarse.AssignBatch(sample)
	residuals := make([]float32, len(sample))
	for i := 0; i < sn; i++ {
		vec := sample[i*p.Dimension : (i+1)*p.Dimension]
		centroid := coarse.Centroid(cells[i])
		res := residuals[i*p.Dimension : (i+1)*p.Dimension]
		for j := range res {
			res[j] = vec[j] - centroid[j]
		}
	}

	pq, err := trainPQ(residuals, sn, p, b.rng)
	if err != nil {
		return fmt.Errorf("train product quantizer: %w", err)
	}

	b.idx.coarse = coarse
	b.idx.pq = pq
	b.idx.lists = NewInvertedLists(p.NList, pq.CodeSize())
	b.idx.state = StateTrained
	return nil
}

// Add assigns, encodes, and appends vectors (flat, len = len(ids)*Dimension)
// under their external ids. Duplicate ids are rejected.
func (b *Builder) Add(vectors []float32, ids []int64) error {
	switch b.idx.state {
	case StateUntrained:
		return fmt.Errorf("add: %w", ErrNotTrained)
	case StatePopulated:
		return fmt.Errorf("add: %w", ErrSealed)
	}

	p := b.idx.params
	n, err := b.vectorCount(vectors)
	if err != nil {
		return err
	}
	if n != len(ids) {
		return fmt.Errorf("add: %d vectors but %d ids", n, len(ids))
	}

	for _, id := range ids {
		if b.seen.Contains(uint64(id)) {
			return &ErrDuplicateID{ID: id}
		}
	}

	cells := b.idx.coarse.AssignBatch(vectors)
	residual := make([]float32, p.Dimension)
	code := make([]byte, b.idx.pq.CodeSize())

	for i := 0; i < n; i++ {
		vec := vectors[i*p.Dimension : (i+1)*p.Dimension]
		cell := cells[i]
		centroid := b.idx.coarse.Centroid(cell)
		for j := range residual {
			residual[j] = vec[j] - centroid[j]
		}
		b.idx.pq.EncodeInto(residual, code)
		b.idx.lists.Append(cell, ids[i], code)
		b.seen.Add(uint64(ids[i]))
	}
	b.idx.count += n
	return nil
}

// Seal marks the index populated and returns it. The Builder must not be
// used afterwards.
func (b *Builder) Seal() (*Index, error) {
	if b.idx.state != StateTrained {
		if b.idx.state == StatePopulated {
			return nil, fmt.Errorf("seal: %w", ErrSealed)
		}
		return nil, fmt.Errorf("seal: %w", ErrNotTrained)
	}
	b.idx.state = StatePopulated
	return b.idx, nil
}

func (b *Builder) vectorCount(vectors []float32) (int, error) {
	d := b.idx.params.Dimension
	if len(vectors)%d != 0 {
		return 0, &ErrDimensionMismatch{Expected: d, Actual: len(vectors) % d}
	}
	return len(vectors) / d, nil
}
