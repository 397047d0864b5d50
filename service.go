package vecshard

import (
	"context"
	"time"
)

// Service validates and dispatches requests against a Registry. It is safe
// for concurrent use.
type Service struct {
	registry *Registry
	opts     *options
}

// NewService creates a Service over a registry.
func NewService(registry *Registry, opts ...Option) *Service {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Service{
		registry: registry,
		opts:     o,
	}
}

// SearchRequest is one search call.
type SearchRequest struct {
	// ShardKey selects the shard; empty falls back to the configured default.
	ShardKey string
	// Query is the query vector; its length must match the shard dimension.
	Query []float32
	// TopK is the number of results; non-positive uses the default.
	TopK int
	// NProbe is the number of probed cells; non-positive uses the default.
	NProbe int
}

// SearchResult is one hit.
type SearchResult struct {
	ID int64
	// Score is the approximate squared L2 distance, smaller is closer.
	Score float32
}

// SearchResponse carries the hits and the shard that served them.
type SearchResponse struct {
	ShardKey string
	Results  []SearchResult
	Latency  time.Duration
}

// Search resolves the shard, validates the request, and runs the query.
func (s *Service) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	key := req.ShardKey
	if key == "" {
		key = s.opts.defaultShardKey
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.opts.defaultTopK
	}
	if s.opts.maxTopK > 0 && topK > s.opts.maxTopK {
		topK = s.opts.maxTopK
	}
	nprobe := req.NProbe
	if nprobe <= 0 {
		nprobe = s.opts.defaultNProbe
	}

	resp, err := s.search(ctx, key, req.Query, topK, nprobe)
	latency := time.Since(start)
	if resp != nil {
		resp.Latency = latency
	}

	s.opts.logger.LogSearch(ctx, key, topK, nprobe, resultCount(resp), latency, err)
	s.opts.metrics.RecordSearch(key, topK, latency, err)
	return resp, err
}

func (s *Service) search(ctx context.Context, key string, query []float32, topK, nprobe int) (*SearchResponse, error) {
	if key == "" {
		return nil, ErrMissingShardKey
	}
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shard, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}

	hits, err := shard.Index.Search(query, topK, nprobe)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{ID: h.ID, Score: h.Distance}
	}
	return &SearchResponse{ShardKey: key, Results: results}, nil
}

func resultCount(resp *SearchResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Results)
}

// ShardInfo describes one loaded shard.
type ShardInfo struct {
	ShardKey     string
	TotalVectors int
	Dimension    int
	Source       string
	Generation   uint64
}

// Info enumerates loaded shards. A non-empty shardKey filters to that key;
// an unknown key yields an empty list, not an error.
func (s *Service) Info(ctx context.Context, shardKey string) ([]ShardInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos := make([]ShardInfo, 0, s.registry.Len())
	for _, shard := range s.registry.Shards() {
		if shardKey != "" && shard.Key != shardKey {
			continue
		}
		infos = append(infos, ShardInfo{
			ShardKey:     shard.Key,
			TotalVectors: shard.Index.Count(),
			Dimension:    shard.Index.Dimension(),
			Source:       shard.Source,
			Generation:   shard.Generation,
		})
	}
	return infos, nil
}

// ReloadResponse reports the outcome of a reload request.
type ReloadResponse struct {
	Success        bool
	Message        string
	ReloadedShards []string
}

// Reload passes a reload through to the registry. Failure is reported in the
// response rather than as an error: a failed reload keeps the previous
// generation serving.
func (s *Service) Reload(ctx context.Context, shardKey string) *ReloadResponse {
	if shardKey == "" {
		shardKey = s.opts.defaultShardKey
	}
	if shardKey == "" {
		return &ReloadResponse{
			Success:        false,
			Message:        ErrMissingShardKey.Error(),
			ReloadedShards: []string{},
		}
	}

	if err := s.registry.Reload(ctx, shardKey); err != nil {
		return &ReloadResponse{
			Success:        false,
			Message:        err.Error(),
			ReloadedShards: []string{},
		}
	}
	return &ReloadResponse{
		Success:        true,
		Message:        "reloaded " + shardKey,
		ReloadedShards: []string{shardKey},
	}
}
