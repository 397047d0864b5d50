package vecshard

import (
	"golang.org/x/time/rate"
)

const (
	// DefaultTopK is used when a request's top_k is not positive.
	DefaultTopK = 10
	// DefaultNProbe is used when a request's nprobe is not positive.
	DefaultNProbe = 10
)

type options struct {
	logger          *Logger
	metrics         MetricsCollector
	defaultShardKey string
	defaultTopK     int
	defaultNProbe   int
	maxTopK         int
	reloadLimit     rate.Limit
	reloadBurst     int
}

func defaultOptions() *options {
	return &options{
		logger:        NewLogger(nil),
		metrics:       NoopMetricsCollector{},
		defaultTopK:   DefaultTopK,
		defaultNProbe: DefaultNProbe,
		reloadLimit:   rate.Inf,
		reloadBurst:   1,
	}
}

// Option configures the registry and the service.
type Option func(*options)

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics collector. A nil collector keeps the noop.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithDefaultShardKey sets the shard used when a request names none.
func WithDefaultShardKey(key string) Option {
	return func(o *options) {
		o.defaultShardKey = key
	}
}

// WithDefaultTopK overrides DefaultTopK.
func WithDefaultTopK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.defaultTopK = k
		}
	}
}

// WithDefaultNProbe overrides DefaultNProbe.
func WithDefaultNProbe(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.defaultNProbe = n
		}
	}
}

// WithMaxTopK caps the per-request top_k. Zero means no cap.
func WithMaxTopK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.maxTopK = k
		}
	}
}

// WithReloadLimit bounds how often shards may be reloaded. Reloads beyond
// the limit wait rather than fail.
func WithReloadLimit(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.reloadLimit = limit
		if burst > 0 {
			o.reloadBurst = burst
		}
	}
}
