package vecshard

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with vecshard-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithShard adds a shard key field to the logger.
func (l *Logger) WithShard(key string) *Logger {
	return &Logger{
		Logger: l.Logger.With("shard", key),
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, shardKey string, topK, nprobe, resultsFound int, latency time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"shard", shardKey,
			"top_k", topK,
			"nprobe", nprobe,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"shard", shardKey,
			"top_k", topK,
			"nprobe", nprobe,
			"results", resultsFound,
			"latency", latency,
		)
	}
}

// LogReload logs a shard reload.
func (l *Logger) LogReload(ctx context.Context, shardKey string, generation uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reload failed, previous generation stays live",
			"shard", shardKey,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "reload completed",
			"shard", shardKey,
			"generation", generation,
		)
	}
}

// LogDiscovery logs the outcome of artifact discovery.
func (l *Logger) LogDiscovery(ctx context.Context, loaded, skipped int) {
	if skipped > 0 {
		l.WarnContext(ctx, "discovery completed with skipped artifacts",
			"loaded", loaded,
			"skipped", skipped,
		)
	} else {
		l.InfoContext(ctx, "discovery completed",
			"loaded", loaded,
		)
	}
}

// LogShardSkipped logs a per-shard load failure during discovery.
func (l *Logger) LogShardSkipped(ctx context.Context, source string, err error) {
	l.WarnContext(ctx, "skipping unreadable artifact",
		"source", source,
		"error", err,
	)
}
