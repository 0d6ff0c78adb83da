package resilience

import (
	"context"
	"log/slog"
	"time"
)

// BlobCache is the slice of the cache the aside wrapper needs.
type BlobCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// CacheAsideConfig controls CacheAside.
type CacheAsideConfig struct {
	TTL    time.Duration
	Logger *slog.Logger
}

// CacheAside returns the cached blob for key, or loads it and fills the
// cache. Cache failures degrade to the loader: a broken cache slows reads
// down but never fails them.
func CacheAside(ctx context.Context, cfg CacheAsideConfig, cache BlobCache, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cached, err := cache.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed, falling back to loader",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	} else if cached != nil {
		return cached, nil
	}

	data, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if err := cache.Set(ctx, key, data, cfg.TTL); err != nil {
		logger.Warn("cache fill failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return data, nil
}
