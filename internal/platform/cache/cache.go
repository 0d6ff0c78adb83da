package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Manager wraps the hot-path cache in front of the document store. Entries
// are JSON blobs keyed per user; invalidation deletes keys rather than
// rewriting them.
type Manager struct {
	client *redis.Client
	logger *slog.Logger
}

func NewManager(addr, password string, db int, logger *slog.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	logger.Info("redis connected", slog.String("addr", addr))

	return &Manager{client: client, logger: logger}, nil
}

// DashboardKey formats the cache key of one dashboard payload.
func DashboardKey(userID, cacheKey string) string {
	return fmt.Sprintf("dashboard:v1:%s:%s", userID, cacheKey)
}

// SummaryKey formats the cache key of one monthly summary.
func SummaryKey(userID string, year, month int) string {
	return fmt.Sprintf("summary:v1:%s:%04d-%02d", userID, year, month)
}

// Get returns the cached blob, or nil on a miss. A miss is not an error.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := m.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return data, nil
}

// Set stores a blob with TTL.
func (m *Manager) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return m.client.Set(ctx, key, data, ttl).Err()
}

// Delete drops one key. Deleting an absent key is a no-op, which is what
// makes redelivered invalidations safe.
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return m.client.Del(ctx, keys...).Err()
}

// DeleteByPattern drops every key matching the pattern, used when an
// invalidation targets all of a user's entries. SCAN keeps the server
// responsive on large keyspaces.
func (m *Manager) DeleteByPattern(ctx context.Context, pattern string) error {
	iter := m.client.Scan(ctx, 0, pattern, 100).Iterator()
	keys := make([]string, 0, 100)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 100 {
			if err := m.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	if len(keys) > 0 {
		return m.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Ping reports connectivity, used by health checks.
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (m *Manager) Close() error {
	return m.client.Close()
}
