package services

import "context"

// SyncOperation is the kind of change a sync message propagates.
type SyncOperation string

const (
	SyncCreate SyncOperation = "create"
	SyncUpdate SyncOperation = "update"
	SyncDelete SyncOperation = "delete"
)

// SyncEntityType names the entity families mirrored into the read model, one
// broker topic each.
type SyncEntityType string

const (
	SyncEntityTransaction SyncEntityType = "transaction"
	SyncEntityBudget      SyncEntityType = "budget"
	SyncEntityUser        SyncEntityType = "user"
	SyncEntityAccount     SyncEntityType = "account"
)

// CacheType names the cache families subject to invalidation.
type CacheType string

const (
	CacheDashboard      CacheType = "dashboard"
	CacheMonthlySummary CacheType = "monthly_summary"
)

// SyncEntity describes one changed entity for the lifecycle hooks.
type SyncEntity struct {
	EntityType SyncEntityType
	EntityID   string
	UserID     string
	Version    int64
	Data       map[string]any
}

// SyncSvcFacade bridges committed primary-store changes to the document-store
// read model and to cache invalidation through the broker. Publishing never
// blocks the primary write path beyond the publish itself; consumers apply
// changes asynchronously and idempotently.
type SyncSvcFacade interface {
	// SyncEntityToReadModel publishes one sync message for the entity.
	SyncEntityToReadModel(ctx context.Context, entityType SyncEntityType, entityID, userID string, op SyncOperation, version int64, data map[string]any) error

	// InvalidateCache publishes one cache invalidation message. cacheKey and
	// reason may be empty (invalidate the whole family for the user).
	InvalidateCache(ctx context.Context, cacheType CacheType, userID, cacheKey, reason string) error

	// RefreshDashboardCache publishes a rebuilt dashboard payload. Consumers
	// persist it and evict the matching hot-cache entry; invalidation only
	// evicts.
	RefreshDashboardCache(ctx context.Context, userID, cacheKey string, version int64, payload map[string]any) error

	// OnEntityCreated composes a create sync with the cache invalidations
	// that creation implies. Both are attempted; either failure surfaces.
	OnEntityCreated(ctx context.Context, entity SyncEntity) error
	// OnEntityUpdated composes an update sync with cache invalidations.
	OnEntityUpdated(ctx context.Context, entity SyncEntity) error
	// OnEntityDeleted composes a delete sync with cache invalidations.
	OnEntityDeleted(ctx context.Context, entity SyncEntity) error

	// Start subscribes the consumer groups and begins applying messages.
	// Idempotent; returns immediately.
	Start(ctx context.Context)

	// IsHealthy reports producer connectivity.
	IsHealthy(ctx context.Context) bool

	// Shutdown drains both consumer groups and closes the producer. Each
	// acquired resource is released on every exit path.
	Shutdown(ctx context.Context) error
}
