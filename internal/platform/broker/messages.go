package broker

import (
	"fmt"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
)

// SyncMessage is the wire format on the sync.* topics. One message carries
// one entity snapshot (or deletion) to apply to the read model. Delivery is
// at least once; consumers rely on EntityID plus Version for idempotency.
type SyncMessage struct {
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	UserID     string         `json:"userId"`
	Operation  string         `json:"operation"` // create, update or delete
	Version    int64          `json:"version"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Validate rejects messages a consumer could not apply safely.
func (m SyncMessage) Validate() error {
	if m.EntityType == "" || m.EntityID == "" {
		return fmt.Errorf("%w: sync message missing entity identity", apperrors.ErrValidation)
	}
	switch m.Operation {
	case "create", "update", "delete":
	default:
		return fmt.Errorf("%w: unknown sync operation %q", apperrors.ErrValidation, m.Operation)
	}
	if m.Version <= 0 {
		return fmt.Errorf("%w: sync message for %s %s has no version", apperrors.ErrValidation, m.EntityType, m.EntityID)
	}
	return nil
}

// CacheInvalidationMessage is the wire format on the cache invalidation
// topic.
type CacheInvalidationMessage struct {
	CacheType string    `json:"cacheType"` // dashboard or monthly_summary
	UserID    string    `json:"userId"`
	CacheKey  string    `json:"cacheKey,omitempty"` // empty means every key for the user
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate rejects invalidations without a target.
func (m CacheInvalidationMessage) Validate() error {
	if m.CacheType == "" {
		return fmt.Errorf("%w: cache invalidation missing cache type", apperrors.ErrValidation)
	}
	if m.UserID == "" {
		return fmt.Errorf("%w: cache invalidation missing user", apperrors.ErrValidation)
	}
	return nil
}

// DashboardRefreshMessage is the wire format on the dashboard refresh topic.
// It carries a rebuilt dashboard payload; consumers persist it and evict the
// matching hot-cache entry so reads pick up the fresh document.
type DashboardRefreshMessage struct {
	UserID    string         `json:"userId"`
	CacheKey  string         `json:"cacheKey"`
	Version   int64          `json:"version"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Validate rejects refreshes without a target document.
func (m DashboardRefreshMessage) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("%w: dashboard refresh missing user", apperrors.ErrValidation)
	}
	if m.CacheKey == "" {
		return fmt.Errorf("%w: dashboard refresh missing cache key", apperrors.ErrValidation)
	}
	return nil
}
