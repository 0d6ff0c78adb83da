package repositories

import (
	"context"

	"github.com/grana-app/grana_backend/internal/models"
)

// ReadModelRepository persists denormalized entity documents in the document
// store. Implementations must be idempotent under broker redelivery: upserts
// are keyed by entity id and guarded by the document version, so applying an
// older version than the one stored is a no-op rather than a lost update.
type ReadModelRepository interface {
	// UpsertEntity inserts or replaces the document unless a newer version is
	// already stored. Returns apperrors.ErrStaleVersion on an out-of-date
	// write; callers treat that as success.
	UpsertEntity(ctx context.Context, doc models.EntityDocument) error

	// DeleteEntity removes the document. Deleting an absent document is a
	// no-op (delete redelivery must converge).
	DeleteEntity(ctx context.Context, entityType, entityID string) error

	// FindEntity retrieves one document, or apperrors.ErrNotFound.
	FindEntity(ctx context.Context, entityType, entityID string) (*models.EntityDocument, error)
}

// DashboardCacheRepository stores cached dashboard payloads keyed by
// (userID, cacheKey), evicted by TTL on ExpiresAt.
type DashboardCacheRepository interface {
	UpsertCache(ctx context.Context, doc models.DashboardCacheDocument) error
	DeleteCache(ctx context.Context, userID, cacheKey string) error
	FindCache(ctx context.Context, userID, cacheKey string) (*models.DashboardCacheDocument, error)
}

// MonthlySummaryRepository stores per-month ledger aggregates keyed by
// (userID, year, month).
type MonthlySummaryRepository interface {
	UpsertSummary(ctx context.Context, doc models.MonthlySummaryDocument) error
	FindSummary(ctx context.Context, userID string, year, month int) (*models.MonthlySummaryDocument, error)
}
