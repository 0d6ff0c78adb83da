package mongodb

import (
	"context"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	"github.com/grana-app/grana_backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const dashboardCacheCollection = "dashboard_cache"

type MongoDashboardCacheRepository struct {
	db *mongo.Database
}

func NewMongoDashboardCacheRepository(db *mongo.Database) portsrepo.DashboardCacheRepository {
	return &MongoDashboardCacheRepository{db: db}
}

var _ portsrepo.DashboardCacheRepository = (*MongoDashboardCacheRepository)(nil)

// UpsertCache stores the payload keyed by (userID, cacheKey). Cache writes
// are last-writer-wins; staleness is handled by invalidation, not versioning.
func (r *MongoDashboardCacheRepository) UpsertCache(ctx context.Context, doc models.DashboardCacheDocument) error {
	filter := bson.M{"userId": doc.UserID, "cacheKey": doc.CacheKey}
	_, err := r.db.Collection(dashboardCacheCollection).
		ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return apperrors.NewAppError(500, "failed to upsert dashboard cache "+doc.CacheKey+" for user "+doc.UserID, err)
	}
	return nil
}

// DeleteCache drops one cached payload. Absent entries are a no-op.
func (r *MongoDashboardCacheRepository) DeleteCache(ctx context.Context, userID, cacheKey string) error {
	filter := bson.M{"userId": userID, "cacheKey": cacheKey}
	if _, err := r.db.Collection(dashboardCacheCollection).DeleteOne(ctx, filter); err != nil {
		return apperrors.NewAppError(500, "failed to delete dashboard cache "+cacheKey+" for user "+userID, err)
	}
	return nil
}

// FindCache retrieves one cached payload. An expired entry is reported as
// not found even if the TTL monitor has not removed it yet.
func (r *MongoDashboardCacheRepository) FindCache(ctx context.Context, userID, cacheKey string) (*models.DashboardCacheDocument, error) {
	filter := bson.M{"userId": userID, "cacheKey": cacheKey}
	var doc models.DashboardCacheDocument
	if err := r.db.Collection(dashboardCacheCollection).FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find dashboard cache "+cacheKey+" for user "+userID, err)
	}
	if !doc.ExpiresAt.IsZero() && doc.ExpiresAt.Before(time.Now().UTC()) {
		return nil, apperrors.ErrNotFound
	}
	return &doc, nil
}
