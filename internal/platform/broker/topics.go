package broker

import (
	"fmt"

	"github.com/grana-app/grana_backend/internal/apperrors"
)

// Topic names. Sync topics carry entity snapshots toward the document store;
// cache topics carry invalidation and refresh commands.
const (
	TopicSyncTransactionMongo  = "sync.transaction.mongo"
	TopicSyncBudgetMongo       = "sync.budget.mongo"
	TopicSyncUserMongo         = "sync.user.mongo"
	TopicSyncAccountMongo      = "sync.account.mongo"
	TopicCacheInvalidation     = "cache.invalidation"
	TopicDashboardCacheRefresh = "dashboard.cache.refresh"
)

// SyncTopics lists every entity sync topic, for consumer subscription.
func SyncTopics() []string {
	return []string{
		TopicSyncTransactionMongo,
		TopicSyncBudgetMongo,
		TopicSyncUserMongo,
		TopicSyncAccountMongo,
	}
}

// CacheTopics lists the cache command topics.
func CacheTopics() []string {
	return []string{
		TopicCacheInvalidation,
		TopicDashboardCacheRefresh,
	}
}

var topicForEntityType = map[string]string{
	"transaction": TopicSyncTransactionMongo,
	"budget":      TopicSyncBudgetMongo,
	"user":        TopicSyncUserMongo,
	"account":     TopicSyncAccountMongo,
}

// TopicForEntityType resolves the sync topic carrying one entity type.
func TopicForEntityType(entityType string) (string, error) {
	topic, ok := topicForEntityType[entityType]
	if !ok {
		return "", fmt.Errorf("%w: no sync topic for entity type %q", apperrors.ErrValidation, entityType)
	}
	return topic, nil
}
