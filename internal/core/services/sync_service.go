package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	portssvc "github.com/grana-app/grana_backend/internal/core/ports/services"
	"github.com/grana-app/grana_backend/internal/platform/broker"
	"github.com/grana-app/grana_backend/internal/platform/cache"
	"github.com/grana-app/grana_backend/internal/utils/resilience"
)

// Consumer group ids. Two separate groups so read-model syncing and cache
// invalidation scale and fail independently.
const (
	syncConsumerGroupID  = "sync-service"
	cacheConsumerGroupID = "cache-manager"
)

// syncPublisher is the slice of the broker producer the service needs.
type syncPublisher interface {
	PublishSync(ctx context.Context, msg broker.SyncMessage) error
	PublishCacheInvalidation(ctx context.Context, topic string, msg broker.CacheInvalidationMessage) error
	PublishDashboardRefresh(ctx context.Context, msg broker.DashboardRefreshMessage) error
	Close() error
}

// hotCache is the slice of the redis cache the service needs.
type hotCache interface {
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Ping(ctx context.Context) error
}

// SyncServiceDeps wires the sync service's collaborators.
type SyncServiceDeps struct {
	Brokers        []string
	Producer       syncPublisher
	ReadModels     portsrepo.ReadModelRepository
	DashboardCache portsrepo.DashboardCacheRepository
	Cache          hotCache
	Logger         *slog.Logger
}

// syncService bridges committed primary-store changes into the document-store
// read model and the cache, via broker topics. Delivery is at least once, so
// every consumer-side write is idempotent.
type syncService struct {
	BaseService
	deps SyncServiceDeps

	publishRetry resilience.RetryConfig
	breaker      *resilience.CircuitBreaker

	syncConsumers  *broker.ConsumerGroup
	cacheConsumers *broker.ConsumerGroup
	started        atomic.Bool
	closed         atomic.Bool
}

// NewSyncService creates the sync service. Start launches the consumers.
func NewSyncService(deps SyncServiceDeps) portssvc.SyncSvcFacade {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &syncService{
		deps: deps,
		publishRetry: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
		},
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
	}
}

var _ portssvc.SyncSvcFacade = (*syncService)(nil)

// Start subscribes both consumer groups. Idempotent.
func (s *syncService) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.syncConsumers = broker.NewConsumerGroup(
		s.deps.Brokers, syncConsumerGroupID, broker.SyncTopics(), s.handleSyncMessage, s.deps.Logger)
	s.cacheConsumers = broker.NewConsumerGroup(
		s.deps.Brokers, cacheConsumerGroupID, broker.CacheTopics(), s.handleCacheMessage, s.deps.Logger)

	s.syncConsumers.Start(ctx)
	s.cacheConsumers.Start(ctx)
}

// SyncEntityToReadModel publishes one sync message for the entity. The
// publish retries on transient failure and trips the breaker when the broker
// stays down, so a dead broker sheds load instead of stalling callers.
func (s *syncService) SyncEntityToReadModel(ctx context.Context, entityType portssvc.SyncEntityType, entityID, userID string, op portssvc.SyncOperation, version int64, data map[string]any) error {
	msg := broker.SyncMessage{
		EntityType: string(entityType),
		EntityID:   entityID,
		UserID:     userID,
		Operation:  string(op),
		Version:    version,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.publishRetry, func(ctx context.Context) error {
			return s.deps.Producer.PublishSync(ctx, msg)
		})
	})
}

// InvalidateCache publishes one cache invalidation message.
func (s *syncService) InvalidateCache(ctx context.Context, cacheType portssvc.CacheType, userID, cacheKey, reason string) error {
	topic := broker.TopicCacheInvalidation
	msg := broker.CacheInvalidationMessage{
		CacheType: string(cacheType),
		UserID:    userID,
		CacheKey:  cacheKey,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.publishRetry, func(ctx context.Context) error {
			return s.deps.Producer.PublishCacheInvalidation(ctx, topic, msg)
		})
	})
}

// RefreshDashboardCache publishes one rebuilt dashboard payload to the
// refresh topic.
func (s *syncService) RefreshDashboardCache(ctx context.Context, userID, cacheKey string, version int64, payload map[string]any) error {
	msg := broker.DashboardRefreshMessage{
		UserID:    userID,
		CacheKey:  cacheKey,
		Version:   version,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.publishRetry, func(ctx context.Context) error {
			return s.deps.Producer.PublishDashboardRefresh(ctx, msg)
		})
	})
}

// OnEntityCreated composes the create sync with the cache invalidations
// creation implies. Both are attempted even if the first fails; the combined
// error surfaces so callers can alert, while redelivery-safe consumers keep
// the stores convergent.
func (s *syncService) OnEntityCreated(ctx context.Context, entity portssvc.SyncEntity) error {
	return s.onEntityChanged(ctx, entity, portssvc.SyncCreate)
}

// OnEntityUpdated composes an update sync with cache invalidations.
func (s *syncService) OnEntityUpdated(ctx context.Context, entity portssvc.SyncEntity) error {
	return s.onEntityChanged(ctx, entity, portssvc.SyncUpdate)
}

// OnEntityDeleted composes a delete sync with cache invalidations.
func (s *syncService) OnEntityDeleted(ctx context.Context, entity portssvc.SyncEntity) error {
	return s.onEntityChanged(ctx, entity, portssvc.SyncDelete)
}

func (s *syncService) onEntityChanged(ctx context.Context, entity portssvc.SyncEntity, op portssvc.SyncOperation) error {
	var errs []error
	if err := s.SyncEntityToReadModel(ctx, entity.EntityType, entity.EntityID, entity.UserID, op, entity.Version, entity.Data); err != nil {
		errs = append(errs, fmt.Errorf("sync %s %s: %w", entity.EntityType, entity.EntityID, err))
	}

	reason := fmt.Sprintf("%s %s", op, entity.EntityType)
	if err := s.InvalidateCache(ctx, portssvc.CacheDashboard, entity.UserID, "", reason); err != nil {
		errs = append(errs, fmt.Errorf("invalidate dashboard for user %s: %w", entity.UserID, err))
	}
	if entity.EntityType == portssvc.SyncEntityTransaction {
		if err := s.InvalidateCache(ctx, portssvc.CacheMonthlySummary, entity.UserID, "", reason); err != nil {
			errs = append(errs, fmt.Errorf("invalidate monthly summary for user %s: %w", entity.UserID, err))
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		s.LogError(ctx, err, "entity change propagation incomplete",
			slog.String("entity_type", string(entity.EntityType)),
			slog.String("entity_id", entity.EntityID),
			slog.String("operation", string(op)),
		)
		return err
	}
	return nil
}

// IsHealthy reports whether the publish path and the cache are usable.
func (s *syncService) IsHealthy(ctx context.Context) bool {
	if s.closed.Load() {
		return false
	}
	if s.breaker.State() == resilience.StateOpen {
		return false
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Ping(ctx); err != nil {
			return false
		}
	}
	return true
}

// Shutdown drains both consumer groups and closes the producer. Every
// acquired resource is released even when an earlier close fails; the
// combined error is returned. Waits at most until ctx is done.
func (s *syncService) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		var errs []error
		if s.syncConsumers != nil {
			if err := s.syncConsumers.Close(); err != nil {
				errs = append(errs, fmt.Errorf("sync consumers: %w", err))
			}
		}
		if s.cacheConsumers != nil {
			if err := s.cacheConsumers.Close(); err != nil {
				errs = append(errs, fmt.Errorf("cache consumers: %w", err))
			}
		}
		if err := s.deps.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer: %w", err))
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: sync service shutdown timed out", apperrors.ErrInternal)
	}
}

// dashboardPattern matches every dashboard cache key of one user.
func dashboardPattern(userID string) string {
	return cache.DashboardKey(userID, "*")
}

// summaryPattern matches every monthly summary cache key of one user.
func summaryPattern(userID string) string {
	return fmt.Sprintf("summary:v1:%s:*", userID)
}
