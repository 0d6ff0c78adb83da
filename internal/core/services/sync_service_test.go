package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
	portssvc "github.com/grana-app/grana_backend/internal/core/ports/services"
	"github.com/grana-app/grana_backend/internal/models"
	"github.com/grana-app/grana_backend/internal/platform/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReadModels mirrors the document-store version guard in memory.
type fakeReadModels struct {
	mu    sync.Mutex
	docs  map[string]models.EntityDocument
	calls int
}

func newFakeReadModels() *fakeReadModels {
	return &fakeReadModels{docs: map[string]models.EntityDocument{}}
}

func (f *fakeReadModels) key(entityType, entityID string) string {
	return entityType + "/" + entityID
}

func (f *fakeReadModels) UpsertEntity(ctx context.Context, doc models.EntityDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	existing, ok := f.docs[f.key(doc.EntityType, doc.EntityID)]
	if ok && existing.Version >= doc.Version {
		return apperrors.ErrStaleVersion
	}
	f.docs[f.key(doc.EntityType, doc.EntityID)] = doc
	return nil
}

func (f *fakeReadModels) DeleteEntity(ctx context.Context, entityType, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, f.key(entityType, entityID))
	return nil
}

func (f *fakeReadModels) FindEntity(ctx context.Context, entityType, entityID string) (*models.EntityDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[f.key(entityType, entityID)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &doc, nil
}

// fakeHotCache records evictions.
type fakeHotCache struct {
	mu       sync.Mutex
	deleted  []string
	patterns []string
	pingErr  error
}

func (f *fakeHotCache) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, keys...)
	return nil
}

func (f *fakeHotCache) DeleteByPattern(ctx context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns = append(f.patterns, pattern)
	return nil
}

func (f *fakeHotCache) Ping(ctx context.Context) error { return f.pingErr }

// fakeDashboardCache stores dashboard documents keyed by (userID, cacheKey).
type fakeDashboardCache struct {
	mu   sync.Mutex
	docs map[string]models.DashboardCacheDocument
}

func newFakeDashboardCache() *fakeDashboardCache {
	return &fakeDashboardCache{docs: map[string]models.DashboardCacheDocument{}}
}

func (f *fakeDashboardCache) UpsertCache(ctx context.Context, doc models.DashboardCacheDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.UserID+"/"+doc.CacheKey] = doc
	return nil
}

func (f *fakeDashboardCache) DeleteCache(ctx context.Context, userID, cacheKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, userID+"/"+cacheKey)
	return nil
}

func (f *fakeDashboardCache) FindCache(ctx context.Context, userID, cacheKey string) (*models.DashboardCacheDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[userID+"/"+cacheKey]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &doc, nil
}

// fakePublisher counts publishes and can fail a set number of times.
type fakePublisher struct {
	mu          sync.Mutex
	syncMsgs    []broker.SyncMessage
	cacheMsgs   []broker.CacheInvalidationMessage
	refreshMsgs []broker.DashboardRefreshMessage
	failures    int
	closed      bool
}

func (f *fakePublisher) PublishSync(ctx context.Context, msg broker.SyncMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.syncMsgs = append(f.syncMsgs, msg)
	return nil
}

func (f *fakePublisher) PublishCacheInvalidation(ctx context.Context, topic string, msg broker.CacheInvalidationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.cacheMsgs = append(f.cacheMsgs, msg)
	return nil
}

func (f *fakePublisher) PublishDashboardRefresh(ctx context.Context, msg broker.DashboardRefreshMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.refreshMsgs = append(f.refreshMsgs, msg)
	return nil
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestSyncService(publisher *fakePublisher, readModels *fakeReadModels, hot *fakeHotCache) *syncService {
	svc := NewSyncService(SyncServiceDeps{
		Producer:   publisher,
		ReadModels: readModels,
		Cache:      hot,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).(*syncService)
	// Tests exercise the apply paths directly, without a broker.
	svc.publishRetry.BaseDelay = time.Millisecond
	return svc
}

func syncMsg(op string, version int64) broker.SyncMessage {
	return broker.SyncMessage{
		EntityType: "transaction",
		EntityID:   "txn-1",
		UserID:     "user-1",
		Operation:  op,
		Version:    version,
		Data:       map[string]any{"amount": "100.50", "currency": "BRL"},
		Timestamp:  time.Now().UTC(),
	}
}

func TestApplySyncMessage_RedeliveryIsIdempotent(t *testing.T) {
	readModels := newFakeReadModels()
	svc := newTestSyncService(&fakePublisher{}, readModels, &fakeHotCache{})

	msg := syncMsg("create", 1)
	require.NoError(t, svc.applySyncMessage(context.Background(), msg))
	require.NoError(t, svc.applySyncMessage(context.Background(), msg))

	doc, err := readModels.FindEntity(context.Background(), "transaction", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, 2, readModels.calls)
}

func TestApplySyncMessage_OutOfOrderVersionsConverge(t *testing.T) {
	readModels := newFakeReadModels()
	svc := newTestSyncService(&fakePublisher{}, readModels, &fakeHotCache{})

	newer := syncMsg("update", 2)
	newer.Data["amount"] = "200.00"
	older := syncMsg("update", 1)

	require.NoError(t, svc.applySyncMessage(context.Background(), newer))
	require.NoError(t, svc.applySyncMessage(context.Background(), older))

	doc, err := readModels.FindEntity(context.Background(), "transaction", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
	assert.Equal(t, "200.00", doc.Data["amount"])
}

func TestApplySyncMessage_DeleteConvergesOnRedelivery(t *testing.T) {
	readModels := newFakeReadModels()
	svc := newTestSyncService(&fakePublisher{}, readModels, &fakeHotCache{})

	require.NoError(t, svc.applySyncMessage(context.Background(), syncMsg("create", 1)))
	require.NoError(t, svc.applySyncMessage(context.Background(), syncMsg("delete", 2)))
	require.NoError(t, svc.applySyncMessage(context.Background(), syncMsg("delete", 2)))

	_, err := readModels.FindEntity(context.Background(), "transaction", "txn-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestApplySyncMessage_EvictsUserDashboardCache(t *testing.T) {
	hot := &fakeHotCache{}
	svc := newTestSyncService(&fakePublisher{}, newFakeReadModels(), hot)

	require.NoError(t, svc.applySyncMessage(context.Background(), syncMsg("create", 1)))

	require.Len(t, hot.patterns, 1)
	assert.Equal(t, "dashboard:v1:user-1:*", hot.patterns[0])
}

func TestHandleSyncMessage_DropsPoisonMessages(t *testing.T) {
	readModels := newFakeReadModels()
	svc := newTestSyncService(&fakePublisher{}, readModels, &fakeHotCache{})

	// Undecodable payloads and invalid messages commit without side effects,
	// so a poison message cannot stall the partition.
	require.NoError(t, svc.handleSyncMessage(context.Background(), broker.TopicSyncTransactionMongo, []byte("k"), []byte("{not json")))
	require.NoError(t, svc.handleSyncMessage(context.Background(), broker.TopicSyncTransactionMongo, []byte("k"), []byte(`{"entityType":""}`)))
	assert.Empty(t, readModels.docs)
}

func TestApplyCacheInvalidation_TargetedAndWildcard(t *testing.T) {
	hot := &fakeHotCache{}
	svc := newTestSyncService(&fakePublisher{}, newFakeReadModels(), hot)

	require.NoError(t, svc.applyCacheInvalidation(context.Background(), broker.CacheInvalidationMessage{
		CacheType: "dashboard", UserID: "user-1", CacheKey: "main",
	}))
	require.NoError(t, svc.applyCacheInvalidation(context.Background(), broker.CacheInvalidationMessage{
		CacheType: "dashboard", UserID: "user-1",
	}))
	require.NoError(t, svc.applyCacheInvalidation(context.Background(), broker.CacheInvalidationMessage{
		CacheType: "monthly_summary", UserID: "user-1",
	}))

	assert.Equal(t, []string{"dashboard:v1:user-1:main"}, hot.deleted)
	assert.Equal(t, []string{"dashboard:v1:user-1:*", "summary:v1:user-1:*"}, hot.patterns)
}

func refreshMsg() broker.DashboardRefreshMessage {
	return broker.DashboardRefreshMessage{
		UserID:   "user-1",
		CacheKey: "monthly-summary-2026-08",
		Version:  3,
		Payload: map[string]any{
			"totalDebits":  "200.00",
			"totalCredits": "200.00",
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestApplyDashboardRefresh_UpsertsDocumentAndEvictsHotKey(t *testing.T) {
	hot := &fakeHotCache{}
	dash := newFakeDashboardCache()
	svc := newTestSyncService(&fakePublisher{}, newFakeReadModels(), hot)
	svc.deps.DashboardCache = dash

	msg := refreshMsg()
	require.NoError(t, svc.applyDashboardRefresh(context.Background(), msg))

	doc, err := dash.FindCache(context.Background(), "user-1", "monthly-summary-2026-08")
	require.NoError(t, err)
	assert.Equal(t, "200.00", doc.Payload["totalDebits"])
	assert.Equal(t, int64(3), doc.Version)
	assert.NotEmpty(t, doc.Hash)
	assert.True(t, doc.ExpiresAt.After(time.Now().UTC()))

	assert.Equal(t, []string{"dashboard:v1:user-1:monthly-summary-2026-08"}, hot.deleted)

	// Redelivery rewrites the same payload.
	require.NoError(t, svc.applyDashboardRefresh(context.Background(), msg))
	again, err := dash.FindCache(context.Background(), "user-1", "monthly-summary-2026-08")
	require.NoError(t, err)
	assert.Equal(t, doc.Payload, again.Payload)
}

func TestHandleCacheMessage_RoutesRefreshTopic(t *testing.T) {
	dash := newFakeDashboardCache()
	svc := newTestSyncService(&fakePublisher{}, newFakeReadModels(), &fakeHotCache{})
	svc.deps.DashboardCache = dash

	value, err := json.Marshal(refreshMsg())
	require.NoError(t, err)
	require.NoError(t, svc.handleCacheMessage(context.Background(), broker.TopicDashboardCacheRefresh, []byte("user-1"), value))

	_, err = dash.FindCache(context.Background(), "user-1", "monthly-summary-2026-08")
	assert.NoError(t, err)

	// Poison refresh messages commit without side effects.
	require.NoError(t, svc.handleCacheMessage(context.Background(), broker.TopicDashboardCacheRefresh, []byte("k"), []byte("{not json")))
	require.NoError(t, svc.handleCacheMessage(context.Background(), broker.TopicDashboardCacheRefresh, []byte("k"), []byte(`{"userId":"user-1"}`)))
	assert.Len(t, dash.docs, 1)
}

func TestRefreshDashboardCache_PublishesAndValidates(t *testing.T) {
	publisher := &fakePublisher{}
	svc := newTestSyncService(publisher, newFakeReadModels(), &fakeHotCache{})

	err := svc.RefreshDashboardCache(context.Background(), "user-1", "monthly-summary-2026-08", 3,
		map[string]any{"totalDebits": "200.00"})
	require.NoError(t, err)
	require.Len(t, publisher.refreshMsgs, 1)
	assert.Equal(t, "monthly-summary-2026-08", publisher.refreshMsgs[0].CacheKey)

	err = svc.RefreshDashboardCache(context.Background(), "user-1", "", 3, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSyncEntityToReadModel_RetriesTransientPublishFailures(t *testing.T) {
	publisher := &fakePublisher{failures: 2}
	svc := newTestSyncService(publisher, newFakeReadModels(), &fakeHotCache{})

	err := svc.SyncEntityToReadModel(context.Background(),
		portssvc.SyncEntityTransaction, "txn-1", "user-1", portssvc.SyncCreate, 1, nil)

	require.NoError(t, err)
	assert.Len(t, publisher.syncMsgs, 1)
}

func TestSyncEntityToReadModel_BreakerOpensWhenBrokerStaysDown(t *testing.T) {
	publisher := &fakePublisher{failures: 1 << 30}
	svc := newTestSyncService(publisher, newFakeReadModels(), &fakeHotCache{})

	for i := 0; i < 5; i++ {
		err := svc.SyncEntityToReadModel(context.Background(),
			portssvc.SyncEntityTransaction, "txn-1", "user-1", portssvc.SyncCreate, 1, nil)
		require.Error(t, err)
	}

	err := svc.SyncEntityToReadModel(context.Background(),
		portssvc.SyncEntityTransaction, "txn-1", "user-1", portssvc.SyncCreate, 1, nil)
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.False(t, svc.IsHealthy(context.Background()))
}

func TestOnEntityCreated_PublishesSyncAndInvalidations(t *testing.T) {
	publisher := &fakePublisher{}
	svc := newTestSyncService(publisher, newFakeReadModels(), &fakeHotCache{})

	err := svc.OnEntityCreated(context.Background(), portssvc.SyncEntity{
		EntityType: portssvc.SyncEntityTransaction,
		EntityID:   "txn-1",
		UserID:     "user-1",
		Version:    1,
		Data:       map[string]any{"amount": "10.00"},
	})
	require.NoError(t, err)

	require.Len(t, publisher.syncMsgs, 1)
	assert.Equal(t, "create", publisher.syncMsgs[0].Operation)

	// Dashboard invalidation always; monthly summary because the entity is a
	// transaction.
	require.Len(t, publisher.cacheMsgs, 2)
	assert.Equal(t, "dashboard", publisher.cacheMsgs[0].CacheType)
	assert.Equal(t, "monthly_summary", publisher.cacheMsgs[1].CacheType)
}

func TestShutdown_ClosesProducerAndReportsUnhealthy(t *testing.T) {
	publisher := &fakePublisher{}
	svc := newTestSyncService(publisher, newFakeReadModels(), &fakeHotCache{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	assert.True(t, publisher.closed)
	assert.False(t, svc.IsHealthy(context.Background()))

	// A second shutdown is a no-op.
	require.NoError(t, svc.Shutdown(ctx))
}
