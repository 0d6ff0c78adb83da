package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/grana-app/grana_backend/internal/core/domain"
	"github.com/grana-app/grana_backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSummaries mirrors the monthly summary version guard in memory.
// afterFind fires once after the next read, outside the lock, to interleave
// a competing write between a projection's read and its write. alwaysStale
// rejects every write as lost.
type fakeSummaries struct {
	mu          sync.Mutex
	docs        map[string]models.MonthlySummaryDocument
	finds       int
	afterFind   func()
	alwaysStale bool
}

func newFakeSummaries() *fakeSummaries {
	return &fakeSummaries{docs: map[string]models.MonthlySummaryDocument{}}
}

func summaryKey(userID string, year, month int) string {
	return userID + "/" + time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func (f *fakeSummaries) UpsertSummary(ctx context.Context, doc models.MonthlySummaryDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alwaysStale {
		return apperrors.ErrStaleVersion
	}
	key := summaryKey(doc.UserID, doc.Year, doc.Month)
	existing, ok := f.docs[key]
	if ok && existing.Version >= doc.Version {
		return apperrors.ErrStaleVersion
	}
	f.docs[key] = doc
	return nil
}

func (f *fakeSummaries) FindSummary(ctx context.Context, userID string, year, month int) (*models.MonthlySummaryDocument, error) {
	f.mu.Lock()
	f.finds++
	doc, ok := f.docs[summaryKey(userID, year, month)]
	hook := f.afterFind
	f.afterFind = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &doc, nil
}

func postedEvent(t *testing.T, amount string, at time.Time) domain.JournalEntryPosted {
	t.Helper()
	total, err := domain.NewMoneyFromString(amount, "BRL")
	require.NoError(t, err)

	lines := []domain.EntryLine{
		{AccountID: "acc-cash", AccountName: "Cash", AccountType: domain.Asset, EntryType: domain.Debit, Amount: total},
		{AccountID: "acc-revenue", AccountName: "Revenue", AccountType: domain.Revenue, EntryType: domain.Credit, Amount: total},
	}
	je, err := domain.NewJournalEntry("user-1", "txn-1", "cash sale", lines, nil, at)
	require.NoError(t, err)
	require.NoError(t, je.Post(at))
	events := je.DrainEvents()
	require.NotEmpty(t, events)
	return events[0].(domain.JournalEntryPosted)
}

func TestMonthlySummaryProjector_FoldsEntriesIntoMonthBucket(t *testing.T) {
	summaries := newFakeSummaries()
	publisher := &fakePublisher{}
	syncSvc := newTestSyncService(publisher, newFakeReadModels(), &fakeHotCache{})
	projector := NewMonthlySummaryProjector(summaries, syncSvc)

	at := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, projector.Handle(context.Background(), postedEvent(t, "100.50", at)))

	doc, err := summaries.FindSummary(context.Background(), "user-1", 2026, 8)
	require.NoError(t, err)
	assert.Equal(t, "100.50", doc.TotalDebits)
	assert.Equal(t, "100.50", doc.TotalCredits)
	assert.Equal(t, int64(2), doc.EntryCount)
	assert.Equal(t, int64(1), doc.Version)

	require.NoError(t, projector.Handle(context.Background(), postedEvent(t, "100.50", at.Add(time.Hour))))

	doc, err = summaries.FindSummary(context.Background(), "user-1", 2026, 8)
	require.NoError(t, err)
	assert.Equal(t, "201.00", doc.TotalDebits)
	assert.Equal(t, "201.00", doc.TotalCredits)
	assert.Equal(t, int64(4), doc.EntryCount)
	assert.Equal(t, int64(2), doc.Version)
}

func TestMonthlySummaryProjector_SeparatesMonths(t *testing.T) {
	summaries := newFakeSummaries()
	syncSvc := newTestSyncService(&fakePublisher{}, newFakeReadModels(), &fakeHotCache{})
	projector := NewMonthlySummaryProjector(summaries, syncSvc)

	require.NoError(t, projector.Handle(context.Background(),
		postedEvent(t, "10.00", time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC))))
	require.NoError(t, projector.Handle(context.Background(),
		postedEvent(t, "20.00", time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC))))

	july, err := summaries.FindSummary(context.Background(), "user-1", 2026, 7)
	require.NoError(t, err)
	assert.Equal(t, "10.00", july.TotalDebits)

	august, err := summaries.FindSummary(context.Background(), "user-1", 2026, 8)
	require.NoError(t, err)
	assert.Equal(t, "20.00", august.TotalDebits)
}

func TestMonthlySummaryProjector_PublishesAccountDeltas(t *testing.T) {
	publisher := &fakePublisher{}
	syncSvc := newTestSyncService(publisher, newFakeReadModels(), &fakeHotCache{})
	projector := NewMonthlySummaryProjector(newFakeSummaries(), syncSvc)

	at := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, projector.Handle(context.Background(), postedEvent(t, "100.50", at)))

	// One account snapshot per touched account.
	require.Len(t, publisher.syncMsgs, 2)
	byAccount := map[string]string{}
	for _, msg := range publisher.syncMsgs {
		assert.Equal(t, "account", msg.EntityType)
		byAccount[msg.EntityID] = msg.Data["balanceDelta"].(string)
	}
	// Debit to an asset raises it; credit to revenue raises it too.
	assert.Equal(t, "100.50", byAccount["acc-cash"])
	assert.Equal(t, "100.50", byAccount["acc-revenue"])
}

func TestMonthlySummaryProjector_PublishesDashboardRefresh(t *testing.T) {
	publisher := &fakePublisher{}
	syncSvc := newTestSyncService(publisher, newFakeReadModels(), &fakeHotCache{})
	projector := NewMonthlySummaryProjector(newFakeSummaries(), syncSvc)

	at := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, projector.Handle(context.Background(), postedEvent(t, "100.50", at)))

	require.Len(t, publisher.refreshMsgs, 1)
	msg := publisher.refreshMsgs[0]
	assert.Equal(t, "user-1", msg.UserID)
	assert.Equal(t, "monthly-summary-2026-08", msg.CacheKey)
	assert.Equal(t, int64(1), msg.Version)
	assert.Equal(t, "100.50", msg.Payload["totalDebits"])
}

func TestMonthlySummaryProjector_RefoldsAfterLosingVersionRace(t *testing.T) {
	summaries := newFakeSummaries()
	syncSvc := newTestSyncService(&fakePublisher{}, newFakeReadModels(), &fakeHotCache{})
	projector := NewMonthlySummaryProjector(summaries, syncSvc)

	at := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, projector.Handle(context.Background(), postedEvent(t, "100.00", at)))

	// Between this projection's read of v1 and its write, a concurrent
	// projection that also read v1 lands its 30.00 fold first. The totals it
	// wrote do not include this projection's entry, so dropping the lost
	// write would lose 70.00 from the month for good.
	summaries.afterFind = func() {
		require.NoError(t, summaries.UpsertSummary(context.Background(), models.MonthlySummaryDocument{
			UserID:       "user-1",
			Year:         2026,
			Month:        8,
			Currency:     "BRL",
			TotalDebits:  "130.00",
			TotalCredits: "130.00",
			EntryCount:   4,
			Version:      2,
			UpdatedAt:    at,
		}))
	}
	require.NoError(t, projector.Handle(context.Background(), postedEvent(t, "70.00", at.Add(time.Minute))))

	doc, err := summaries.FindSummary(context.Background(), "user-1", 2026, 8)
	require.NoError(t, err)
	assert.Equal(t, "200.00", doc.TotalDebits)
	assert.Equal(t, "200.00", doc.TotalCredits)
	assert.Equal(t, int64(6), doc.EntryCount)
	assert.Equal(t, int64(3), doc.Version)
}

func TestMonthlySummaryProjector_SurfacesSustainedContention(t *testing.T) {
	summaries := newFakeSummaries()
	summaries.alwaysStale = true
	syncSvc := newTestSyncService(&fakePublisher{}, newFakeReadModels(), &fakeHotCache{})
	projector := NewMonthlySummaryProjector(summaries, syncSvc)

	at := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	err := projector.Handle(context.Background(), postedEvent(t, "10.00", at))

	// The dispatcher records handler failures; surfacing the error beats
	// silently dropping the fold.
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)
	assert.Equal(t, summaryWriteAttempts, summaries.finds)
}
