package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/grana-app/grana_backend/internal/core/domain"
	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	portssvc "github.com/grana-app/grana_backend/internal/core/ports/services"
	"github.com/grana-app/grana_backend/internal/models"
	"github.com/grana-app/grana_backend/internal/utils/accounting"
	"github.com/shopspring/decimal"
)

// summaryWriteAttempts bounds the read-fold-write loop when concurrent
// projections contend on the same month bucket.
const summaryWriteAttempts = 5

// MonthlySummaryProjector folds posted and reversed journal entries into the
// per-month aggregates of the document store, and pushes per-account balance
// deltas to the sync pipeline. It runs post-commit on the dispatcher; a
// failed projection is recorded there and the aggregate self-corrects on the
// next ledger write for the same month.
type MonthlySummaryProjector struct {
	BaseService
	summaries portsrepo.MonthlySummaryRepository
	sync      portssvc.SyncSvcFacade
}

func NewMonthlySummaryProjector(summaries portsrepo.MonthlySummaryRepository, sync portssvc.SyncSvcFacade) *MonthlySummaryProjector {
	return &MonthlySummaryProjector{summaries: summaries, sync: sync}
}

func (p *MonthlySummaryProjector) Name() string { return "monthly-summary-projector" }

func (p *MonthlySummaryProjector) EventTypes() []domain.EventType {
	return []domain.EventType{domain.EventJournalEntryPosted}
}

func (p *MonthlySummaryProjector) Handle(ctx context.Context, event domain.DomainEvent) error {
	posted, ok := event.(domain.JournalEntryPosted)
	if !ok {
		return fmt.Errorf("%w: unexpected event type %s", apperrors.ErrInternal, event.EventType())
	}

	doc, err := p.applyToSummary(ctx, posted)
	if err != nil {
		return err
	}
	var errs []error
	if err := p.pushSummaryRefresh(ctx, doc); err != nil {
		errs = append(errs, fmt.Errorf("dashboard refresh: %w", err))
	}
	if err := p.pushAccountDeltas(ctx, posted); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// applyToSummary folds the entry totals into the month bucket. A reversing
// journal entry flows through here too (it is posted like any other), so a
// reversal shows up as additional volume in the month it happens, which is
// what an audit view wants.
//
// The fold is a read-modify-write guarded by the document version. Losing
// the version race means the fold was computed from a snapshot that is now
// stale, so the write is re-folded from the fresh document; dropping it
// would lose this entry's totals, since the winner never saw them.
func (p *MonthlySummaryProjector) applyToSummary(ctx context.Context, e domain.JournalEntryPosted) (models.MonthlySummaryDocument, error) {
	at := e.OccurredAt().UTC()
	year, month := at.Year(), int(at.Month())

	entryDebits, entryCredits := sideTotals(e.Entries)

	for attempt := 1; attempt <= summaryWriteAttempts; attempt++ {
		existing, err := p.summaries.FindSummary(ctx, e.UserID, year, month)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return models.MonthlySummaryDocument{}, err
		}

		debits, credits := entryDebits, entryCredits
		doc := models.MonthlySummaryDocument{
			UserID:    e.UserID,
			Year:      year,
			Month:     month,
			Currency:  e.TotalAmount.Currency,
			Version:   1,
			UpdatedAt: time.Now().UTC(),
		}
		if existing != nil {
			prevDebits, perr := decimal.NewFromString(existing.TotalDebits)
			if perr != nil {
				return models.MonthlySummaryDocument{}, fmt.Errorf("%w: corrupt stored debit total for user %s %d-%02d: %v",
					apperrors.ErrInternal, e.UserID, year, month, perr)
			}
			prevCredits, perr := decimal.NewFromString(existing.TotalCredits)
			if perr != nil {
				return models.MonthlySummaryDocument{}, fmt.Errorf("%w: corrupt stored credit total for user %s %d-%02d: %v",
					apperrors.ErrInternal, e.UserID, year, month, perr)
			}
			debits = debits.Add(prevDebits)
			credits = credits.Add(prevCredits)
			doc.EntryCount = existing.EntryCount
			doc.Version = existing.Version + 1
		}
		doc.TotalDebits = debits.StringFixed(2)
		doc.TotalCredits = credits.StringFixed(2)
		doc.EntryCount += int64(len(e.Entries))

		err = p.summaries.UpsertSummary(ctx, doc)
		if errors.Is(err, apperrors.ErrStaleVersion) {
			p.LogDebug(ctx, "monthly summary version race lost, re-folding from fresh document",
				slog.String("user_id", e.UserID),
				slog.Int("year", year),
				slog.Int("month", month),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return models.MonthlySummaryDocument{}, err
		}
		return doc, nil
	}

	return models.MonthlySummaryDocument{}, fmt.Errorf(
		"%w: monthly summary for user %s %d-%02d stayed contended after %d attempts",
		apperrors.ErrConcurrentModification, e.UserID, year, month, summaryWriteAttempts)
}

// pushSummaryRefresh publishes the freshly folded month bucket to the
// dashboard refresh topic so the cache consumers rebuild the cached
// dashboard document instead of waiting for the next read to miss.
func (p *MonthlySummaryProjector) pushSummaryRefresh(ctx context.Context, doc models.MonthlySummaryDocument) error {
	cacheKey := fmt.Sprintf("monthly-summary-%04d-%02d", doc.Year, doc.Month)
	return p.sync.RefreshDashboardCache(ctx, doc.UserID, cacheKey, doc.Version, map[string]any{
		"year":         doc.Year,
		"month":        doc.Month,
		"currency":     doc.Currency,
		"totalDebits":  doc.TotalDebits,
		"totalCredits": doc.TotalCredits,
		"entryCount":   doc.EntryCount,
	})
}

// pushAccountDeltas publishes the per-account signed balance changes of the
// journal entry so account read models track ledger activity.
func (p *MonthlySummaryProjector) pushAccountDeltas(ctx context.Context, e domain.JournalEntryPosted) error {
	changes, err := accounting.NetBalanceChanges(e.Entries)
	if err != nil {
		return err
	}

	version := e.OccurredAt().UnixNano()
	var errs []error
	for accountID, delta := range changes {
		err := p.sync.OnEntityUpdated(ctx, portssvc.SyncEntity{
			EntityType: portssvc.SyncEntityAccount,
			EntityID:   accountID,
			UserID:     e.UserID,
			Version:    version,
			Data: map[string]any{
				"accountId":      accountID,
				"balanceDelta":   delta.StringFixed(2),
				"currency":       e.TotalAmount.Currency,
				"journalEntryId": e.AggregateID(),
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", accountID, err))
		}
	}
	return errors.Join(errs...)
}

func sideTotals(entries []domain.LedgerEntry) (debits, credits decimal.Decimal) {
	for _, entry := range entries {
		if entry.EntryType == domain.Debit {
			debits = debits.Add(entry.Amount.Amount)
		} else {
			credits = credits.Add(entry.Amount.Amount)
		}
	}
	return debits, credits
}
