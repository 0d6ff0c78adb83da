package services

import (
	"context"
	"fmt"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/grana-app/grana_backend/internal/core/domain"
	portssvc "github.com/grana-app/grana_backend/internal/core/ports/services"
)

// LedgerSyncHandler subscribes to ledger domain events and forwards the
// resulting entity snapshots to the sync service. It runs post-commit on the
// in-process dispatcher, so a publish failure here never unwinds the ledger
// write; the dispatcher records the failure and the read model catches up on
// the next change.
type LedgerSyncHandler struct {
	sync portssvc.SyncSvcFacade
}

func NewLedgerSyncHandler(sync portssvc.SyncSvcFacade) *LedgerSyncHandler {
	return &LedgerSyncHandler{sync: sync}
}

func (h *LedgerSyncHandler) Name() string { return "ledger-sync" }

func (h *LedgerSyncHandler) EventTypes() []domain.EventType {
	return []domain.EventType{
		domain.EventTransactionLedgerProcessed,
		domain.EventJournalEntryReversed,
		domain.EventBudgetExceeded,
		domain.EventUserRegistered,
	}
}

func (h *LedgerSyncHandler) Handle(ctx context.Context, event domain.DomainEvent) error {
	switch e := event.(type) {
	case domain.TransactionLedgerProcessed:
		return h.sync.OnEntityUpdated(ctx, portssvc.SyncEntity{
			EntityType: portssvc.SyncEntityTransaction,
			EntityID:   e.TransactionID,
			UserID:     e.UserID,
			Version:    e.ProcessedAt.UnixNano(),
			Data: map[string]any{
				"transactionId":   e.TransactionID,
				"transactionType": e.TransactionType,
				"amount":          e.Amount.Amount.String(),
				"currency":        e.Amount.Currency,
				"journalEntryIds": e.JournalEntryIDs,
				"processedAt":     e.ProcessedAt,
			},
		})

	case domain.JournalEntryReversed:
		// The transaction snapshot was already refreshed by the paired
		// TransactionLedgerProcessed event; here only caches need flushing.
		return h.sync.InvalidateCache(ctx, portssvc.CacheDashboard, e.UserID, "", "journal entry reversed")

	case domain.BudgetExceeded:
		return h.sync.OnEntityUpdated(ctx, portssvc.SyncEntity{
			EntityType: portssvc.SyncEntityBudget,
			EntityID:   e.BudgetID,
			UserID:     e.UserID,
			Version:    e.OccurredAt().UnixNano(),
			Data: map[string]any{
				"budgetId":   e.BudgetID,
				"categoryId": e.CategoryID,
				"limit":      e.Limit.Amount.String(),
				"spent":      e.Spent.Amount.String(),
				"currency":   e.Limit.Currency,
				"period":     e.Period,
				"exceeded":   true,
			},
		})

	case domain.UserRegistered:
		return h.sync.OnEntityCreated(ctx, portssvc.SyncEntity{
			EntityType: portssvc.SyncEntityUser,
			EntityID:   e.UserID,
			UserID:     e.UserID,
			Version:    e.RegisteredAt.UnixNano(),
			Data: map[string]any{
				"userId":       e.UserID,
				"email":        e.Email,
				"name":         e.Name,
				"registeredAt": e.RegisteredAt,
			},
		})

	default:
		return fmt.Errorf("%w: unexpected event type %s", apperrors.ErrInternal, event.EventType())
	}
}
