package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/grana-app/grana_backend/internal/core/domain"
	portsrepo "github.com/grana-app/grana_backend/internal/core/ports/repositories"
	portssvc "github.com/grana-app/grana_backend/internal/core/ports/services"
)

// ledgerService provides the core double-entry ledger operations. Every
// mutation runs as one unit of work: the journal entry, its ledger entries
// and its domain events commit atomically, and events are dispatched only
// after the commit.
type ledgerService struct {
	BaseService
	journalRepo portsrepo.JournalEntryRepositoryFacade
	uowFactory  portsrepo.UnitOfWorkFactory
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(journalRepo portsrepo.JournalEntryRepositoryFacade, uowFactory portsrepo.UnitOfWorkFactory) portssvc.LedgerSvcFacade {
	return &ledgerService{
		journalRepo: journalRepo,
		uowFactory:  uowFactory,
	}
}

var _ portssvc.LedgerSvcFacade = (*ledgerService)(nil)

// PostJournalEntry assembles, validates and posts a balanced journal entry.
func (s *ledgerService) PostJournalEntry(ctx context.Context, req portssvc.CreateJournalEntryRequest) (*domain.JournalEntry, error) {
	logger := s.GetLogger(ctx)

	if req.UserID == "" || req.TransactionID == "" {
		return nil, fmt.Errorf("%w: user and transaction are required", apperrors.ErrValidation)
	}
	if req.Description == "" {
		return nil, fmt.Errorf("%w: journal entry description is required", apperrors.ErrValidation)
	}

	now := time.Now().UTC()

	je, err := domain.NewJournalEntry(req.UserID, req.TransactionID, req.Description, req.Lines, req.Metadata, now)
	if err != nil {
		return nil, err
	}
	if err := je.Post(now); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx)

	if err := s.journalRepo.SaveJournalEntryInTx(ctx, uow.Tx(), je); err != nil {
		logger.Error("Failed to save journal entry",
			slog.String("journal_entry_id", je.JournalEntryID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	uow.AddEvents(je.DrainEvents())
	uow.AddEvent(domain.NewTransactionLedgerProcessed(
		req.TransactionID,
		req.TransactionType,
		req.UserID,
		je.TotalAmount,
		[]string{je.JournalEntryID},
		now,
	))

	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info("Journal entry posted",
		slog.String("journal_entry_id", je.JournalEntryID),
		slog.String("transaction_id", req.TransactionID),
		slog.String("total", je.TotalAmount.String()),
	)
	return je, nil
}

// ReverseJournalEntry reverses a posted journal entry by writing an
// offsetting entry with flipped entry types. The original is never edited
// beyond its status and reversal metadata.
func (s *ledgerService) ReverseJournalEntry(ctx context.Context, journalEntryID, reversedBy, reason string) (*domain.JournalEntry, error) {
	logger := s.GetLogger(ctx)

	if reversedBy == "" {
		return nil, fmt.Errorf("%w: reversing actor is required", apperrors.ErrValidation)
	}

	original, err := s.journalRepo.FindJournalEntryByID(ctx, journalEntryID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reversing, err := original.Reverse(reversedBy, reason, now)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx)

	if err := s.journalRepo.SaveJournalEntryInTx(ctx, uow.Tx(), reversing); err != nil {
		logger.Error("Failed to save reversing journal entry",
			slog.String("original_id", journalEntryID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if err := s.journalRepo.UpdateJournalEntryInTx(ctx, uow.Tx(), original); err != nil {
		logger.Error("Failed to update original journal entry",
			slog.String("original_id", journalEntryID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	uow.AddEvents(original.DrainEvents())
	uow.AddEvent(domain.NewTransactionLedgerProcessed(
		original.TransactionID,
		"reversal",
		original.UserID,
		reversing.TotalAmount,
		[]string{reversing.JournalEntryID},
		now,
	))

	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info("Journal entry reversed",
		slog.String("original_id", journalEntryID),
		slog.String("reversing_id", reversing.JournalEntryID),
		slog.String("reversed_by", reversedBy),
	)
	return reversing, nil
}

// GetJournalEntryByID returns one journal entry with its ledger entries.
func (s *ledgerService) GetJournalEntryByID(ctx context.Context, journalEntryID string) (*domain.JournalEntry, error) {
	return s.journalRepo.FindJournalEntryByID(ctx, journalEntryID)
}

// ListJournalEntries returns a page of a user's journal entries, newest first.
func (s *ledgerService) ListJournalEntries(ctx context.Context, userID string, limit int, nextToken *string) ([]domain.JournalEntry, *string, error) {
	if userID == "" {
		return nil, nil, fmt.Errorf("%w: user is required", apperrors.ErrValidation)
	}
	return s.journalRepo.ListJournalEntriesByUser(ctx, userID, limit, nextToken)
}
