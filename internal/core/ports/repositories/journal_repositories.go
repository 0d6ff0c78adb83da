package repositories

import (
	"context"

	"github.com/grana-app/grana_backend/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// JournalEntryReader defines read operations for ledger data.
type JournalEntryReader interface {
	// FindJournalEntryByID retrieves a journal entry with its ledger entries
	// in insertion order.
	FindJournalEntryByID(ctx context.Context, journalEntryID string) (*domain.JournalEntry, error)

	// FindJournalEntriesByTransactionID retrieves every journal entry backing
	// one user-facing transaction.
	FindJournalEntriesByTransactionID(ctx context.Context, transactionID string) ([]domain.JournalEntry, error)

	// ListJournalEntriesByUser retrieves a page of journal entries for a user,
	// newest first, using token-based pagination. It returns the entries and
	// a token for the next page.
	ListJournalEntriesByUser(ctx context.Context, userID string, limit int, nextToken *string) ([]domain.JournalEntry, *string, error)
}

// JournalEntryWriter defines write operations for ledger data. Writes run
// inside the caller's transaction so the unit of work can make them atomic
// with the event log append.
type JournalEntryWriter interface {
	// SaveJournalEntryInTx inserts a journal entry and its ledger entries.
	SaveJournalEntryInTx(ctx context.Context, tx pgx.Tx, je *domain.JournalEntry) error

	// UpdateJournalEntryInTx updates a journal entry's mutable header fields
	// (status, reversal metadata). The update compares the entry's Version and
	// fails with apperrors.ErrConcurrentModification when another writer got
	// there first. Ledger entries are append-only and are never updated.
	UpdateJournalEntryInTx(ctx context.Context, tx pgx.Tx, je *domain.JournalEntry) error
}

// JournalEntryRepositoryFacade combines ledger read and write operations.
type JournalEntryRepositoryFacade interface {
	JournalEntryReader
	JournalEntryWriter
}
