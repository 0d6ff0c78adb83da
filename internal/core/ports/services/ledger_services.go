package services

import (
	"context"

	"github.com/grana-app/grana_backend/internal/core/domain"
)

// CreateJournalEntryRequest carries the input for posting one balanced
// journal entry to the ledger.
type CreateJournalEntryRequest struct {
	UserID          string
	TransactionID   string
	TransactionType string
	Description     string
	Lines           []domain.EntryLine
	Metadata        map[string]any
}

// LedgerReaderSvc defines read operations over the ledger.
type LedgerReaderSvc interface {
	// GetJournalEntryByID returns one journal entry with its ledger entries.
	GetJournalEntryByID(ctx context.Context, journalEntryID string) (*domain.JournalEntry, error)

	// ListJournalEntries returns a page of a user's journal entries, newest
	// first, with a token for the next page.
	ListJournalEntries(ctx context.Context, userID string, limit int, nextToken *string) ([]domain.JournalEntry, *string, error)
}

// LedgerWriterSvc defines the ledger mutations. Each call runs as one unit of
// work: ledger writes and the event-log append commit atomically, and domain
// events are dispatched only after the commit succeeds.
type LedgerWriterSvc interface {
	// PostJournalEntry assembles, validates and posts a balanced journal
	// entry, persisting it together with its JournalEntryPosted and
	// TransactionLedgerProcessed events.
	PostJournalEntry(ctx context.Context, req CreateJournalEntryRequest) (*domain.JournalEntry, error)

	// ReverseJournalEntry reverses a posted journal entry: the original keeps
	// its financial content and gains reversal metadata, and a new offsetting
	// journal entry with flipped entry types is persisted alongside it.
	ReverseJournalEntry(ctx context.Context, journalEntryID, reversedBy, reason string) (*domain.JournalEntry, error)
}

// LedgerSvcFacade combines ledger read and write operations.
type LedgerSvcFacade interface {
	LedgerReaderSvc
	LedgerWriterSvc
}
