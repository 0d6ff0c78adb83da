package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JournalEntry is the row model for the journal_entries table.
type JournalEntry struct {
	JournalEntryID string          `json:"journalEntryID"` // Primary Key (UUID)
	UserID         string          `json:"userID"`
	TransactionID  string          `json:"transactionID"`
	Description    string          `json:"description"`
	Status         string          `json:"status"`
	TotalAmount    decimal.Decimal `json:"totalAmount"` // DECIMAL(15,4)
	Currency       string          `json:"currency"`    // CHAR(3)
	PostedAt       *time.Time      `json:"postedAt"`
	ReversedAt     *time.Time      `json:"reversedAt"`
	ReversedBy     *string         `json:"reversedBy"`
	Metadata       []byte          `json:"metadata"` // raw JSONB
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// LedgerEntry is the row model for the ledger_entries table. Rows are
// append-only; journal_entry_id cascades on delete.
type LedgerEntry struct {
	EntryID        string          `json:"entryID"` // Primary Key (UUID)
	TransactionID  string          `json:"transactionID"`
	AccountID      string          `json:"accountID"`
	AccountName    string          `json:"accountName"`
	AccountType    string          `json:"accountType"`
	EntryType      string          `json:"entryType"`
	Amount         decimal.Decimal `json:"amount"` // DECIMAL(15,4)
	Currency       string          `json:"currency"`
	Description    string          `json:"description"`
	ReferenceID    *string         `json:"referenceID"`
	ReferenceType  *string         `json:"referenceType"`
	Metadata       []byte          `json:"metadata"` // raw JSONB
	JournalEntryID string          `json:"journalEntryID"`
	PostedAt       time.Time       `json:"postedAt"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// DomainEventRecord is the row model for the domain_events table (the
// transactional outbox appended within the same transaction as ledger writes).
type DomainEventRecord struct {
	EventID     string    `json:"eventID"` // Primary Key (UUID)
	EventType   string    `json:"eventType"`
	AggregateID string    `json:"aggregateID"`
	Payload     []byte    `json:"payload"` // JSONB, full event document
	OccurredAt  time.Time `json:"occurredAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
