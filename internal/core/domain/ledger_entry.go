package domain

import "time"

// AccountType defines the fundamental accounting type of an account.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Revenue   AccountType = "REVENUE"
	Expense   AccountType = "EXPENSE"
)

// EntryType indicates whether a ledger line is a Debit or a Credit.
type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// Opposite returns the flipped entry type, used when building reversals.
func (t EntryType) Opposite() EntryType {
	if t == Debit {
		return Credit
	}
	return Debit
}

// ReferenceType classifies what a ledger entry's ReferenceID points at.
type ReferenceType string

const (
	RefTransaction ReferenceType = "TRANSACTION"
	RefBudget      ReferenceType = "BUDGET"
	RefCategory    ReferenceType = "CATEGORY"
	RefUser        ReferenceType = "USER"
	RefAccount     ReferenceType = "ACCOUNT"
)

// LedgerEntry is one debit or credit line against an account. Entries are
// append-only: they are created only as part of constructing a JournalEntry
// and never mutated afterwards. Corrections are modeled as new entries.
type LedgerEntry struct {
	EntryID        string         `json:"entryID"` // Primary Key (UUID)
	TransactionID  string         `json:"transactionID"`
	AccountID      string         `json:"accountID"`
	AccountName    string         `json:"accountName"`
	AccountType    AccountType    `json:"accountType"`
	EntryType      EntryType      `json:"entryType"`
	Amount         Money          `json:"amount"`
	Description    string         `json:"description"`
	ReferenceID    string         `json:"referenceID,omitempty"`
	ReferenceType  ReferenceType  `json:"referenceType,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	JournalEntryID string         `json:"journalEntryID"`
	PostedAt       time.Time      `json:"postedAt"`
	AuditFields
}
