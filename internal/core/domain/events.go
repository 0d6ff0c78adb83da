package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the closed set of domain event variants.
type EventType string

const (
	EventJournalEntryPosted         EventType = "journal_entry.posted"
	EventJournalEntryReversed       EventType = "journal_entry.reversed"
	EventTransactionLedgerProcessed EventType = "transaction.ledger_processed"
	EventBudgetExceeded             EventType = "budget.exceeded"
	EventUserRegistered             EventType = "user.registered"
)

// AllEventTypes enumerates every variant. The dispatcher uses it to keep its
// dispatch table exhaustive.
func AllEventTypes() []EventType {
	return []EventType{
		EventJournalEntryPosted,
		EventJournalEntryReversed,
		EventTransactionLedgerProcessed,
		EventBudgetExceeded,
		EventUserRegistered,
	}
}

// DomainEvent is an immutable fact produced by an aggregate state transition.
// Events are held in a transient per-aggregate queue until drained by the
// unit of work; they are never persisted before the owning transaction commits.
type DomainEvent interface {
	EventID() string
	EventType() EventType
	AggregateID() string
	OccurredAt() time.Time
}

// EventBase carries the fields every variant shares.
type EventBase struct {
	ID        string    `json:"eventId"`
	Type      EventType `json:"eventType"`
	Aggregate string    `json:"aggregateId"`
	At        time.Time `json:"occurredAt"`
}

func newEventBase(t EventType, aggregateID string, at time.Time) EventBase {
	return EventBase{
		ID:        uuid.NewString(),
		Type:      t,
		Aggregate: aggregateID,
		At:        at,
	}
}

func (e EventBase) EventID() string      { return e.ID }
func (e EventBase) EventType() EventType { return e.Type }
func (e EventBase) AggregateID() string  { return e.Aggregate }
func (e EventBase) OccurredAt() time.Time { return e.At }

// JournalEntryPosted is emitted when a journal entry transitions DRAFT -> POSTED.
type JournalEntryPosted struct {
	EventBase
	UserID        string        `json:"userId"`
	TransactionID string        `json:"transactionId"`
	TotalAmount   Money         `json:"totalAmount"`
	Entries       []LedgerEntry `json:"entries"`
}

// NewJournalEntryPosted builds the posted event for a journal entry.
func NewJournalEntryPosted(je *JournalEntry, at time.Time) JournalEntryPosted {
	return JournalEntryPosted{
		EventBase:     newEventBase(EventJournalEntryPosted, je.JournalEntryID, at),
		UserID:        je.UserID,
		TransactionID: je.TransactionID,
		TotalAmount:   je.TotalAmount,
		Entries:       je.Entries,
	}
}

// JournalEntryReversed is emitted when a posted journal entry is reversed.
type JournalEntryReversed struct {
	EventBase
	OriginalJournalEntryID  string `json:"originalJournalEntryId"`
	ReversingJournalEntryID string `json:"reversingJournalEntryId"`
	ReversedBy              string `json:"reversedBy"`
	Reason                  string `json:"reason"`
	UserID                  string `json:"userId"`
	OriginalAmount          Money  `json:"originalAmount"`
}

// NewJournalEntryReversed builds the reversal event linking the original and
// the offsetting journal entry.
func NewJournalEntryReversed(original, reversing *JournalEntry, reversedBy, reason string, at time.Time) JournalEntryReversed {
	return JournalEntryReversed{
		EventBase:               newEventBase(EventJournalEntryReversed, original.JournalEntryID, at),
		OriginalJournalEntryID:  original.JournalEntryID,
		ReversingJournalEntryID: reversing.JournalEntryID,
		ReversedBy:              reversedBy,
		Reason:                  reason,
		UserID:                  original.UserID,
		OriginalAmount:          original.TotalAmount,
	}
}

// TransactionLedgerProcessed is emitted once every journal entry backing a
// user-facing transaction has been written to the ledger.
type TransactionLedgerProcessed struct {
	EventBase
	TransactionID   string    `json:"transactionId"`
	TransactionType string    `json:"transactionType"`
	UserID          string    `json:"userId"`
	Amount          Money     `json:"amount"`
	JournalEntryIDs []string  `json:"journalEntryIds"`
	ProcessedAt     time.Time `json:"processedAt"`
}

// NewTransactionLedgerProcessed builds the ledger-processed event for a transaction.
func NewTransactionLedgerProcessed(transactionID, transactionType, userID string, amount Money, journalEntryIDs []string, at time.Time) TransactionLedgerProcessed {
	return TransactionLedgerProcessed{
		EventBase:       newEventBase(EventTransactionLedgerProcessed, transactionID, at),
		TransactionID:   transactionID,
		TransactionType: transactionType,
		UserID:          userID,
		Amount:          amount,
		JournalEntryIDs: journalEntryIDs,
		ProcessedAt:     at,
	}
}

// BudgetExceeded is emitted when a posting pushes spending past a budget limit.
type BudgetExceeded struct {
	EventBase
	BudgetID   string `json:"budgetId"`
	UserID     string `json:"userId"`
	CategoryID string `json:"categoryId"`
	Limit      Money  `json:"limit"`
	Spent      Money  `json:"spent"`
	Period     string `json:"period"` // e.g. "2026-08"
}

// NewBudgetExceeded builds the budget-exceeded event.
func NewBudgetExceeded(budgetID, userID, categoryID string, limit, spent Money, period string, at time.Time) BudgetExceeded {
	return BudgetExceeded{
		EventBase:  newEventBase(EventBudgetExceeded, budgetID, at),
		BudgetID:   budgetID,
		UserID:     userID,
		CategoryID: categoryID,
		Limit:      limit,
		Spent:      spent,
		Period:     period,
	}
}

// UserRegistered is emitted when a new user account is created.
type UserRegistered struct {
	EventBase
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// NewUserRegistered builds the user-registered event.
func NewUserRegistered(userID, email, name string, at time.Time) UserRegistered {
	return UserRegistered{
		EventBase:    newEventBase(EventUserRegistered, userID, at),
		UserID:       userID,
		Email:        email,
		Name:         name,
		RegisteredAt: at,
	}
}
