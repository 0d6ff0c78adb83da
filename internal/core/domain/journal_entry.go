package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grana-app/grana_backend/internal/apperrors"
)

// JournalEntryStatus indicates the lifecycle state of a journal entry.
type JournalEntryStatus string

const (
	Draft    JournalEntryStatus = "DRAFT"
	Posted   JournalEntryStatus = "POSTED"
	Reversed JournalEntryStatus = "REVERSED"
	Errored  JournalEntryStatus = "ERROR"
)

// JournalEntry is an aggregate of balanced ledger entries representing one
// atomic financial fact. Lifecycle: DRAFT -> POSTED -> REVERSED, with ERROR as
// a terminal fault state. Posted entries are never rewritten; a reversal is a
// separate offsetting journal entry plus reversal metadata on the original.
type JournalEntry struct {
	JournalEntryID string             `json:"journalEntryID"` // Primary Key (UUID)
	UserID         string             `json:"userID"`
	TransactionID  string             `json:"transactionID"`
	Description    string             `json:"description"`
	Status         JournalEntryStatus `json:"status"`
	Entries        []LedgerEntry      `json:"entries"` // insertion order preserved for audit display
	TotalAmount    Money              `json:"totalAmount"`
	PostedAt       *time.Time         `json:"postedAt,omitempty"`
	ReversedAt     *time.Time         `json:"reversedAt,omitempty"`
	ReversedBy     string             `json:"reversedBy,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	Version        int64              `json:"version"` // optimistic concurrency, compared at commit time
	AuditFields

	// pendingEvents holds events queued by state transitions until the unit
	// of work drains them. Never persisted with the aggregate.
	pendingEvents []DomainEvent
}

// EntryLine is the caller-supplied input for one ledger line of a new journal
// entry. Ledger entries themselves are only created through NewJournalEntry.
type EntryLine struct {
	AccountID     string
	AccountName   string
	AccountType   AccountType
	EntryType     EntryType
	Amount        Money
	Description   string
	ReferenceID   string
	ReferenceType ReferenceType
	Metadata      map[string]any
}

// NewJournalEntry assembles a DRAFT journal entry from the given lines.
// Lines must be non-empty, share one currency, and carry positive amounts;
// the balance law is enforced later by Post, so a draft may be unbalanced
// while it is being assembled.
func NewJournalEntry(userID, transactionID, description string, lines []EntryLine, metadata map[string]any, now time.Time) (*JournalEntry, error) {
	if len(lines) < 2 {
		return nil, fmt.Errorf("%w: journal entry needs at least two ledger lines", apperrors.ErrValidation)
	}
	currency := lines[0].Amount.Currency
	journalEntryID := uuid.NewString()

	entries := make([]LedgerEntry, 0, len(lines))
	for _, line := range lines {
		if !line.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: ledger line amount must be positive, got %s", apperrors.ErrValidation, line.Amount)
		}
		if line.Amount.Currency != currency {
			return nil, fmt.Errorf("%w: ledger line currency %s differs from journal currency %s", apperrors.ErrCurrencyMismatch, line.Amount.Currency, currency)
		}
		if line.EntryType != Debit && line.EntryType != Credit {
			return nil, fmt.Errorf("%w: unknown entry type %q", apperrors.ErrValidation, line.EntryType)
		}
		entries = append(entries, LedgerEntry{
			EntryID:        uuid.NewString(),
			TransactionID:  transactionID,
			AccountID:      line.AccountID,
			AccountName:    line.AccountName,
			AccountType:    line.AccountType,
			EntryType:      line.EntryType,
			Amount:         line.Amount,
			Description:    line.Description,
			ReferenceID:    line.ReferenceID,
			ReferenceType:  line.ReferenceType,
			Metadata:       line.Metadata,
			JournalEntryID: journalEntryID,
			AuditFields:    AuditFields{CreatedAt: now, UpdatedAt: now},
		})
	}

	je := &JournalEntry{
		JournalEntryID: journalEntryID,
		UserID:         userID,
		TransactionID:  transactionID,
		Description:    description,
		Status:         Draft,
		Entries:        entries,
		TotalAmount:    ZeroMoney(currency),
		Metadata:       metadata,
		AuditFields:    AuditFields{CreatedAt: now, UpdatedAt: now},
	}
	return je, nil
}

// Currency returns the single currency shared by all entries.
func (je *JournalEntry) Currency() string {
	if len(je.Entries) == 0 {
		return ""
	}
	return je.Entries[0].Amount.Currency
}

// DebitTotal sums the amounts of all DEBIT entries.
func (je *JournalEntry) DebitTotal() Money {
	return je.sumSide(Debit)
}

// CreditTotal sums the amounts of all CREDIT entries.
func (je *JournalEntry) CreditTotal() Money {
	return je.sumSide(Credit)
}

func (je *JournalEntry) sumSide(side EntryType) Money {
	total := ZeroMoney(je.Currency())
	for _, e := range je.Entries {
		if e.EntryType != side {
			continue
		}
		// Construction guarantees a single currency, so Add cannot fail.
		total, _ = total.Add(e.Amount)
	}
	return total
}

// validateBalance enforces the double-entry balance law.
func (je *JournalEntry) validateBalance() error {
	if len(je.Entries) == 0 {
		return fmt.Errorf("%w: journal entry has no ledger entries", apperrors.ErrValidation)
	}
	debits := je.DebitTotal()
	credits := je.CreditTotal()
	if !debits.Equal(credits) {
		return fmt.Errorf("%w: debits %s != credits %s", apperrors.ErrUnbalancedEntry, debits, credits)
	}
	return nil
}

// Post validates the balance invariant and transitions DRAFT -> POSTED,
// queueing exactly one JournalEntryPosted event. The status is untouched on
// failure.
func (je *JournalEntry) Post(now time.Time) error {
	if je.Status != Draft {
		return fmt.Errorf("%w: cannot post journal entry in status %s", apperrors.ErrInvalidStateTransition, je.Status)
	}
	if err := je.validateBalance(); err != nil {
		return err
	}

	je.Status = Posted
	je.PostedAt = &now
	je.TotalAmount = je.DebitTotal()
	je.UpdatedAt = now
	for i := range je.Entries {
		je.Entries[i].PostedAt = now
	}

	je.queueEvent(NewJournalEntryPosted(je, now))
	return nil
}

// Reverse transitions POSTED -> REVERSED. The original entries are left
// untouched; the reversal is expressed as a new offsetting journal entry
// whose ledger lines carry flipped entry types and the same amounts. Exactly
// one JournalEntryReversed event is queued on the original aggregate; the
// offsetting entry emits no event of its own.
func (je *JournalEntry) Reverse(reversedBy, reason string, now time.Time) (*JournalEntry, error) {
	if je.Status != Posted {
		return nil, fmt.Errorf("%w: cannot reverse journal entry in status %s", apperrors.ErrInvalidStateTransition, je.Status)
	}

	reversingID := uuid.NewString()
	reversingEntries := make([]LedgerEntry, 0, len(je.Entries))
	for _, e := range je.Entries {
		reversingEntries = append(reversingEntries, LedgerEntry{
			EntryID:        uuid.NewString(),
			TransactionID:  e.TransactionID,
			AccountID:      e.AccountID,
			AccountName:    e.AccountName,
			AccountType:    e.AccountType,
			EntryType:      e.EntryType.Opposite(),
			Amount:         e.Amount,
			Description:    e.Description,
			ReferenceID:    e.ReferenceID,
			ReferenceType:  e.ReferenceType,
			Metadata:       copyMetadata(e.Metadata),
			JournalEntryID: reversingID,
			PostedAt:       now,
			AuditFields:    AuditFields{CreatedAt: now, UpdatedAt: now},
		})
	}

	reversing := &JournalEntry{
		JournalEntryID: reversingID,
		UserID:         je.UserID,
		TransactionID:  je.TransactionID,
		Description:    fmt.Sprintf("Reversal of %s: %s", je.JournalEntryID, reason),
		Status:         Posted,
		Entries:        reversingEntries,
		TotalAmount:    je.TotalAmount,
		PostedAt:       &now,
		Metadata: map[string]any{
			"reversalOf":     je.JournalEntryID,
			"reversalReason": reason,
		},
		AuditFields: AuditFields{CreatedAt: now, UpdatedAt: now},
	}

	je.Status = Reversed
	je.ReversedAt = &now
	je.ReversedBy = reversedBy
	je.UpdatedAt = now

	je.queueEvent(NewJournalEntryReversed(je, reversing, reversedBy, reason, now))
	return reversing, nil
}

// MarkError records an irrecoverable processing failure. ERROR is terminal
// and emits no events. Only DRAFT and POSTED entries can fault.
func (je *JournalEntry) MarkError(reason string, now time.Time) error {
	if je.Status != Draft && je.Status != Posted {
		return fmt.Errorf("%w: cannot mark journal entry in status %s as errored", apperrors.ErrInvalidStateTransition, je.Status)
	}
	je.Status = Errored
	if je.Metadata == nil {
		je.Metadata = map[string]any{}
	}
	je.Metadata["errorReason"] = reason
	je.UpdatedAt = now
	return nil
}

// DrainEvents returns the queued events and clears the queue. Events must be
// consumed exactly once per commit cycle.
func (je *JournalEntry) DrainEvents() []DomainEvent {
	events := je.pendingEvents
	je.pendingEvents = nil
	return events
}

// PendingEventCount reports how many events are queued, without draining.
func (je *JournalEntry) PendingEventCount() int {
	return len(je.pendingEvents)
}

func (je *JournalEntry) queueEvent(e DomainEvent) {
	je.pendingEvents = append(je.pendingEvents, e)
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
