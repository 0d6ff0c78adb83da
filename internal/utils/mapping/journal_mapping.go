package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/grana-app/grana_backend/internal/core/domain"
	"github.com/grana-app/grana_backend/internal/models"
)

// ToModelJournalEntry converts a domain JournalEntry to its row model.
// Metadata is serialized to JSON for the JSONB column.
func ToModelJournalEntry(d *domain.JournalEntry) (models.JournalEntry, error) {
	metadata, err := marshalMetadata(d.Metadata)
	if err != nil {
		return models.JournalEntry{}, err
	}

	var reversedBy *string
	if d.ReversedBy != "" {
		rb := d.ReversedBy
		reversedBy = &rb
	}

	return models.JournalEntry{
		JournalEntryID: d.JournalEntryID,
		UserID:         d.UserID,
		TransactionID:  d.TransactionID,
		Description:    d.Description,
		Status:         string(d.Status),
		TotalAmount:    d.TotalAmount.Amount,
		Currency:       d.TotalAmount.Currency,
		PostedAt:       d.PostedAt,
		ReversedAt:     d.ReversedAt,
		ReversedBy:     reversedBy,
		Metadata:       metadata,
		Version:        d.Version,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

// ToModelLedgerEntry converts a domain LedgerEntry to its row model.
func ToModelLedgerEntry(d domain.LedgerEntry) (models.LedgerEntry, error) {
	metadata, err := marshalMetadata(d.Metadata)
	if err != nil {
		return models.LedgerEntry{}, err
	}

	var referenceID, referenceType *string
	if d.ReferenceID != "" {
		rid := d.ReferenceID
		referenceID = &rid
	}
	if d.ReferenceType != "" {
		rt := string(d.ReferenceType)
		referenceType = &rt
	}

	return models.LedgerEntry{
		EntryID:        d.EntryID,
		TransactionID:  d.TransactionID,
		AccountID:      d.AccountID,
		AccountName:    d.AccountName,
		AccountType:    string(d.AccountType),
		EntryType:      string(d.EntryType),
		Amount:         d.Amount.Amount,
		Currency:       d.Amount.Currency,
		Description:    d.Description,
		ReferenceID:    referenceID,
		ReferenceType:  referenceType,
		Metadata:       metadata,
		JournalEntryID: d.JournalEntryID,
		PostedAt:       d.PostedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

// ToDomainJournalEntry reconstructs the aggregate from its rows. Malformed
// persisted metadata is a hard read error: financial data is never guessed.
func ToDomainJournalEntry(m models.JournalEntry, entryRows []models.LedgerEntry) (*domain.JournalEntry, error) {
	metadata, err := unmarshalMetadata(m.Metadata, "journal entry "+m.JournalEntryID)
	if err != nil {
		return nil, err
	}

	total, err := domain.NewMoney(m.TotalAmount, m.Currency)
	if err != nil {
		return nil, fmt.Errorf("invalid stored total for journal entry %s: %w", m.JournalEntryID, err)
	}

	entries := make([]domain.LedgerEntry, 0, len(entryRows))
	for _, row := range entryRows {
		entry, err := ToDomainLedgerEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	reversedBy := ""
	if m.ReversedBy != nil {
		reversedBy = *m.ReversedBy
	}

	return &domain.JournalEntry{
		JournalEntryID: m.JournalEntryID,
		UserID:         m.UserID,
		TransactionID:  m.TransactionID,
		Description:    m.Description,
		Status:         domain.JournalEntryStatus(m.Status),
		Entries:        entries,
		TotalAmount:    total,
		PostedAt:       m.PostedAt,
		ReversedAt:     m.ReversedAt,
		ReversedBy:     reversedBy,
		Metadata:       metadata,
		Version:        m.Version,
		AuditFields:    domain.AuditFields{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
	}, nil
}

// ToDomainLedgerEntry reconstructs one ledger line from its row.
func ToDomainLedgerEntry(m models.LedgerEntry) (domain.LedgerEntry, error) {
	metadata, err := unmarshalMetadata(m.Metadata, "ledger entry "+m.EntryID)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	amount, err := domain.NewMoney(m.Amount, m.Currency)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("invalid stored amount for ledger entry %s: %w", m.EntryID, err)
	}

	referenceID := ""
	if m.ReferenceID != nil {
		referenceID = *m.ReferenceID
	}
	var referenceType domain.ReferenceType
	if m.ReferenceType != nil {
		referenceType = domain.ReferenceType(*m.ReferenceType)
	}

	return domain.LedgerEntry{
		EntryID:        m.EntryID,
		TransactionID:  m.TransactionID,
		AccountID:      m.AccountID,
		AccountName:    m.AccountName,
		AccountType:    domain.AccountType(m.AccountType),
		EntryType:      domain.EntryType(m.EntryType),
		Amount:         amount,
		Description:    m.Description,
		ReferenceID:    referenceID,
		ReferenceType:  referenceType,
		Metadata:       metadata,
		JournalEntryID: m.JournalEntryID,
		PostedAt:       m.PostedAt,
		AuditFields:    domain.AuditFields{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
	}, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot serialize metadata: %v", apperrors.ErrValidation, err)
	}
	return b, nil
}

func unmarshalMetadata(b []byte, subject string) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: corrupt metadata for %s: %v", apperrors.ErrInternal, subject, err)
	}
	return m, nil
}
