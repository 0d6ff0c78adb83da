package accounting

import (
	"fmt"

	"github.com/grana-app/grana_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CalculateSignedAmount applies the correct sign to a ledger entry amount
// based on account type and entry type.
//
// Determine sign based on accounting convention:
// DEBIT to ASSET/EXPENSE -> Positive (+)
// CREDIT to ASSET/EXPENSE -> Negative (-)
// DEBIT to LIABILITY/EQUITY/REVENUE -> Negative (-)
// CREDIT to LIABILITY/EQUITY/REVENUE -> Positive (+)
func CalculateSignedAmount(entry domain.LedgerEntry) (decimal.Decimal, error) {
	signedAmount := entry.Amount.Amount
	isDebit := entry.EntryType == domain.Debit

	switch entry.AccountType {
	case domain.Asset, domain.Expense:
		if !isDebit { // Credit to Asset/Expense
			signedAmount = signedAmount.Neg()
		}
	case domain.Liability, domain.Equity, domain.Revenue:
		if isDebit { // Debit to Liability/Equity/Revenue
			signedAmount = signedAmount.Neg()
		}
	default:
		return decimal.Zero, fmt.Errorf("unknown account type '%s' encountered for account ID %s", entry.AccountType, entry.AccountID)
	}
	return signedAmount, nil
}

// NetBalanceChanges sums signed amounts per account for one journal entry,
// used when projecting account balances into the read model.
func NetBalanceChanges(entries []domain.LedgerEntry) (map[string]decimal.Decimal, error) {
	changes := make(map[string]decimal.Decimal, len(entries))
	for _, entry := range entries {
		signed, err := CalculateSignedAmount(entry)
		if err != nil {
			return nil, err
		}
		changes[entry.AccountID] = changes[entry.AccountID].Add(signed)
	}
	return changes, nil
}
