package domain

import (
	"fmt"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/shopspring/decimal"
)

// Money is an exact, currency-tagged monetary value. It is immutable: all
// arithmetic returns a new value. Amounts carry at most two fractional digits.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"` // ISO-4217 code, e.g. "BRL"
}

// NewMoney builds a Money value, validating the two-decimal invariant and the
// currency code shape.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("%w: invalid currency code %q", apperrors.ErrValidation, currency)
	}
	if !amount.Equal(amount.Round(2)) {
		return Money{}, fmt.Errorf("%w: amount %s has more than 2 fractional digits", apperrors.ErrValidation, amount.String())
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// NewMoneyFromString parses a decimal string into a Money value.
func NewMoneyFromString(amount string, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("%w: invalid amount %q: %v", apperrors.ErrValidation, amount, err)
	}
	return NewMoney(d, currency)
}

// ZeroMoney returns a zero value in the given currency.
func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// Add returns m + other. Both values must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: cannot add %s to %s", apperrors.ErrCurrencyMismatch, other.Currency, m.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other. Both values must share a currency.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: cannot subtract %s from %s", apperrors.ErrCurrencyMismatch, other.Currency, m.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// MulScalar returns m scaled by factor, rounded half-up to 2 decimal places.
// Half-up is the single deterministic rounding rule for the whole ledger;
// decimal.Round rounds half away from zero, which is half-up for the
// non-negative amounts the ledger stores.
func (m Money) MulScalar(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor).Round(2), Currency: m.Currency}
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}
