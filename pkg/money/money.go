// Package money provides currency-safe arithmetic over integer minor units.
// It wraps go-money for ISO-4217 handling and shopspring/decimal for
// conversions.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	INR = "INR" // Indian Rupee
	USD = "USD" // US Dollar
	EUR = "EUR" // Euro
	GBP = "GBP" // British Pound
	BRL = "BRL" // Brazilian Real
	JPY = "JPY" // Japanese Yen (no decimal places)
)

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// New creates a Money value from minor units.
func New(amountMinor int64, currencyCode string) *Money {
	return &Money{m: money.New(amountMinor, currencyCode)}
}

// NewFromDecimal converts a decimal amount to minor units, rounding half away
// from zero. Unknown currency codes fall back to USD precision.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(USD)
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	minor := amount.Mul(multiplier).Round(0).IntPart()

	return New(minor, currencyCode)
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// IsKnownCurrency reports whether code is an ISO-4217 code go-money knows.
func IsKnownCurrency(code string) bool {
	return money.GetCurrency(code) != nil
}

// Amount returns the amount in minor units
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

func (m *Money) IsZero() bool     { return m.Amount() == 0 }
func (m *Money) IsPositive() bool { return m.Amount() > 0 }
func (m *Money) IsNegative() bool { return m.Amount() < 0 }

// Abs returns the absolute value
func (m *Money) Abs() *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return &Money{m: m.m.Absolute()}
}

// Add returns m + other. Currencies must match.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}

	result, err := m.m.Add(other.m)
	if err != nil {
		return nil, fmt.Errorf("adding %s to %s: %w", other.Currency(), m.Currency(), err)
	}
	return &Money{m: result}, nil
}

// Display returns a formatted string for display (e.g., "₹1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.m.Display()
}

// String returns the amount as a decimal string (e.g., "1234.56")
func (m *Money) String() string {
	return m.ToDecimal().StringFixed(m.fraction())
}

// ToDecimal converts to decimal.Decimal for precise calculations
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	return decimal.New(m.m.Amount(), -m.fraction())
}

func (m *Money) fraction() int32 {
	if m == nil || m.m == nil {
		return 2
	}
	return int32(m.m.Currency().Fraction)
}

// ExtractTax returns the tax portion contained in a tax-inclusive amount.
// taxRate is a percentage (18 for 18%).
func (m *Money) ExtractTax(taxRate float64) *Money {
	if m == nil || m.m == nil || taxRate <= 0 {
		return Zero(m.Currency())
	}

	total := m.ToDecimal()
	rate := decimal.NewFromFloat(taxRate).Div(decimal.NewFromInt(100))
	base := total.Div(decimal.NewFromInt(1).Add(rate))

	return NewFromDecimal(total.Sub(base), m.Currency())
}

// MarshalJSON writes {"amount": "1234.56", "currency": "INR", "display": "₹1,234.56"}.
func (m *Money) MarshalJSON() ([]byte, error) {
	if m == nil || m.m == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(map[string]string{
		"amount":   m.String(),
		"currency": m.Currency(),
		"display":  m.Display(),
	})
}
