package money

import "github.com/shopspring/decimal"

// Totals aggregates signed transaction amounts of one batch.
type Totals struct {
	Currency string `json:"currency"`
	Income   *Money `json:"income"`
	Expenses *Money `json:"expenses"` // positive magnitude
	Net      *Money `json:"net"`
	GST      *Money `json:"gst"` // tax contained in expenses
	Count    int    `json:"count"`
}

// NewTotals starts an empty aggregate in currency.
func NewTotals(currency string) *Totals {
	return &Totals{
		Currency: currency,
		Income:   Zero(currency),
		Expenses: Zero(currency),
		Net:      Zero(currency),
		GST:      Zero(currency),
	}
}

// Add folds one amount in. gstRate, when set, is treated as included in
// the expense amount.
func (t *Totals) Add(amount decimal.Decimal, gstRate *float64) error {
	m := NewFromDecimal(amount, t.Currency)

	var err error
	if t.Net, err = t.Net.Add(m); err != nil {
		return err
	}

	switch {
	case m.IsPositive():
		t.Income, err = t.Income.Add(m)
	case m.IsNegative():
		spent := m.Abs()
		if t.Expenses, err = t.Expenses.Add(spent); err != nil {
			return err
		}
		if gstRate != nil {
			t.GST, err = t.GST.Add(spent.ExtractTax(*gstRate))
		}
	}
	if err != nil {
		return err
	}

	t.Count++
	return nil
}
