package normalizer

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/dedupe"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/mapping"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/record"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestParseDate(t *testing.T) {
	opts := Options{Now: fixedNow}

	tests := []struct {
		input string
		want  string
	}{
		{"2024-01-15", "2024-01-15"},
		{"15/01/2024", "2024-01-15"},
		{"01/15/2024", "2024-01-15"},
		{"15-01-2024", "2024-01-15"},
		{"15.01.2024", "2024-01-15"},
		{"2024/01/15", "2024-01-15"},
		{"2024-01-15T10:30:00Z", "2024-01-15"},
		{"2024-01-15 10:30:00", "2024-01-15"},
		{"15/01/24", "2024-01-15"},
		{"15 Jan 2024", "2024-01-15"},
		{"15-Jan-24", "2024-01-15"},
		{"Jan 15, 2024", "2024-01-15"},
		{"15 January 2024", "2024-01-15"},
		{"45306", "2024-01-15"},
		{" 02/01/2024 ", "2024-01-02"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeDate(tt.input, opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate_MonthFirst(t *testing.T) {
	got, err := NormalizeDate("02/01/2024", Options{MonthFirst: true})
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", got)

	// Unambiguous day-first values ignore the option.
	got, err = NormalizeDate("15/01/2024", Options{MonthFirst: true})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", got)
}

func TestParseDate_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", "31/02/2024", "13/13/2024", "0", "2024-13-01", "15/01"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDate(input, Options{Now: fixedNow})
			assert.ErrorIs(t, err, ErrInvalidDate)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		opts  Options
		want  string
	}{
		{"₹1,234.50", Options{}, "1234.50"},
		{"(45.00)", Options{}, "-45.00"},
		{"-87.32", Options{}, "-87.32"},
		{"$ 1 000.00", Options{}, "1000"},
		{"€12", Options{}, "12"},
		{"£0.99", Options{}, "0.99"},
		{"Rs. 250", Options{}, "250"},
		{"INR 1,00,000.00", Options{}, "100000"},
		{"1,234.50 DR", Options{}, "-1234.50"},
		{"500.00 Cr", Options{}, "500"},
		{"12.00-", Options{}, "-12"},
		{"+15", Options{}, "15"},
		{"1.234,56", Options{DecimalComma: true}, "1234.56"},
		{"-4,50", Options{DecimalComma: true}, "-4.50"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input, tt.opts)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, input := range []string{"abc", "", "DR", "--5", "1.2.3", "12abc"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseAmount(input, Options{})
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func standardMapping() mapping.ColumnMapping {
	return mapping.Map([]string{"Date", "Description", "Amount", "Merchant", "Category", "GST"})
}

func row(line int, cells map[string]record.Value) record.RawRow {
	r := record.NewRawRow(line)
	for _, col := range []string{"Date", "Description", "Amount", "Debit", "Credit", "Merchant", "Category", "GST"} {
		if v, ok := cells[col]; ok {
			r.Set(col, v)
		}
	}
	return r
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(Options{Now: fixedNow})

	t.Run("expense row", func(t *testing.T) {
		raw := row(1, map[string]record.Value{
			"Date":        record.String("2024-01-15"),
			"Description": record.String("  Coffee   Purchase "),
			"Amount":      record.String("-4.50"),
			"Merchant":    record.String("Starbucks"),
			"Category":    record.String("Food & Dining"),
		})

		tx, err := n.Normalize(raw, standardMapping(), "user-1")

		require.NoError(t, err)
		assert.Equal(t, 1, tx.Row)
		assert.Equal(t, "2024-01-15", tx.Date)
		assert.Equal(t, "Coffee Purchase", tx.Description)
		assert.True(t, decimal.RequireFromString("-4.5").Equal(tx.Amount))
		assert.False(t, tx.IsIncome)
		assert.Equal(t, "Starbucks", tx.Merchant)
		assert.Equal(t, "Food & Dining", tx.SourceCategory)
		assert.Nil(t, tx.GSTRate)
		assert.Equal(t, dedupe.Hash("user-1", "2024-01-15", "Coffee Purchase", tx.Amount), tx.DedupeHash)
		assert.Equal(t, raw, tx.Raw)
	})

	t.Run("income row with spreadsheet serial and rate", func(t *testing.T) {
		raw := row(2, map[string]record.Value{
			"Date":        record.Number(45307),
			"Description": record.String("Salary Deposit"),
			"Amount":      record.Number(3000),
			"GST":         record.String("18%"),
		})

		tx, err := n.Normalize(raw, standardMapping(), "user-1")

		require.NoError(t, err)
		assert.Equal(t, "2024-01-16", tx.Date)
		assert.True(t, decimal.NewFromInt(3000).Equal(tx.Amount))
		assert.True(t, tx.IsIncome)
		require.NotNil(t, tx.GSTRate)
		assert.InDelta(t, 18.0, *tx.GSTRate, 1e-9)
	})

	t.Run("fractional rate is scaled", func(t *testing.T) {
		raw := row(1, map[string]record.Value{
			"Date":        record.String("2024-01-15"),
			"Description": record.String("Hotel"),
			"Amount":      record.String("-100"),
			"GST":         record.Number(0.12),
		})

		tx, err := n.Normalize(raw, standardMapping(), "u")

		require.NoError(t, err)
		require.NotNil(t, tx.GSTRate)
		assert.InDelta(t, 12.0, *tx.GSTRate, 1e-9)
	})

	failures := []struct {
		name  string
		cells map[string]record.Value
		want  error
	}{
		{
			name:  "missing date",
			cells: map[string]record.Value{"Description": record.String("x"), "Amount": record.String("1")},
			want:  ErrInvalidDate,
		},
		{
			name:  "invalid date",
			cells: map[string]record.Value{"Date": record.String("32/13/2024"), "Description": record.String("x"), "Amount": record.String("1")},
			want:  ErrInvalidDate,
		},
		{
			name:  "missing description",
			cells: map[string]record.Value{"Date": record.String("2024-01-15"), "Description": record.String("   "), "Amount": record.String("1")},
			want:  ErrMissingDescription,
		},
		{
			name:  "invalid amount",
			cells: map[string]record.Value{"Date": record.String("2024-01-15"), "Description": record.String("x"), "Amount": record.String("abc")},
			want:  ErrInvalidAmount,
		},
		{
			name:  "no amount at all",
			cells: map[string]record.Value{"Date": record.String("2024-01-15"), "Description": record.String("x")},
			want:  ErrNoAmount,
		},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := n.Normalize(row(3, tt.cells), standardMapping(), "u")

			assert.Nil(t, tx)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var fe *FieldError
			assert.True(t, errors.As(err, &fe))
		})
	}

	t.Run("invalid date message carries the raw value", func(t *testing.T) {
		cells := map[string]record.Value{"Date": record.String("someday"), "Description": record.String("x"), "Amount": record.String("1")}
		_, err := n.Normalize(row(1, cells), standardMapping(), "u")
		assert.EqualError(t, err, `invalid or missing date: "someday"`)
	})
}

func TestNormalizer_DebitCredit(t *testing.T) {
	n := NewNormalizer(Options{})
	m := mapping.Map([]string{"Date", "Description", "Debit", "Credit"})

	tests := []struct {
		name    string
		debit   record.Value
		credit  record.Value
		want    string
		wantErr error
	}{
		{"debit only", record.String("250.00"), record.Null(), "-250", nil},
		{"credit only", record.Null(), record.String("1,000.00"), "1000", nil},
		{"negative debit stays an expense", record.String("-75"), record.Null(), "-75", nil},
		{"zero debit falls through to credit", record.String("0.00"), record.String("40"), "40", nil},
		{"unparseable debit is zero", record.String("n/a"), record.String("50"), "50", nil},
		{"both zero", record.String("0"), record.String("0.00"), "", ErrNoAmount},
		{"both empty", record.Null(), record.Null(), "", ErrNoAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := row(1, map[string]record.Value{
				"Date":        record.String("2024-01-15"),
				"Description": record.String("Transfer"),
				"Debit":       tt.debit,
				"Credit":      tt.credit,
			})

			tx, err := n.Normalize(raw, m, "u")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(tx.Amount), "got %s", tx.Amount)
		})
	}
}

func TestNormalizer_SingleAmountWins(t *testing.T) {
	n := NewNormalizer(Options{})
	m := mapping.Map([]string{"Date", "Description", "Amount", "Debit", "Credit"})

	raw := row(1, map[string]record.Value{
		"Date":        record.String("2024-01-15"),
		"Description": record.String("Refund"),
		"Amount":      record.String("10"),
		"Debit":       record.String("99"),
	})

	tx, err := n.Normalize(raw, m, "u")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(tx.Amount))
}

func TestNormalizer_SignInvariant(t *testing.T) {
	n := NewNormalizer(Options{})
	m := mapping.Map([]string{"Date", "Description", "Amount"})

	for _, amount := range []string{"-0.01", "0.01", "(12.00)", "12.00 DR", "12.00 CR", "₹5", "-₹5", "0"} {
		t.Run(amount, func(t *testing.T) {
			raw := row(1, map[string]record.Value{
				"Date":        record.String("2024-01-15"),
				"Description": record.String("Anything"),
				"Amount":      record.String(amount),
			})
			tx, err := n.Normalize(raw, m, "u")
			require.NoError(t, err)
			assert.Equal(t, tx.Amount.IsPositive(), tx.IsIncome)
		})
	}
}

func TestNormalizer_InferMerchant(t *testing.T) {
	m := mapping.Map([]string{"Date", "Narration", "Amount"})
	raw := record.NewRawRow(1)
	raw.Set("Date", record.String("2024-01-15"))
	raw.Set("Narration", record.String("UPI/412345678901/SWIGGY LIMITED/Payment"))
	raw.Set("Amount", record.String("-350"))

	tx, err := NewNormalizer(Options{InferMerchant: true}).Normalize(raw, m, "u")
	require.NoError(t, err)
	assert.Equal(t, "Swiggy", tx.Merchant)

	tx, err = NewNormalizer(Options{}).Normalize(raw, m, "u")
	require.NoError(t, err)
	assert.Empty(t, tx.Merchant)

	raw.Set("Narration", record.String("STARBUCK COFFEE"))
	tx, err = NewNormalizer(Options{InferMerchant: true}).Normalize(raw, m, "u")
	require.NoError(t, err)
	assert.Equal(t, "Starbucks", tx.Merchant)
}
