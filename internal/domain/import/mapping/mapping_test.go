package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    map[Field]string
	}{
		{
			name:    "standard export",
			headers: []string{"Date", "Description", "Amount", "Merchant", "Category"},
			want: map[Field]string{
				FieldDate:        "Date",
				FieldDescription: "Description",
				FieldAmount:      "Amount",
				FieldMerchant:    "Merchant",
				FieldCategory:    "Category",
			},
		},
		{
			name:    "Indian bank debit/credit layout",
			headers: []string{"Txn Date", "Narration", "Chq./Ref.No.", "Value Dt", "Withdrawal Amt.", "Deposit Amt.", "Closing Balance"},
			want: map[Field]string{
				FieldDate:        "Txn Date",
				FieldDescription: "Narration",
				FieldDebit:       "Withdrawal Amt.",
				FieldCredit:      "Deposit Amt.",
			},
		},
		{
			name:    "separators and brackets are tolerated",
			headers: []string{"transaction_date", "Transaction-Details", "Debit (INR)", "Credit (INR)", "GST Rate"},
			want: map[Field]string{
				FieldDate:        "transaction_date",
				FieldDescription: "Transaction-Details",
				FieldDebit:       "Debit (INR)",
				FieldCredit:      "Credit (INR)",
				FieldGST:         "GST Rate",
			},
		},
		{
			name:    "first alias in priority order wins",
			headers: []string{"Value Date", "Posting Date", "Memo", "Description", "Amount"},
			want: map[Field]string{
				FieldDate:        "Posting Date",
				FieldDescription: "Description",
				FieldAmount:      "Amount",
			},
		},
		{
			name:    "fuzzy fallback",
			headers: []string{"Booking Date", "Item Description", "Net Amount"},
			want: map[Field]string{
				FieldDate:        "Booking Date",
				FieldDescription: "Item Description",
				FieldAmount:      "Net Amount",
			},
		},
		{
			name:    "fuzzy fallback splits debit and credit",
			headers: []string{"Date", "Particulars", "Debit INR", "Credit INR"},
			want: map[Field]string{
				FieldDate:        "Date",
				FieldDescription: "Particulars",
				FieldDebit:       "Debit INR",
				FieldCredit:      "Credit INR",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Map(tt.headers)
			for _, f := range Fields {
				col, ok := m.Column(f)
				want, expected := tt.want[f]
				assert.Equal(t, expected, ok, "field %s", f)
				assert.Equal(t, want, col, "field %s", f)
			}
		})
	}
}

func TestColumnMapping_Missing(t *testing.T) {
	m := Map([]string{"Foo", "Bar"})
	assert.Equal(t, []string{"date", "description", "amount"}, m.Missing())
	assert.False(t, m.HasAmountSource())

	m = Map([]string{"Date", "Narration", "Dr", "Cr"})
	assert.Empty(t, m.Missing())
	assert.True(t, m.HasAmountSource())
}

func TestFromColumns(t *testing.T) {
	m := FromColumns(map[Field]string{FieldDate: "d", FieldAmount: ""})
	assert.True(t, m.Has(FieldDate))
	assert.False(t, m.Has(FieldAmount))
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"  Txn_Date ":       "txn date",
		"Withdrawal Amt.":   "withdrawal amt",
		"Amount (INR)":      "amount",
		"Value-Date:":       "value date",
		"Transaction  Date": "transaction date",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, NormalizeHeader(in))
		})
	}
}
