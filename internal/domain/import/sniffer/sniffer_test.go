package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectConfig(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		delimiter rune
		skip      int
		headers   []string
	}{
		{
			name:      "comma with header on first line",
			data:      "Date,Description,Amount\n2024-01-15,Coffee,-4.50\n",
			delimiter: ',',
			headers:   []string{"Date", "Description", "Amount"},
		},
		{
			name:      "semicolon European export",
			data:      "Data Mov.;Descrição;Débito;Crédito\n15-01-2024;Café;4,50;\n",
			delimiter: ';',
			headers:   []string{"Data Mov.", "Descrição", "Débito", "Crédito"},
		},
		{
			name:      "tab separated",
			data:      "Date\tNarration\tAmount\n2024-01-15\tCoffee\t-4.50\n",
			delimiter: '\t',
			headers:   []string{"Date", "Narration", "Amount"},
		},
		{
			name:      "bank preamble before header",
			data:      "HDFC BANK\nStatement From : 01/01/2024 To : 31/01/2024\n\nTxn Date,Narration,Withdrawal Amt.,Deposit Amt.,Closing Balance\n01/01/2024,UPI-SWIGGY,250.00,,1000.00\n",
			delimiter: ',',
			skip:      3,
			headers:   []string{"Txn Date", "Narration", "Withdrawal Amt.", "Deposit Amt.", "Closing Balance"},
		},
		{
			name:      "windows line endings",
			data:      "Date|Details|Amount\r\n2024-01-15|Coffee|-4.50\r\n",
			delimiter: '|',
			headers:   []string{"Date", "Details", "Amount"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DetectConfig([]byte(tt.data))

			require.NoError(t, err)
			assert.Equal(t, tt.delimiter, cfg.Delimiter)
			assert.Equal(t, tt.skip, cfg.SkipLines)
			assert.Equal(t, tt.headers, cfg.Headers)
			assert.NotEmpty(t, cfg.Fingerprint)
		})
	}
}

func TestDetectConfig_Empty(t *testing.T) {
	_, err := DetectConfig([]byte(" \n\n"))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]string{"Txn Date", "Narration", "Amount"})
	b := Fingerprint([]string{"txn_date", "NARRATION", " amount "})
	c := Fingerprint([]string{"Date", "Narration", "Amount"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestNormalizeEncoding(t *testing.T) {
	t.Run("strips BOM", func(t *testing.T) {
		assert.Equal(t, []byte("Date"), NormalizeEncoding([]byte("\xEF\xBB\xBFDate")))
	})

	t.Run("decodes Windows-1252", func(t *testing.T) {
		assert.Equal(t, "Café £5", string(NormalizeEncoding([]byte("Caf\xe9 \xa35"))))
	})

	t.Run("leaves UTF-8 alone", func(t *testing.T) {
		assert.Equal(t, "₹1,234.50", string(NormalizeEncoding([]byte("₹1,234.50"))))
	})
}

func TestProbeDialect(t *testing.T) {
	tests := []struct {
		name     string
		amounts  []string
		dates    []string
		decimal  bool
		month    bool
		currency string
	}{
		{
			name:    "US amounts, day-first dates",
			amounts: []string{"1,234.56", "-4.50", "300.00"},
			dates:   []string{"15/01/2024", "02/01/2024"},
		},
		{
			name:     "European amounts",
			amounts:  []string{"1.234,56", "-4,50", "€300,00"},
			dates:    []string{"15.01.2024"},
			decimal:  true,
			currency: "EUR",
		},
		{
			name:     "month-first evidence",
			amounts:  []string{"$4.50"},
			dates:    []string{"01/15/2024", "02/01/2024"},
			month:    true,
			currency: "USD",
		},
		{
			name:     "conflicting evidence stays day-first",
			amounts:  []string{"₹250.00"},
			dates:    []string{"01/15/2024", "15/01/2024"},
			currency: "INR",
		},
		{
			name:  "ISO dates carry no order hint",
			dates: []string{"2024-01-15"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ProbeDialect(tt.amounts, tt.dates)
			assert.Equal(t, tt.decimal, d.DecimalComma)
			assert.Equal(t, tt.month, d.MonthFirst)
			assert.Equal(t, tt.currency, d.CurrencyHint)
		})
	}
}
