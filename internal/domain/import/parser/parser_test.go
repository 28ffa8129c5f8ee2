package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/mapping"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/record"
)

var pdfOpts = normalizer.Options{}

func texts(row record.RawRow) map[string]string {
	out := make(map[string]string)
	for _, c := range row.Columns() {
		out[c] = row.Get(c).Text()
	}
	return out
}

func TestCSVParser_Parse(t *testing.T) {
	ctx := context.Background()

	t.Run("parses standard CSV", func(t *testing.T) {
		data := `Date,Description,Amount,Merchant,Category
2024-01-15,"Coffee Purchase",-4.50,"Starbucks","Food & Dining"
2024-01-16,"Salary Deposit",3000.00,"ABC Company","Income"`

		result, err := NewCSVParser().Parse(ctx, []byte(data))

		require.NoError(t, err)
		require.Len(t, result.Rows, 2)
		assert.Empty(t, result.Errors)
		assert.Equal(t, []string{"Date", "Description", "Amount", "Merchant", "Category"}, result.Meta.Headers)
		assert.Equal(t, ",", result.Meta.Delimiter)
		assert.Equal(t, 2, result.Meta.DataRows)

		first := result.Rows[0]
		assert.Equal(t, 1, first.Line)
		assert.Equal(t, "Coffee Purchase", first.Get("Description").Text())
		assert.Equal(t, "-4.50", first.Get("Amount").Text())
		assert.Equal(t, "Food & Dining", first.Get("Category").Text())
		assert.Equal(t, 2, result.Rows[1].Line)
	})

	t.Run("keeps quoted commas inside a field", func(t *testing.T) {
		data := "Date,Description,Amount\n2024-01-15,\"Dinner, drinks\",\"1,234.50\"\n"

		result, err := NewCSVParser().Parse(ctx, []byte(data))

		require.NoError(t, err)
		require.Len(t, result.Rows, 1)
		assert.Equal(t, map[string]string{
			"Date":        "2024-01-15",
			"Description": "Dinner, drinks",
			"Amount":      "1,234.50",
		}, texts(result.Rows[0]))
	})

	t.Run("reports column count mismatch and continues", func(t *testing.T) {
		data := `Date,Description,Amount
2024-01-01,One,-1.00
2024-01-02,Two,-2.00
2024-01-03,Three
2024-01-04,Four,-4.00
2024-01-05,Five,-5.00`

		result, err := NewCSVParser().Parse(ctx, []byte(data))

		require.NoError(t, err)
		assert.Len(t, result.Rows, 4)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 3, result.Errors[0].Row)
		assert.Equal(t, "Row 3: column count mismatch: expected 3 fields, got 2", result.Errors[0].Error())
		assert.Equal(t, 5, result.Meta.DataRows)

		var lines []int
		for _, r := range result.Rows {
			lines = append(lines, r.Line)
		}
		assert.Equal(t, []int{1, 2, 4, 5}, lines)
	})

	t.Run("skips preamble and sniffs semicolons", func(t *testing.T) {
		data := "Account Statement\nAccount: 1234\n\nDate;Narration;Debit;Credit\n15/01/2024;Coffee;4,50;\n16/01/2024;Salary;;5.000,00\n"

		result, err := NewCSVParser().Parse(ctx, []byte(data))

		require.NoError(t, err)
		assert.Equal(t, ";", result.Meta.Delimiter)
		assert.Equal(t, []string{"Date", "Narration", "Debit", "Credit"}, result.Meta.Headers)
		require.Len(t, result.Rows, 2)
		assert.Equal(t, "4,50", result.Rows[0].Get("Debit").Text())
		assert.True(t, result.Rows[0].Get("Credit").IsNull())
	})

	t.Run("ignores blank records", func(t *testing.T) {
		data := "Date,Description,Amount\n2024-01-15,Coffee,-4.50\n,,\n\n2024-01-16,Tea,-3.00\n"

		result, err := NewCSVParser().Parse(ctx, []byte(data))

		require.NoError(t, err)
		require.Len(t, result.Rows, 2)
		assert.Empty(t, result.Errors)
		assert.Equal(t, 2, result.Rows[1].Line)
	})

	t.Run("decodes Windows-1252 and strips BOM", func(t *testing.T) {
		data := []byte("\xEF\xBB\xBFDate,Description,Amount\n2024-01-15,Caf\xe9,-4.50\n")

		result, err := NewCSVParser().Parse(ctx, data)

		require.NoError(t, err)
		require.Len(t, result.Rows, 1)
		assert.Equal(t, "Date", result.Meta.Headers[0])
		assert.Equal(t, "Café", result.Rows[0].Get("Description").Text())
	})

	t.Run("empty file is not fatal", func(t *testing.T) {
		result, err := NewCSVParser().Parse(ctx, []byte("  \n"))

		require.NoError(t, err)
		assert.Empty(t, result.Rows)
		assert.Equal(t, []string{WarnEmptyFile}, result.Warnings)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewCSVParser().Parse(cancelled, generateCSVData(10))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestUniqueHeaders(t *testing.T) {
	assert.Equal(t,
		[]string{"Amount", "amount_2", "column_3", "Date"},
		uniqueHeaders([]string{" Amount ", "amount", " ", "Date"}),
	)
}

func newWorkbook(t *testing.T, cells map[string]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for cell, v := range cells {
		require.NoError(t, f.SetCellValue("Sheet1", cell, v))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestExcelParser_Parse(t *testing.T) {
	ctx := context.Background()

	t.Run("reads first sheet with typed cells", func(t *testing.T) {
		data := newWorkbook(t, map[string]any{
			"A1": "Txn Date", "B1": "Narration", "C1": "Amount",
			"A2": 45306, "B2": "Coffee Purchase", "C2": -4.5,
			"A3": "2024-01-16", "B3": "Salary Deposit", "C3": 3000,
		})

		result, err := NewExcelParser().Parse(ctx, data)

		require.NoError(t, err)
		assert.Equal(t, "Sheet1", result.Meta.Sheet)
		assert.Equal(t, []string{"Txn Date", "Narration", "Amount"}, result.Meta.Headers)
		require.Len(t, result.Rows, 2)

		first := result.Rows[0]
		assert.Equal(t, "2024-01-15", first.Get("Txn Date").Text())
		assert.Equal(t, record.KindString, first.Get("Narration").Kind())
		amount, ok := first.Get("Amount").Float()
		require.True(t, ok)
		assert.InDelta(t, -4.5, amount, 1e-9)

		assert.Equal(t, "2024-01-16", result.Rows[1].Get("Txn Date").Text())
	})

	t.Run("omits blank rows without counting them", func(t *testing.T) {
		data := newWorkbook(t, map[string]any{
			"A1": "Date", "B1": "Description", "C1": "Amount",
			"A2": "2024-01-15", "B2": "Coffee", "C2": -4.5,
			"A4": "2024-01-17", "B4": "Tea", "C4": -3,
		})

		result, err := NewExcelParser().Parse(ctx, data)

		require.NoError(t, err)
		require.Len(t, result.Rows, 2)
		assert.Empty(t, result.Errors)
		assert.Equal(t, 1, result.Rows[0].Line)
		assert.Equal(t, 3, result.Rows[1].Line)
		assert.Equal(t, 2, result.Meta.DataRows)
	})

	t.Run("drops blank headers", func(t *testing.T) {
		data := newWorkbook(t, map[string]any{
			"A1": "Date", "C1": "Amount",
			"A2": "2024-01-15", "B2": "ignored", "C2": 10,
		})

		result, err := NewExcelParser().Parse(ctx, data)

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Amount"}, result.Meta.Headers)
		require.Len(t, result.Rows, 1)
		assert.Equal(t, []string{"Date", "Amount"}, result.Rows[0].Columns())
	})

	t.Run("empty sheet", func(t *testing.T) {
		result, err := NewExcelParser().Parse(ctx, newWorkbook(t, nil))

		require.NoError(t, err)
		assert.Empty(t, result.Rows)
		assert.Equal(t, []string{WarnSheetEmpty}, result.Warnings)
	})

	t.Run("corrupt archive is fatal", func(t *testing.T) {
		_, err := NewExcelParser().Parse(ctx, []byte("PK\x03\x04 not really a zip"))
		assert.ErrorIs(t, err, ErrCorruptFile)
	})
}

type stubExtractor struct {
	text  string
	pages int
	err   error
}

func (s stubExtractor) ExtractText([]byte) (string, int, error) {
	return s.text, s.pages, s.err
}

func TestPDFParser_ParseText(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		line     string
		want     map[string]string
		template string
	}{
		{
			name:     "date amount description",
			line:     "15/01/2024 1,234.50 Salary Credit",
			want:     map[string]string{"date": "2024-01-15", "description": "Salary Credit", "amount": "1,234.50"},
			template: "date_amount_description",
		},
		{
			name:     "date description amount",
			line:     "2024-01-15   Coffee Purchase   -4.50",
			want:     map[string]string{"date": "2024-01-15", "description": "Coffee Purchase", "amount": "-4.50"},
			template: "date_description_amount",
		},
		{
			name:     "description date amount",
			line:     "Netflix Subscription 15-01-2024 (649.00)",
			want:     map[string]string{"date": "2024-01-15", "description": "Netflix Subscription", "amount": "(649.00)"},
			template: "description_date_amount",
		},
		{
			name:     "textual month",
			line:     "15 Jan 2024 Swiggy Order ₹350.00",
			want:     map[string]string{"date": "2024-01-15", "description": "Swiggy Order", "amount": "₹350.00"},
			template: "date_description_amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewPDFParser(pdfOpts).ParseText(ctx, tt.line)

			require.NoError(t, err)
			require.Len(t, result.Rows, 1)
			assert.Equal(t, tt.want, texts(result.Rows[0]))
			assert.Equal(t, 1, result.Meta.TemplateHits[tt.template])
		})
	}

	t.Run("skips lines matching no template", func(t *testing.T) {
		text := "HDFC BANK LTD\nStatement of account\n\n15/01/2024 Coffee -4.50\nPage 1 of 2\n16/01/2024 Tea -3.00\n"

		result, err := NewPDFParser(pdfOpts).ParseText(ctx, text)

		require.NoError(t, err)
		require.Len(t, result.Rows, 2)
		assert.Equal(t, 5, result.Meta.LinesScanned)
		assert.Equal(t, 2, result.Meta.LinesMatched)
		assert.Equal(t, 2, result.Rows[1].Line)
		assert.Empty(t, result.Warnings)
	})

	t.Run("decimal comma amount is kept as written", func(t *testing.T) {
		opts := pdfOpts
		opts.DecimalComma = true

		result, err := NewPDFParser(opts).ParseText(ctx, "15/01/2024 Coffee Shop -4,50")

		require.NoError(t, err)
		require.Len(t, result.Rows, 1)
		assert.Equal(t, "-4,50", result.Rows[0].Get(PDFColumnAmount).Text())

		tx, err := normalizer.NewNormalizer(opts).Normalize(result.Rows[0], pdfMapping(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "-4.5", tx.Amount.String())
		assert.False(t, tx.IsIncome)
	})

	t.Run("no rows is not fatal", func(t *testing.T) {
		result, err := NewPDFParser(pdfOpts).ParseText(ctx, "Opening balance\nClosing balance\n")

		require.NoError(t, err)
		assert.Empty(t, result.Rows)
		assert.Equal(t, []string{WarnNoTransaction}, result.Warnings)
	})
}

func pdfMapping() mapping.ColumnMapping {
	return mapping.FromColumns(map[mapping.Field]string{
		mapping.FieldDate:        PDFColumnDate,
		mapping.FieldDescription: PDFColumnDescription,
		mapping.FieldAmount:      PDFColumnAmount,
	})
}

func TestPDFParser_Parse(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-PDF bytes", func(t *testing.T) {
		_, err := NewPDFParser(pdfOpts).Parse(ctx, []byte("Date,Description\n"))
		assert.ErrorIs(t, err, ErrNotPDF)
	})

	t.Run("uses the extractor and records pages", func(t *testing.T) {
		p := NewPDFParser(pdfOpts).WithExtractor(stubExtractor{text: "15/01/2024 Coffee -4.50", pages: 3})

		result, err := p.Parse(ctx, []byte("%PDF-1.7 ..."))

		require.NoError(t, err)
		assert.Len(t, result.Rows, 1)
		assert.Equal(t, 3, result.Meta.Pages)
	})

	t.Run("extractor failure is fatal", func(t *testing.T) {
		p := NewPDFParser(pdfOpts).WithExtractor(stubExtractor{err: ErrCorruptFile})

		_, err := p.Parse(ctx, []byte("%PDF-1.4"))
		assert.True(t, errors.Is(err, ErrCorruptFile))
	})

	t.Run("default extractor reports garbage as corrupt", func(t *testing.T) {
		_, err := NewPDFParser(pdfOpts).Parse(ctx, []byte("%PDF-1.4 truncated"))
		assert.ErrorIs(t, err, ErrCorruptFile)
	})
}
