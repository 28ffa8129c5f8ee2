package money

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// StatementGenerator produces realistic bank statement rows for tests and
// benchmarks using gofakeit.
type StatementGenerator struct {
	faker *gofakeit.Faker
	start time.Time
}

// NewStatementGenerator creates a generator with a specific seed for
// reproducibility. Dates fall in the 365 days after start.
func NewStatementGenerator(seed int64, start time.Time) *StatementGenerator {
	return &StatementGenerator{
		faker: gofakeit.New(seed),
		start: start,
	}
}

// StatementRow is one generated line.
type StatementRow struct {
	Date        time.Time
	Description string
	Merchant    string
	Amount      decimal.Decimal // negative for expenses
}

var merchants = []string{
	"Swiggy", "Zomato", "Amazon", "Flipkart", "Uber", "Ola",
	"Netflix", "Spotify", "BigBasket", "Apollo Pharmacy", "IRCTC",
	"Airtel", "Jio", "Starbucks", "Myntra", "MakeMyTrip",
}

var expenseDescriptions = []string{
	"UPI-%s-REF",
	"POS %s",
	"%s order",
	"Payment to %s",
	"%s subscription",
}

var incomeDescriptions = []string{
	"Salary credit",
	"Interest credit",
	"Refund",
	"Dividend payout",
	"NEFT transfer in",
}

// Row generates one statement row. Roughly one in five rows is income.
func (g *StatementGenerator) Row() StatementRow {
	date := g.start.AddDate(0, 0, g.faker.Number(0, 364))

	if g.faker.Number(1, 5) == 1 {
		cents := int64(g.faker.Number(100000, 15000000))
		return StatementRow{
			Date:        date,
			Description: g.pick(incomeDescriptions),
			Amount:      decimal.New(cents, -2),
		}
	}

	merchant := g.pick(merchants)
	cents := int64(g.faker.Number(100, 2500000))
	return StatementRow{
		Date:        date,
		Description: fmt.Sprintf(g.pick(expenseDescriptions), merchant),
		Merchant:    merchant,
		Amount:      decimal.New(-cents, -2),
	}
}

// Rows generates n rows.
func (g *StatementGenerator) Rows(n int) []StatementRow {
	rows := make([]StatementRow, n)
	for i := range rows {
		rows[i] = g.Row()
	}
	return rows
}

// CSV renders rows as a Date,Description,Amount,Merchant statement with
// DD/MM/YYYY dates.
func CSV(rows []StatementRow) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Date", "Description", "Amount", "Merchant"})
	for _, r := range rows {
		_ = w.Write([]string{
			r.Date.Format("02/01/2006"),
			r.Description,
			r.Amount.StringFixed(2),
			r.Merchant,
		})
	}
	w.Flush()
	return buf.Bytes()
}

func (g *StatementGenerator) pick(list []string) string {
	return list[g.faker.Number(0, len(list)-1)]
}
