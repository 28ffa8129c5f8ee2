// Package normalizer turns raw statement rows into canonical transactions.
package normalizer

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/dedupe"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/mapping"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/record"
)

// Row failure reasons. The messages are shown to users verbatim.
var (
	ErrInvalidDate        = errors.New("invalid or missing date")
	ErrMissingDescription = errors.New("missing description")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrNoAmount           = errors.New("no amount found")
)

// Options tune locale-dependent parsing.
type Options struct {
	DecimalComma  bool // amounts written 1.234,56
	MonthFirst    bool // ambiguous NN/NN/YYYY read as MM/DD
	InferMerchant bool // derive merchant from description when no column exists
	Now           func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Transaction is the canonical output of the pipeline.
type Transaction struct {
	Row                int             `json:"row"`
	Date               string          `json:"date"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	IsIncome           bool            `json:"is_income"`
	Merchant           string          `json:"merchant,omitempty"`
	SourceCategory     string          `json:"source_category,omitempty"`
	Category           string          `json:"category,omitempty"`
	GSTRate            *float64        `json:"gst_rate,omitempty"`
	CategoryConfidence float64         `json:"category_confidence"`
	MatchedBy          string          `json:"matched_by,omitempty"`
	RuleID             string          `json:"rule_id,omitempty"`
	DedupeHash         string          `json:"dedupe_hash"`
	Raw                record.RawRow   `json:"raw"`
}

// FieldError explains why a row could not be normalized.
type FieldError struct {
	Field mapping.Field
	Raw   string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Raw == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %q", e.Err.Error(), e.Raw)
}

func (e *FieldError) Unwrap() error { return e.Err }

var multiSpace = regexp.MustCompile(`\s+`)

// Normalizer converts RawRows using a column mapping.
type Normalizer struct {
	opts      Options
	merchants *MerchantSanitizer
}

// NewNormalizer creates a normalizer with the given options.
func NewNormalizer(opts Options) *Normalizer {
	return &Normalizer{
		opts:      opts,
		merchants: NewMerchantSanitizer(),
	}
}

// Normalize produces a transaction from one row, or a *FieldError.
func (n *Normalizer) Normalize(row record.RawRow, m mapping.ColumnMapping, userID string) (*Transaction, error) {
	dateVal := cell(row, m, mapping.FieldDate)
	if dateVal.IsNull() {
		return nil, &FieldError{Field: mapping.FieldDate, Err: ErrInvalidDate}
	}
	date, err := parseDateValue(dateVal, n.opts)
	if err != nil {
		return nil, &FieldError{Field: mapping.FieldDate, Raw: dateVal.Text(), Err: ErrInvalidDate}
	}

	description := cleanText(cell(row, m, mapping.FieldDescription).Text())
	if description == "" {
		return nil, &FieldError{Field: mapping.FieldDescription, Err: ErrMissingDescription}
	}

	amount, err := n.amount(row, m)
	if err != nil {
		return nil, err
	}

	isoDate := date.Format(ISODate)
	tx := &Transaction{
		Row:            row.Line,
		Date:           isoDate,
		Description:    description,
		Amount:         amount,
		IsIncome:       amount.IsPositive(),
		Merchant:       cleanText(cell(row, m, mapping.FieldMerchant).Text()),
		SourceCategory: cleanText(cell(row, m, mapping.FieldCategory).Text()),
		GSTRate:        parseRate(cell(row, m, mapping.FieldGST)),
		DedupeHash:     dedupe.Hash(userID, isoDate, description, amount),
		Raw:            row,
	}

	if tx.Merchant == "" && n.opts.InferMerchant && !m.Has(mapping.FieldMerchant) {
		if info := n.merchants.Sanitize(description); info.Known {
			tx.Merchant = info.NormalizedName
		}
	}

	return tx, nil
}

// amount applies single-amount precedence, then debit/credit derivation.
func (n *Normalizer) amount(row record.RawRow, m mapping.ColumnMapping) (decimal.Decimal, error) {
	if v := cell(row, m, mapping.FieldAmount); !v.IsNull() {
		d, err := parseAmountValue(v, n.opts)
		if err != nil {
			return decimal.Zero, &FieldError{Field: mapping.FieldAmount, Raw: v.Text(), Err: ErrInvalidAmount}
		}
		return d, nil
	}

	debit := optionalAmount(cell(row, m, mapping.FieldDebit), n.opts)
	credit := optionalAmount(cell(row, m, mapping.FieldCredit), n.opts)

	switch {
	case !debit.IsZero():
		return debit.Abs().Neg(), nil
	case !credit.IsZero():
		return credit.Abs(), nil
	}
	return decimal.Zero, &FieldError{Field: mapping.FieldAmount, Err: ErrNoAmount}
}

func cell(row record.RawRow, m mapping.ColumnMapping, f mapping.Field) record.Value {
	col, ok := m.Column(f)
	if !ok {
		return record.Null()
	}
	return row.Get(col)
}

// parseRate reads a percentage such as "18", "18%" or "0.18"; fractions are scaled.
func parseRate(v record.Value) *float64 {
	if v.IsNull() {
		return nil
	}
	rate, ok := v.Float()
	if !ok {
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v.Text()), "%"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		rate = f
	}
	if rate < 0 {
		return nil
	}
	if rate > 0 && rate < 1 {
		rate *= 100
	}
	return &rate
}

func cleanText(s string) string {
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}
