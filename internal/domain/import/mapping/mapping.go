// Package mapping infers which source column holds each canonical transaction field.
package mapping

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Field is a canonical transaction field.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldDebit       Field = "debit"
	FieldCredit      Field = "credit"
	FieldMerchant    Field = "merchant"
	FieldCategory    Field = "category"
	FieldGST         Field = "gst"
)

// Fields lists canonical fields in mapping order.
var Fields = []Field{
	FieldDate, FieldDescription, FieldAmount, FieldDebit,
	FieldCredit, FieldMerchant, FieldCategory, FieldGST,
}

// aliases are tried in order against normalized headers; the first header a
// pattern matches is taken.
var aliases = map[Field][]*regexp.Regexp{
	FieldDate: compile(
		`^date$`,
		`^txn date$`,
		`^posting( date)?$`,
		`^transaction date$`,
		`^value date$`,
		`^trans date$`,
	),
	FieldDescription: compile(
		`^description$`,
		`^narration$`,
		`^details$`,
		`^particulars$`,
		`^transaction details$`,
		`^reference$`,
		`^remarks?$`,
		`^memo$`,
	),
	FieldAmount: compile(
		`^amount$`,
		`^value$`,
		`^sum$`,
		`^total$`,
		`^transaction amount$`,
	),
	FieldDebit: compile(
		`^debits?( amount| amt)?$`,
		`^dr( amount| amt)?$`,
		`^withdrawals?( amount| amt)?$`,
		`^outgoing$`,
		`^paid( out)?$`,
	),
	FieldCredit: compile(
		`^credits?( amount| amt)?$`,
		`^cr( amount| amt)?$`,
		`^deposits?( amount| amt)?$`,
		`^incoming$`,
		`^received$`,
	),
	FieldMerchant: compile(
		`^merchant( name)?$`,
		`^vendor$`,
		`^payee$`,
		`^counterparty$`,
		`^party$`,
		`^beneficiary$`,
	),
	FieldCategory: compile(
		`^category$`,
		`^category name$`,
	),
	FieldGST: compile(
		`^gst( rate)?$`,
		`^tax$`,
		`^vat( rate)?$`,
		`^cgst$`,
		`^sgst$`,
		`^igst$`,
		`^tax rate$`,
	),
}

// Last-resort substring tests for unmapped required fields.
var (
	fuzzyDate        = regexp.MustCompile(`(?i)date`)
	fuzzyDescription = regexp.MustCompile(`(?i)desc|narr|part|detail`)
	fuzzyAmount      = regexp.MustCompile(`(?i)amount|debit|credit|value|sum`)
)

var (
	bracketed  = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)
	separators = strings.NewReplacer("_", " ", "-", " ")
)

// ColumnMapping associates canonical fields with source column identifiers.
// It is immutable once built.
type ColumnMapping struct {
	columns map[Field]string
}

// Map infers a mapping from the literal header row of a file.
func Map(headers []string) ColumnMapping {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeHeader(h)
	}

	columns := make(map[Field]string)
	used := make(map[int]bool)

	for _, field := range Fields {
		if idx := matchAlias(aliases[field], normalized, used); idx >= 0 {
			columns[field] = strings.TrimSpace(headers[idx])
			used[idx] = true
		}
	}

	fuzzyPass(columns, headers, used)

	return ColumnMapping{columns: columns}
}

// FromColumns builds a mapping from explicit assignments. Empty names are ignored.
func FromColumns(columns map[Field]string) ColumnMapping {
	m := make(map[Field]string, len(columns))
	for f, col := range columns {
		if col != "" {
			m[f] = col
		}
	}
	return ColumnMapping{columns: m}
}

// Column returns the source column for field.
func (m ColumnMapping) Column(field Field) (string, bool) {
	col, ok := m.columns[field]
	return col, ok
}

// Has reports whether field is mapped.
func (m ColumnMapping) Has(field Field) bool {
	_, ok := m.columns[field]
	return ok
}

// HasAmountSource reports whether a signed amount can be derived.
func (m ColumnMapping) HasAmountSource() bool {
	return m.Has(FieldAmount) || m.Has(FieldDebit) || m.Has(FieldCredit)
}

// Missing lists the required fields that could not be mapped.
func (m ColumnMapping) Missing() []string {
	var missing []string
	if !m.Has(FieldDate) {
		missing = append(missing, string(FieldDate))
	}
	if !m.Has(FieldDescription) {
		missing = append(missing, string(FieldDescription))
	}
	if !m.HasAmountSource() {
		missing = append(missing, string(FieldAmount))
	}
	return missing
}

func (m ColumnMapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.columns)
}

// NormalizeHeader lower-cases a header, treats '_' and '-' as spaces, drops
// bracketed suffixes such as "(INR)" and trailing punctuation.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = bracketed.ReplaceAllString(h, "")
	h = separators.Replace(h)
	h = strings.TrimRight(h, ".: ")
	return strings.Join(strings.Fields(h), " ")
}

func matchAlias(patterns []*regexp.Regexp, headers []string, used map[int]bool) int {
	for _, re := range patterns {
		for i, h := range headers {
			if used[i] || h == "" {
				continue
			}
			if re.MatchString(h) {
				return i
			}
		}
	}
	return -1
}

func fuzzyPass(columns map[Field]string, headers []string, used map[int]bool) {
	claim := func(field Field, re *regexp.Regexp) {
		if _, ok := columns[field]; ok {
			return
		}
		for i, h := range headers {
			if !used[i] && re.MatchString(h) {
				columns[field] = strings.TrimSpace(h)
				used[i] = true
				return
			}
		}
	}

	claim(FieldDate, fuzzyDate)
	claim(FieldDescription, fuzzyDescription)

	_, hasAmount := columns[FieldAmount]
	_, hasDebit := columns[FieldDebit]
	_, hasCredit := columns[FieldCredit]
	if hasAmount || hasDebit || hasCredit {
		return
	}

	for i, h := range headers {
		if used[i] || !fuzzyAmount.MatchString(h) {
			continue
		}
		lower := strings.ToLower(h)
		field := FieldAmount
		switch {
		case strings.Contains(lower, "debit"):
			field = FieldDebit
		case strings.Contains(lower, "credit"):
			field = FieldCredit
		}
		if _, ok := columns[field]; ok {
			continue
		}
		columns[field] = strings.TrimSpace(h)
		used[i] = true
	}
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}
