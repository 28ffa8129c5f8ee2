package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/record"
)

// Currency markers removed before parsing. Longer tokens first.
var currencyTokens = []string{"Rs.", "INR", "USD", "EUR", "GBP", "Rs", "₹", "$", "€", "£"}

var plainNumber = regexp.MustCompile(`^(?:\d+(?:\.\d+)?|\.\d+)$`)

// ParseAmount parses a signed amount. Parentheses, a leading or trailing '-'
// and a "DR" suffix mean negative; a "CR" suffix is positive.
func ParseAmount(raw string, opts Options) (decimal.Decimal, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	negative := false

	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		negative = true
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "CR"):
		s = s[:len(s)-2]
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}

	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = true
		s = s[:len(s)-1]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	if opts.DecimalComma {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	if !plainNumber.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, strings.TrimSpace(raw))
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, strings.TrimSpace(raw))
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// parseAmountValue reads a required amount cell.
func parseAmountValue(v record.Value, opts Options) (decimal.Decimal, error) {
	if f, ok := v.Float(); ok {
		return decimal.NewFromFloat(f), nil
	}
	return ParseAmount(v.Text(), opts)
}

// optionalAmount reads a debit or credit cell; anything unparseable is zero.
func optionalAmount(v record.Value, opts Options) decimal.Decimal {
	if v.IsNull() {
		return decimal.Zero
	}
	d, err := parseAmountValue(v, opts)
	if err != nil {
		return decimal.Zero
	}
	return d
}
