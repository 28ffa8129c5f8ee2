// Package sniffer inspects delimited statement files before parsing.
// It finds the header row and delimiter, fingerprints headers for bank recognition,
// repairs encodings and probes the regional dialect of amounts and dates.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Header keywords across the statement layouts we see in the wild.
var headerKeywords = []string{
	"date", "description", "narration", "particulars", "details", "remark", "memo",
	"amount", "debit", "credit", "withdrawal", "deposit", "balance", "category",
	"merchant", "payee", "vendor", "beneficiary", "counterparty", "reference",
	"gst", "vat", "tax",
	"data mov", "descrição", "descricao", "débito", "crédito", "fecha", "importe",
}

// FileConfig holds the detected layout of a delimited file.
type FileConfig struct {
	Delimiter   rune
	SkipLines   int // metadata lines before the header
	Headers     []string
	Fingerprint string // sha256 of normalized headers
	SampleRows  [][]string
}

// Dialect is the inferred regional formatting of a file.
type Dialect struct {
	DecimalComma bool    // 1.234,56
	MonthFirst   bool    // MM/DD/YYYY
	CurrencyHint string  // ISO code when a symbol was seen
	Confidence   float64 // share of amount hints agreeing with DecimalComma
}

var (
	ErrEmptyFile      = errors.New("file is empty")
	ErrNoHeadersFound = errors.New("could not find data headers")
)

const (
	maxHeaderSearchLines = 20
	sampleRowCount       = 10
)

// DetectConfig finds the header row and delimiter of a CSV/TSV payload.
// Data must already be valid UTF-8 (see NormalizeEncoding).
func DetectConfig(data []byte) (*FileConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")
	skipLines := findHeaderRow(lines)
	headerLine := cleanLine(lines[skipLines], skipLines == 0)
	if headerLine == "" {
		return nil, ErrNoHeadersFound
	}

	delimiter, _ := detectDelimiter(headerLine)
	if delimiter == 0 {
		delimiter = ','
	}

	reader := csv.NewReader(strings.NewReader(headerLine))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	return &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		Headers:     headers,
		Fingerprint: Fingerprint(headers),
		SampleRows:  getSampleRows(data, delimiter, skipLines+1, sampleRowCount),
	}, nil
}

// NormalizeEncoding strips a UTF-8 BOM and decodes Windows-1252 bytes when the
// payload is not valid UTF-8.
func NormalizeEncoding(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

// Fingerprint hashes the normalized header names so files from the same bank
// layout share an identifier.
func Fingerprint(headers []string) string {
	normalized := make([]string, 0, len(headers))
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

// ProbeDialect infers decimal separator, date order and currency from sample values.
func ProbeDialect(amounts, dates []string) Dialect {
	dialect := Dialect{Confidence: 0.5}

	europeanHints, usHints := 0, 0
	for _, val := range amounts {
		switch hint := analyzeAmountFormat(val); {
		case hint > 0:
			europeanHints++
		case hint < 0:
			usHints++
		}
		if dialect.CurrencyHint == "" {
			dialect.CurrencyHint = currencyFromSymbol(val)
		}
	}

	dayFirst, monthFirst := false, false
	for _, val := range dates {
		switch analyzeDateOrder(val) {
		case 1:
			dayFirst = true
		case -1:
			monthFirst = true
		}
	}

	dialect.DecimalComma = europeanHints > usHints
	dialect.MonthFirst = monthFirst && !dayFirst

	if total := europeanHints + usHints; total > 0 {
		winning := max(europeanHints, usHints)
		dialect.Confidence = float64(winning) / float64(total)
	}

	return dialect
}

// analyzeAmountFormat returns >0 for European, <0 for US, 0 for ambiguous.
func analyzeAmountFormat(val string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, val)
	if cleaned == "" {
		return 0
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")

	switch {
	case hasComma && hasDot:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			return 1
		}
		return -1
	case hasComma:
		if len(cleaned)-strings.LastIndex(cleaned, ",")-1 <= 2 {
			return 1
		}
	case hasDot:
		if len(cleaned)-strings.LastIndex(cleaned, ".")-1 <= 2 {
			return -1
		}
	}
	return 0
}

// analyzeDateOrder returns 1 when the value can only be day-first, -1 when it can
// only be month-first and 0 when ambiguous or year-first.
func analyzeDateOrder(val string) int {
	parts := strings.FieldsFunc(strings.TrimSpace(val), func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) < 3 || len(parts[0]) > 2 {
		return 0
	}

	first, ok1 := leadingInt(parts[0])
	second, ok2 := leadingInt(parts[1])
	if !ok1 || !ok2 {
		return 0
	}

	switch {
	case first > 12 && first <= 31 && second <= 12:
		return 1
	case second > 12 && second <= 31 && first <= 12:
		return -1
	}
	return 0
}

func leadingInt(s string) (int, bool) {
	n, digits := 0, 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
		digits++
	}
	return n, digits > 0
}

func currencyFromSymbol(value string) string {
	switch {
	case strings.Contains(value, "₹"):
		return "INR"
	case strings.Contains(value, "€"):
		return "EUR"
	case strings.Contains(value, "£"):
		return "GBP"
	case strings.Contains(value, "$"):
		return "USD"
	}
	return ""
}

// findHeaderRow returns the index of the line with the most header keywords in
// the first lines of the file, or the first non-blank line when none has any.
func findHeaderRow(lines []string) int {
	best, bestMatches, firstNonBlank := -1, 0, -1

	for i, line := range lines {
		if i > maxHeaderSearchLines {
			break
		}

		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}
		if firstNonBlank < 0 {
			firstNonBlank = i
		}
		if _, count := detectDelimiter(line); count < 1 {
			continue
		}

		lower := strings.ToLower(line)
		matches := 0
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}

		if matches > bestMatches {
			best, bestMatches = i, matches
		}
	}

	if best < 0 {
		return max(firstNonBlank, 0)
	}
	return best
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	bestDelimiter, bestCount := rune(0), 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if count := strings.Count(line, string(d)); count > bestCount {
			bestDelimiter, bestCount = d, count
		}
	}
	return bestDelimiter, bestCount
}

// getSampleRows returns up to maxRows records starting at record startLine.
func getSampleRows(data []byte, delimiter rune, startLine, maxRows int) [][]string {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	lineNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		if lineNum >= startLine {
			rows = append(rows, record)
			if len(rows) >= maxRows {
				break
			}
		}
		lineNum++
	}

	return rows
}
