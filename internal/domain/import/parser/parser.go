// Package parser turns statement files (CSV, XLSX/XLS, PDF) into loosely-typed rows.
// Parsers never fail a whole file for a bad row: row problems are collected as
// RowErrors and parsing continues. Only files that cannot be opened at all
// return an error.
package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/record"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/sniffer"
)

var (
	// ErrCorruptFile means the bytes could not be decoded as the detected kind.
	ErrCorruptFile = errors.New("file is corrupt or unreadable")
	// ErrNotPDF means a file routed to the PDF parser lacks the %PDF header.
	ErrNotPDF = errors.New("file is not a PDF document")
)

// Non-fatal file-level outcomes reported in Result.Warnings.
const (
	WarnEmptyFile     = "file is empty"
	WarnNoSheets      = "no sheets"
	WarnSheetNotFound = "sheet not found"
	WarnSheetEmpty    = "sheet empty"
	WarnNoHeaders     = "no valid headers"
	WarnNoTransaction = "no transaction data found"
)

// Parser reads one file into rows.
type Parser interface {
	Parse(ctx context.Context, data []byte) (*Result, error)
}

// RowError represents a parsing error for a specific data row
type RowError struct {
	Row     int
	Column  string
	Message string
	RawData string
}

func (e RowError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Message)
}

// Meta describes what the parser saw.
type Meta struct {
	Delimiter    string         `json:"delimiter,omitempty"`
	Headers      []string       `json:"headers,omitempty"`
	Fingerprint  string         `json:"fingerprint,omitempty"`
	Sheet        string         `json:"sheet,omitempty"`
	Legacy       bool           `json:"legacy,omitempty"`
	Pages        int            `json:"pages,omitempty"`
	LinesScanned int            `json:"lines_scanned,omitempty"`
	LinesMatched int            `json:"lines_matched,omitempty"`
	TemplateHits map[string]int `json:"template_hits,omitempty"`
	DataRows     int            `json:"data_rows"`
}

// Result contains the rows of one file plus per-row and file-level problems.
type Result struct {
	Rows     []record.RawRow
	Errors   []RowError
	Warnings []string
	Meta     Meta
}

func emptyResult(warning string) *Result {
	return &Result{Warnings: []string{warning}}
}

// CSVParser parses delimited text with a header row.
type CSVParser struct{}

// NewCSVParser creates a CSV parser. Delimiter and header row are sniffed per file.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse reads a delimited payload. Records whose field count differs from the
// header are reported and skipped; blank records are ignored.
func (p *CSVParser) Parse(ctx context.Context, data []byte) (*Result, error) {
	data = sniffer.NormalizeEncoding(data)

	cfg, err := sniffer.DetectConfig(data)
	switch {
	case errors.Is(err, sniffer.ErrEmptyFile):
		return emptyResult(WarnEmptyFile), nil
	case errors.Is(err, sniffer.ErrNoHeadersFound):
		return emptyResult(WarnNoHeaders), nil
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}

	var reader io.Reader = bytes.NewReader(data)
	if cfg.SkipLines > 0 {
		reader = skipLines(reader, cfg.SkipLines)
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = cfg.Delimiter
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1 // mismatches are reported per row

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrCorruptFile, err)
	}
	headers := uniqueHeaders(header)

	result := &Result{
		Rows: make([]record.RawRow, 0, 256),
		Meta: Meta{
			Delimiter:   string(cfg.Delimiter),
			Headers:     headers,
			Fingerprint: sniffer.Fingerprint(headers),
		},
	}

	rowNum := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fields, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowNum++
			result.Errors = append(result.Errors, RowError{Row: rowNum, Message: err.Error()})
			continue
		}
		if blankRecord(fields) {
			continue
		}
		rowNum++

		if len(fields) != len(headers) {
			result.Errors = append(result.Errors, RowError{
				Row:     rowNum,
				Message: fmt.Sprintf("column count mismatch: expected %d fields, got %d", len(headers), len(fields)),
				RawData: strings.Join(fields, string(cfg.Delimiter)),
			})
			continue
		}

		row := record.NewRawRow(rowNum)
		for i, h := range headers {
			row.Set(h, record.String(fields[i]))
		}
		result.Rows = append(result.Rows, row)
	}

	result.Meta.DataRows = rowNum
	return result, nil
}

// uniqueHeaders trims header names, names blank ones by position and suffixes
// repeats (_2, _3) so every column has its own key.
func uniqueHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		seen[strings.ToLower(h)]++
		if n := seen[strings.ToLower(h)]; n > 1 {
			h = h + "_" + strconv.Itoa(n)
		}
		headers[i] = h
	}
	return headers
}

func blankRecord(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// skipLines returns a reader that skips the first n lines
func skipLines(r io.Reader, n int) io.Reader {
	return &lineSkipper{reader: r, skip: n}
}

type lineSkipper struct {
	reader  io.Reader
	skip    int
	skipped bool
}

func (ls *lineSkipper) Read(p []byte) (int, error) {
	if !ls.skipped {
		buf := make([]byte, 1)
		lines := 0
		for lines < ls.skip {
			n, err := ls.reader.Read(buf)
			if err != nil {
				return 0, err
			}
			if n > 0 && buf[0] == '\n' {
				lines++
			}
		}
		ls.skipped = true
	}
	return ls.reader.Read(p)
}
