package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/record"
)

// ExcelParser parses the first worksheet of a workbook. Legacy BIFF (.xls)
// workbooks are read through the legacy reader.
type ExcelParser struct {
	legacy bool
}

// NewExcelParser creates a parser for OOXML workbooks.
func NewExcelParser() *ExcelParser {
	return &ExcelParser{}
}

// NewLegacyExcelParser creates a parser for BIFF .xls workbooks.
func NewLegacyExcelParser() *ExcelParser {
	return &ExcelParser{legacy: true}
}

// Parse reads sheet 1 only. Row 0 holds the headers.
func (p *ExcelParser) Parse(ctx context.Context, data []byte) (*Result, error) {
	if p.legacy {
		return parseLegacyWorkbook(ctx, data)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open Excel file: %v", ErrCorruptFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return emptyResult(WarnNoSheets), nil
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		if errors.As(err, new(excelize.ErrSheetNotExist)) {
			return emptyResult(WarnSheetNotFound), nil
		}
		return nil, fmt.Errorf("%w: failed to read sheet %s: %v", ErrCorruptFile, sheet, err)
	}

	grid := make([][]record.Value, len(rows))
	for r, cells := range rows {
		grid[r] = make([]record.Value, len(cells))
		for c, raw := range cells {
			grid[r][c] = p.cellValue(f, sheet, r, c, raw)
		}
	}

	result, err := gridToRows(ctx, grid)
	if err != nil {
		return nil, err
	}
	result.Meta.Sheet = sheet
	return result, nil
}

// cellValue types a cell: strings stay text, everything numeric becomes a Number.
func (p *ExcelParser) cellValue(f *excelize.File, sheet string, row, col int, raw string) record.Value {
	if strings.TrimSpace(raw) == "" {
		return record.Null()
	}

	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err == nil {
		typ, err := f.GetCellType(sheet, name)
		if err == nil && (typ == excelize.CellTypeSharedString || typ == excelize.CellTypeInlineString) {
			return record.String(raw)
		}
	}
	return typedValue(raw)
}

// typedValue classifies text read from a spreadsheet cell.
func typedValue(raw string) record.Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return record.Null()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return record.Number(f)
	}
	return record.String(raw)
}

// gridToRows applies the shared worksheet rules: row 0 is the header row,
// blank headers are dropped, numeric cells under a "date" header are read as
// spreadsheet serials and blank rows are omitted without being counted.
func gridToRows(ctx context.Context, grid [][]record.Value) (*Result, error) {
	if len(grid) == 0 {
		return emptyResult(WarnSheetEmpty), nil
	}

	type column struct {
		index  int
		name   string
		isDate bool
	}

	raw := make([]string, len(grid[0]))
	for i, v := range grid[0] {
		raw[i] = v.Text()
	}
	named := uniqueHeaders(raw)

	var columns []column
	var headers []string
	for i, v := range grid[0] {
		if v.IsNull() {
			continue
		}
		columns = append(columns, column{
			index:  i,
			name:   named[i],
			isDate: strings.Contains(strings.ToLower(named[i]), "date"),
		})
		headers = append(headers, named[i])
	}
	if len(columns) == 0 {
		return emptyResult(WarnNoHeaders), nil
	}

	result := &Result{
		Rows: make([]record.RawRow, 0, len(grid)-1),
		Meta: Meta{Headers: headers},
	}

	for r := 1; r < len(grid); r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row := record.NewRawRow(r)
		for _, col := range columns {
			v := record.Null()
			if col.index < len(grid[r]) {
				v = grid[r][col.index]
			}
			if col.isDate {
				v = serialToDate(v)
			}
			row.Set(col.name, v)
		}
		if row.Empty() {
			continue
		}
		result.Rows = append(result.Rows, row)
	}

	result.Meta.DataRows = len(result.Rows)
	return result, nil
}

// serialToDate converts a numeric date cell to an ISO date string.
func serialToDate(v record.Value) record.Value {
	serial, ok := v.Float()
	if !ok || serial < 1 {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	return record.String(t.Format("2006-01-02"))
}
