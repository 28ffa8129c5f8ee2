package parser

import (
	"context"
	"fmt"
	"os"

	"github.com/shakinm/xlsReader/xls"

	"github.com/FACorreiaa/statement-ingest/internal/domain/import/record"
)

// parseLegacyWorkbook reads the first sheet of a BIFF workbook. The reader only
// opens files by path, so the payload goes through a temp file.
func parseLegacyWorkbook(ctx context.Context, data []byte) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%w: legacy workbook: %v", ErrCorruptFile, r)
		}
	}()

	tmpFile, err := os.CreateTemp("", "statement-*.xls")
	if err != nil {
		return nil, fmt.Errorf("failed to buffer workbook: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	if _, err := tmpFile.Write(data); err != nil {
		return nil, fmt.Errorf("failed to buffer workbook: %w", err)
	}
	tmpFile.Close()

	book, err := xls.OpenFile(tmpFile.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", ErrCorruptFile, err)
	}

	if book.GetNumberSheets() == 0 {
		return emptyResult(WarnNoSheets), nil
	}
	sheet, err := book.GetSheet(0)
	if err != nil || sheet == nil {
		return emptyResult(WarnSheetNotFound), nil
	}

	var grid [][]record.Value
	for _, row := range sheet.GetRows() {
		cols := row.GetCols()
		values := make([]record.Value, len(cols))
		for i, col := range cols {
			values[i] = typedValue(col.GetString())
		}
		grid = append(grid, values)
	}

	result, err = gridToRows(ctx, grid)
	if err != nil {
		return nil, err
	}
	result.Meta.Sheet = sheet.GetName()
	result.Meta.Legacy = true
	return result, nil
}
