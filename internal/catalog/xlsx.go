package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX parses the first sheet of an XLSX catalog with the same header rules as Read.
func ReadXLSX(ctx context.Context, path string, opts Options) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx file %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx file %s has no sheets", path)
	}
	sheet := sheets[0]

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", sheet, err)
	}
	defer rows.Close()

	next := func() ([]string, error) {
		if !rows.Next() {
			if err := rows.Error(); err != nil {
				return nil, fmt.Errorf("error iterating rows in %s: %w", path, err)
			}
			return nil, io.EOF
		}
		record, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row from %s: %w", path, err)
		}
		return record, nil
	}

	header, err := next()
	if err != nil {
		return nil, fmt.Errorf("failed to read xlsx header: %w", err)
	}

	return parseRecords(ctx, header, next, opts)
}
