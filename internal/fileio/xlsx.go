package fileio

import (
	"bytes"
	"errors"
	"io"

	excelize "github.com/xuri/excelize/v2"
)

// readXLSX loads the first sheet of a modern workbook. Municipal portals
// often stack title rows above the real header, so headerRow is honored
// instead of assuming row 1. Cells come back trimmed.
func readXLSX(r io.Reader, headerRow int) ([]map[string]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("xlsx: workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	for _, row := range rows {
		for j, v := range row {
			row[j] = normalizeCell(v)
		}
	}
	h := pickHeader(rows, headerRow)
	return rowsToMaps(rows, h, headerRow), nil
}
