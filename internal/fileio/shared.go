package fileio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"catalog-recon/internal/reconcile/model"
)

// ReadSourceItems picks a parser by extension and returns the ordered source
// items of one lot. headerRow is 1-based and ignored for JSON.
func ReadSourceItems(r io.Reader, filename string, headerRow int) ([]model.SourceItem, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return readJSONItems(r)
	case ".csv":
		rows, err := readCSV(r, headerRow)
		if err != nil {
			return nil, err
		}
		return mapSourceItems(rows), nil
	case ".xlsx":
		rows, err := readXLSX(r, headerRow)
		if err != nil {
			return nil, err
		}
		return mapSourceItems(rows), nil
	case ".xls":
		rows, err := readXLS(r, headerRow)
		if err != nil {
			return nil, err
		}
		return mapSourceItems(rows), nil
	default:
		return nil, fmt.Errorf("unsupported file: %s", filename)
	}
}

// pickHeader takes the header row, substituting "Column N" for blanks.
func pickHeader(rows [][]string, headerRow int) []string {
	idx := headerRow - 1
	if idx < 0 || idx >= len(rows) {
		idx = 0
	}
	h := rows[idx]
	out := make([]string, len(h))
	for i, v := range h {
		v = strings.TrimSpace(v)
		if v == "" {
			v = fmt.Sprintf("Column %d", i+1)
		}
		out[i] = v
	}
	return out
}

// rowsToMaps converts AoA into []map keyed by header, skipping fully empty rows.
func rowsToMaps(rows [][]string, headers []string, headerRow int) []map[string]string {
	start := headerRow
	var out []map[string]string
	for r := start; r < len(rows); r++ {
		rec := rows[r]
		m := map[string]string{}
		for c := 0; c < len(headers); c++ {
			var v string
			if c < len(rec) {
				v = rec[c]
			}
			m[headers[c]] = v
		}
		empty := true
		for _, v := range m {
			if strings.TrimSpace(v) != "" {
				empty = false
				break
			}
		}
		if !empty {
			out = append(out, m)
		}
	}
	return out
}
