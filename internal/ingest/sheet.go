package ingest

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// sheetTable is a header-keyed view of one sheet. The first row supplies the
// headers; every data row is a map from header to raw cell text. Cells past
// the end of a short row and blank rows are dropped, so row indices here
// match the data-row ordinals used in warning messages.
type sheetTable struct {
	headers []string
	rows    []map[string]string
}

func readSheetTable(f *excelize.File, name string) (*sheetTable, error) {
	raw, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}
	if len(raw) == 0 {
		return &sheetTable{}, nil
	}

	var headers []string
	for _, cell := range raw[0] {
		if strings.TrimSpace(cell) == "" {
			// Unnamed columns cannot be addressed by header.
			continue
		}
		headers = append(headers, cell)
	}

	table := &sheetTable{headers: headers}
	for _, row := range raw[1:] {
		if isBlankRow(row) {
			continue
		}
		cells := make(map[string]string, len(headers))
		col := 0
		for _, cell := range raw[0] {
			if strings.TrimSpace(cell) == "" {
				col++
				continue
			}
			if col < len(row) {
				cells[cell] = row[col]
			}
			col++
		}
		table.rows = append(table.rows, cells)
	}
	return table, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// selectSheets picks the primary sheet and the optional prior-period sheet.
// The primary falls back to the first sheet when no preferred name matches;
// a missing previous sheet simply disables the secondary lookup path.
func (v Vocabulary) selectSheets(names []string) (current string, previous string, ok bool) {
	if len(names) == 0 {
		return "", "", false
	}
	current, found := pickSheet(names, v.CurrentSheets)
	if !found {
		current = names[0]
	}
	previous, _ = pickSheet(names, v.PreviousSheets)
	return current, previous, true
}
