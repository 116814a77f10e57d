package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// readWorkbook returns the cell text of one sheet. An empty name picks the
// first sheet whose header row names a franchisee column, falling back to
// the first sheet.
func readWorkbook(path, name string) ([][]string, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}
	if len(wb.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}

	if name != "" {
		sheet, ok := wb.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: no sheet named %q", name)
		}
		return sheetRows(sheet), nil
	}

	for _, sheet := range wb.Sheets {
		rows := sheetRows(sheet)
		if len(rows) > 0 && hasFranchiseeColumn(rows[0]) {
			return rows, nil
		}
	}
	return sheetRows(wb.Sheets[0]), nil
}

func sheetRows(sheet *xlsx.Sheet) [][]string {
	out := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		var cells []string
		if row != nil {
			cells = make([]string, len(row.Cells))
			for i, c := range row.Cells {
				cells[i] = strings.TrimSpace(c.String())
			}
		}
		out = append(out, cells)
	}
	return out
}

// readDelimited parses a CSV or TSV stream. Ragged rows are kept and a
// leading byte-order mark is dropped.
func readDelimited(r io.Reader, comma rune) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var out [][]string
	for line := 1; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "delimited: row %d", line)
		}
		if line == 1 && len(fields) > 0 {
			fields[0] = strings.TrimPrefix(fields[0], "\ufeff")
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		out = append(out, fields)
	}
}
