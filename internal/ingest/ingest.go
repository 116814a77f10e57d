// Package ingest reads franchisee records from spreadsheet and CSV files.
package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
)

// ErrMissingColumn is wrapped when a required header is absent.
var ErrMissingColumn = eris.New("ingest: missing column")

// columnAliases maps normalized header text to a record field.
var columnAliases = map[string]string{
	"fdd":               "fdd",
	"fdd store no.":     "store_no",
	"fdd store no":      "store_no",
	"store no.":         "store_no",
	"store no":          "store_no",
	"store_no":          "store_no",
	"fdd location name": "location_name",
	"location name":     "location_name",
	"location_name":     "location_name",
	"franchisee":        "franchisee",
	"fdd contact name":  "contact_name",
	"contact name":      "contact_name",
	"contact_name":      "contact_name",
	"address":           "address",
	"city":              "city",
	"state":             "state",
	"zip":               "zip",
	"zip code":          "zip",
	"phone":             "phone",
}

// Options tunes how a file is read.
type Options struct {
	// Sheet names the workbook sheet to read. Empty picks the first sheet
	// with a franchisee header.
	Sheet string
	// Limit keeps only the first N records when > 0.
	Limit int
}

// ReadRecords loads records from path with default options.
func ReadRecords(path string) ([]model.Record, error) {
	return ReadFile(path, Options{})
}

// ReadFile loads records from an .xlsx, .csv or .tsv file, choosing the
// parser by extension.
func ReadFile(path string, opts Options) ([]model.Record, error) {
	rows, err := readRows(path, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	recs, err := MapRows(rows)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: %s", path)
	}
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	zap.L().Info("ingest: loaded records",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
		zap.Int("records", len(recs)),
	)
	return recs, nil
}

func readRows(path string, opts Options) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return readWorkbook(path, opts.Sheet)
	}

	comma, ok := delimiters[ext]
	if !ok {
		return nil, eris.Errorf("unsupported file type %q", ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open")
	}
	defer f.Close() //nolint:errcheck
	return readDelimited(f, comma)
}

var delimiters = map[string]rune{
	".csv": ',',
	".tsv": '\t',
	".txt": '\t',
}

// MapRows converts a header row plus data rows into records. Blank rows are
// skipped and short rows leave trailing fields empty.
func MapRows(rows [][]string) ([]model.Record, error) {
	if len(rows) == 0 {
		return nil, eris.Wrap(ErrMissingColumn, "franchisee (no header row)")
	}

	index := headerIndex(rows[0])
	if _, ok := index["franchisee"]; !ok {
		return nil, eris.Wrap(ErrMissingColumn, "franchisee")
	}

	recs := make([]model.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		cell := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		recs = append(recs, model.Record{
			FDD:          cell("fdd"),
			StoreNo:      cell("store_no"),
			LocationName: cell("location_name"),
			Franchisee:   cell("franchisee"),
			ContactName:  cell("contact_name"),
			Address:      cell("address"),
			City:         cell("city"),
			State:        cell("state"),
			Zip:          cell("zip"),
			Phone:        cell("phone"),
		})
	}
	return recs, nil
}

// headerIndex maps each recognised record field to its first column.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int)
	for i, h := range header {
		if field, ok := columnAliases[normalizeHeader(h)]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	return index
}

func hasFranchiseeColumn(header []string) bool {
	_, ok := headerIndex(header)["franchisee"]
	return ok
}

func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
