// Package export writes enriched records as JSON documents or spreadsheets.
package export

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Metadata describes the run that produced an export.
type Metadata struct {
	PipelineName    string             `json:"pipeline_name"`
	PipelineVersion string             `json:"pipeline_version"`
	Environment     string             `json:"environment,omitempty"`
	RunID           string             `json:"run_id,omitempty"`
	GeneratedAt     time.Time          `json:"generated_at"`
	Summary         model.BatchSummary `json:"summary"`
}

// Document is the JSON export layout.
type Document struct {
	Metadata Metadata               `json:"metadata"`
	Records  []model.EnrichedRecord `json:"records"`
}

// Format selects an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// FormatFor infers the format from a file extension, defaulting to JSON.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatJSON
}

// WriteFile writes recs to path in the given format.
func WriteFile(path string, format Format, meta Metadata, recs []model.EnrichedRecord) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(path, recs)
	case FormatJSON, "":
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "export: create %s", path)
		}
		if err := WriteJSON(f, meta, recs); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		return eris.Wrapf(f.Close(), "export: close %s", path)
	}
	return eris.Errorf("export: unknown format %q", format)
}

// WriteJSON encodes the records and run metadata as an indented document.
func WriteJSON(w io.Writer, meta Metadata, recs []model.EnrichedRecord) error {
	if recs == nil {
		recs = []model.EnrichedRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return eris.Wrap(enc.Encode(Document{Metadata: meta, Records: recs}), "export: encode json")
}
