package export

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/enrich-cli/internal/model"
)

func sampleRecords() []model.EnrichedRecord {
	return []model.EnrichedRecord{
		{
			Record: model.Record{
				FDD: "GC", StoreNo: "101", Franchisee: "Golden Chick Enterprises LLC",
				City: "Dallas", State: "TX", Zip: "75201",
			},
			Fields: model.Fields{
				model.FieldOwner:         "Golden Chick Enterprises",
				model.FieldCorporateName: "Golden Chick Enterprises LLC",
				model.FieldAddress:       "100 Main St, Dallas, TX 75201",
			},
			AgentConfidence:  0.77,
			DataQualityScore: 0.5,
			Classification:   model.Classification{Type: model.EntityBusiness, Confidence: 0.9},
			SourcesConsulted: []string{"business_registry", "google_places"},
			URLSources:       []string{"https://sos.texas.gov", "https://maps.google.com"},
			Reasoning:        "Entity: business (0.90)",
			Duration:         1500 * time.Millisecond,
			PipelineVersion:  "1.0.0",
		},
		{
			Record:          model.Record{Franchisee: "Smith, John"},
			Fields:          model.Fields{},
			Reasoning:       "Error: enrich: fusing: boom",
			Degraded:        true,
			PipelineVersion: "1.0.0",
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	meta := Metadata{
		PipelineName:    "franchisee-enrichment",
		PipelineVersion: "1.0.0",
		RunID:           "run-1",
		Summary:         model.BatchSummary{Total: 2, Succeeded: 1, Failed: 1},
	}
	require.NoError(t, WriteJSON(&buf, meta, sampleRecords()))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "run-1", doc.Metadata.RunID)
	assert.Equal(t, 1, doc.Metadata.Summary.Failed)
	require.Len(t, doc.Records, 2)
	assert.Equal(t, "Golden Chick Enterprises", doc.Records[0].Fields[model.FieldOwner])
	assert.True(t, doc.Records[1].Degraded)
	assert.Contains(t, buf.String(), "\n  \"metadata\"")
}

func TestWriteJSON_EmptyRecordsIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, Metadata{}, nil))
	assert.Contains(t, buf.String(), `"records": []`)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteXLSX(path, sampleRecords()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet["Results"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0]
	require.Len(t, header.Cells, len(Columns))
	assert.Equal(t, "FDD", header.Cells[0].String())
	assert.Equal(t, "Franchisee Owner", header.Cells[10].String())

	row := sheet.Rows[1]
	require.Len(t, row.Cells, len(Columns))
	assert.Equal(t, "Golden Chick Enterprises LLC", row.Cells[3].String())
	assert.Equal(t, "Golden Chick Enterprises", row.Cells[10].String())
	assert.Equal(t, "100 Main St, Dallas, TX 75201", row.Cells[12].String())
	assert.Equal(t, "", row.Cells[13].String())
	assert.Equal(t, "https://sos.texas.gov; https://maps.google.com", row.Cells[16].String())
	assert.Equal(t, "business", row.Cells[17].String())
	conf, err := row.Cells[18].Float()
	require.NoError(t, err)
	assert.InDelta(t, 0.77, conf, 1e-9)
	secs, err := row.Cells[20].Float()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, secs, 1e-9)
	assert.Equal(t, "business_registry, google_places", row.Cells[21].String())

	degraded := sheet.Rows[2]
	assert.Equal(t, "Smith, John", degraded.Cells[3].String())
	assert.Equal(t, "Error: enrich: fusing: boom", degraded.Cells[22].String())
}

func TestWriteFile_Dispatch(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "out.json")
	require.NoError(t, WriteFile(jsonPath, FormatFor(jsonPath), Metadata{}, sampleRecords()))

	xlsxPath := filepath.Join(dir, "out.XLSX")
	assert.Equal(t, FormatXLSX, FormatFor(xlsxPath))
	require.NoError(t, WriteFile(xlsxPath, FormatXLSX, Metadata{}, sampleRecords()))

	err := WriteFile(filepath.Join(dir, "out.bin"), Format("parquet"), Metadata{}, nil)
	assert.ErrorContains(t, err, "unknown format")
}
