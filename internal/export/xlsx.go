package export

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Columns is the spreadsheet header: the input columns, the enriched
// fields, then per-record metrics.
var Columns = []string{
	"FDD", "FDD Store No.", "FDD Location Name", "Franchisee", "FDD Contact Name",
	"Address", "City", "State", "Zip", "Phone",
	"Franchisee Owner", "Corporate Name", "Corporate Address", "Corporate Phone",
	"Corporate Email", "LinkedIn", "url Sources",
	"Entity Type", "Confidence Score", "Data Quality Score", "Processing Time (s)",
	"Sources Used", "Reasoning", "Degraded", "Pipeline Version",
}

// WriteXLSX writes one row per record to a new workbook at path.
func WriteXLSX(path string, recs []model.EnrichedRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}

	for _, r := range recs {
		row := sheet.AddRow()
		for _, v := range []string{
			r.Record.FDD, r.Record.StoreNo, r.Record.LocationName, r.Record.Franchisee,
			r.Record.ContactName, r.Record.Address, r.Record.City, r.Record.State,
			r.Record.Zip, r.Record.Phone,
		} {
			row.AddCell().SetString(v)
		}
		for _, field := range model.TargetFields {
			row.AddCell().SetString(r.Fields[field])
		}
		row.AddCell().SetString(r.URLSourcesString())
		row.AddCell().SetString(string(r.Classification.Type))
		row.AddCell().SetFloat(r.AgentConfidence)
		row.AddCell().SetFloat(r.DataQualityScore)
		row.AddCell().SetFloat(r.Duration.Seconds())
		row.AddCell().SetString(strings.Join(r.SourcesConsulted, ", "))
		row.AddCell().SetString(r.Reasoning)
		row.AddCell().SetBool(r.Degraded)
		row.AddCell().SetString(r.PipelineVersion)
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}
