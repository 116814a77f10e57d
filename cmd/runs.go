package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect enrichment run history",
	Long:  "Commands for listing and viewing recorded enrichment runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrichment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		runs, err := st.ListRuns(ctx, model.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if asJSON {
			return writeIndentedJSON(os.Stdout, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its enriched records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		detail, err := loadRunDetail(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		return writeIndentedJSON(os.Stdout, detail)
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")
	runsListCmd.Flags().Bool("json", false, "print runs as JSON instead of a table")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// runDetail is a run together with its stored records.
type runDetail struct {
	Run     *model.Run             `json:"run"`
	Records []model.EnrichedRecord `json:"records"`
}

func loadRunDetail(ctx context.Context, st store.Store, id string) (*runDetail, error) {
	run, err := st.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	recs, err := st.ListRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.EnrichedRecord{}
	}
	return &runDetail{Run: run, Records: recs}, nil
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINPUT\tSTATUS\tRECORDS\tSUCCESS\tAVG_CONF\tCREATED\tDURATION")
	for _, r := range runs {
		records, success, conf := "-", "-", "-"
		if r.Summary != nil {
			records = fmt.Sprintf("%d", r.Summary.Total)
			success = fmt.Sprintf("%.0f%%", r.Summary.SuccessRate()*100)
			conf = fmt.Sprintf("%.3f", r.Summary.AvgConfidence)
		}
		dur := "-"
		if r.Status == model.RunStatusComplete || r.Status == model.RunStatusFailed {
			dur = r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, truncate(r.Input, 40), r.Status, records, success, conf,
			r.CreatedAt.Local().Format("2006-01-02 15:04"), dur)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
