package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/enrich"
	"github.com/sells-group/enrich-cli/internal/export"
	"github.com/sells-group/enrich-cli/internal/ingest"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/monitoring"
	"github.com/sells-group/enrich-cli/internal/store"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a franchisee spreadsheet",
	Long:  "Reads franchisee records from an .xlsx, .csv or .tsv file, enriches each one, records the run and writes the results as JSON or XLSX.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")
		limit, _ := cmd.Flags().GetInt("limit")
		useLive, _ := cmd.Flags().GetBool("live")
		noStore, _ := cmd.Flags().GetBool("no-store")
		sheet, _ := cmd.Flags().GetString("sheet")

		if input == "" {
			input = cfg.Paths.InputFile
		}
		if input == "" {
			return eris.New("enrich: --input is required")
		}

		if limit <= 0 {
			limit = cfg.Processing.SampleSize
		}
		records, err := ingest.ReadFile(input, ingest.Options{Sheet: sheet, Limit: limit})
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, envOptions{mode: "enrich", live: useLive, noStore: noStore})
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := runEnrichment(ctx, env, input, records)
		if err != nil {
			return err
		}

		if output == "" {
			output = defaultOutput(format)
		}
		if format == "" {
			format = string(export.FormatFor(output))
		}
		if dir := filepath.Dir(output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return eris.Wrapf(err, "enrich: create output dir %s", dir)
			}
		}
		meta := exportMetadata(res.RunID, res.Summary)
		if err := export.WriteFile(output, export.Format(format), meta, res.Records); err != nil {
			return err
		}

		printSummary(os.Stdout, res, output)
		return nil
	},
}

func init() {
	enrichCmd.Flags().String("input", "", "input .xlsx or .csv file (default from paths.input_file)")
	enrichCmd.Flags().String("output", "", "output file (default from paths.output_json or paths.output_excel)")
	enrichCmd.Flags().String("format", "", "output format: json or xlsx (default from the output extension)")
	enrichCmd.Flags().Int("limit", 0, "enrich only the first N records (default processing.sample_size)")
	enrichCmd.Flags().Bool("live", false, "use HTTP-backed sources where API keys are configured")
	enrichCmd.Flags().Bool("no-store", false, "do not record the run in the database")
	enrichCmd.Flags().String("sheet", "", "workbook sheet to read (default: first sheet with a Franchisee column)")
	rootCmd.AddCommand(enrichCmd)
}

// enrichResult is the outcome of one recorded or unrecorded run.
type enrichResult struct {
	RunID   string
	Records []model.EnrichedRecord
	Summary model.BatchSummary
	Alerts  []monitoring.Alert
	// DeadLettered counts degraded records queued for replay.
	DeadLettered int
}

// runEnrichment runs the engine over records. With a store, the run is
// created first, every record is saved as it finishes and the run is
// completed with its summary.
func runEnrichment(ctx context.Context, env *pipelineEnv, input string, records []model.Record) (*enrichResult, error) {
	runID, recorder, err := beginRun(ctx, env, input)
	if err != nil {
		return nil, err
	}
	return executeRun(ctx, env, runID, recorder, records)
}

// beginRun records a new running run. Without a store it returns an empty
// id and a nil recorder.
func beginRun(ctx context.Context, env *pipelineEnv, input string) (string, *store.RunRecorder, error) {
	if env.Store == nil {
		return "", nil, nil
	}
	run, err := env.Store.CreateRun(ctx, input)
	if err != nil {
		return "", nil, eris.Wrap(err, "enrich: create run")
	}
	if err := env.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		return "", nil, eris.Wrap(err, "enrich: mark run running")
	}
	recorder := store.NewRunRecorder(env.Store, run.ID,
		store.WithFlushSize(env.Settings.BatchSize),
		store.WithDLQPolicy(env.Settings.MaxRetries, time.Minute),
	)
	return run.ID, recorder, nil
}

// executeRun enriches records, then flushes and completes the run when one
// was begun. Alerts are evaluated against the run summary.
func executeRun(ctx context.Context, env *pipelineEnv, runID string, recorder *store.RunRecorder, records []model.Record) (*enrichResult, error) {
	res := &enrichResult{RunID: runID}

	var sink enrich.Sink
	if recorder != nil {
		sink = recorder
	}
	engine, err := env.newEngine(sink)
	if err != nil {
		return nil, err
	}

	out, summary, runErr := engine.Run(ctx, records)
	res.Records, res.Summary = out, summary

	if recorder != nil {
		// Finish bookkeeping even when the run was interrupted.
		bg := context.WithoutCancel(ctx)
		if err := recorder.Flush(bg); err != nil {
			zap.L().Error("enrich: flush records", zap.String("run_id", runID), zap.Error(err))
		}
		res.DeadLettered = recorder.Enqueued()

		status, msg := model.RunStatusComplete, ""
		switch {
		case runErr != nil:
			status, msg = model.RunStatusFailed, runErr.Error()
		case ctx.Err() != nil:
			status, msg = model.RunStatusFailed, ctx.Err().Error()
		}
		if err := env.Store.CompleteRun(bg, runID, status, &summary, msg); err != nil {
			return nil, eris.Wrap(err, "enrich: complete run")
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	res.Alerts = monitoring.Evaluate(summary, cfg.Monitoring)
	monitoring.NewAlerter(cfg.Monitoring).SendAlerts(context.WithoutCancel(ctx), res.Alerts)
	return res, nil
}

func defaultOutput(format string) string {
	if format == string(export.FormatXLSX) {
		return cfg.Paths.OutputExcel
	}
	return cfg.Paths.OutputJSON
}

func exportMetadata(runID string, summary model.BatchSummary) export.Metadata {
	return export.Metadata{
		PipelineName:    cfg.Pipeline.Name,
		PipelineVersion: cfg.Pipeline.Version,
		Environment:     cfg.Pipeline.Environment,
		RunID:           runID,
		GeneratedAt:     time.Now().UTC(),
		Summary:         summary,
	}
}

func printSummary(w io.Writer, res *enrichResult, output string) {
	s := res.Summary
	if res.RunID != "" {
		fmt.Fprintf(w, "Run:             %s\n", res.RunID)
	}
	fmt.Fprintf(w, "Records:         %d (%d succeeded, %d failed)\n", s.Total, s.Succeeded, s.Failed)
	fmt.Fprintf(w, "Success rate:    %.1f%%\n", s.SuccessRate()*100)
	fmt.Fprintf(w, "Avg confidence:  %.3f\n", s.AvgConfidence)
	fmt.Fprintf(w, "Avg quality:     %.3f\n", s.AvgQuality)
	fmt.Fprintf(w, "High/low conf.:  %d / %d\n", s.HighConfidence, s.LowConfidence)
	fmt.Fprintf(w, "Duration:        %s (%s per record)\n", s.TotalDuration.Round(time.Millisecond), s.AvgRecordDuration().Round(time.Millisecond))
	if res.DeadLettered > 0 {
		fmt.Fprintf(w, "Dead-lettered:   %d\n", res.DeadLettered)
	}
	for _, a := range res.Alerts {
		fmt.Fprintf(w, "ALERT [%s] %s\n", a.Severity, a.Message)
	}
	fmt.Fprintf(w, "Output:          %s\n", output)
}
