package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/resilience"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay degraded records",
	Long:  "Degraded records are queued for replay when a run finishes. These commands list the queue and retry due entries.",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListDLQ(ctx, dlqFilterFromFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "dlq list")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead-letter queue is empty.")
			return nil
		}
		formatDLQList(os.Stdout, entries)
		return nil
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Replay due dead-lettered records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		useLive, _ := cmd.Flags().GetBool("live")

		env, err := initPipeline(ctx, envOptions{mode: "enrich", live: useLive})
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := replayDLQ(ctx, env, dlqFilterFromFlags(cmd), time.Minute)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Replayed %d: %d recovered, %d still degraded\n",
			stats.Attempted, stats.Recovered, stats.Failed)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{dlqListCmd, dlqRetryCmd} {
		c.Flags().String("error-type", "", "filter by error type (transient, permanent)")
		c.Flags().String("run", "", "filter by run id")
		c.Flags().Int("limit", 100, "max number of entries")
	}
	dlqRetryCmd.Flags().Bool("live", false, "use HTTP-backed sources where API keys are configured")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}

func dlqFilterFromFlags(cmd *cobra.Command) resilience.DLQFilter {
	errType, _ := cmd.Flags().GetString("error-type")
	runID, _ := cmd.Flags().GetString("run")
	limit, _ := cmd.Flags().GetInt("limit")
	return resilience.DLQFilter{ErrorType: errType, RunID: runID, Limit: limit}
}

// replayStats counts the outcome of one replay pass.
type replayStats struct {
	Attempted int
	Recovered int
	Failed    int
}

// replayDLQ reprocesses every due entry. A recovered record overwrites its
// slot in the original run and leaves the queue; a record that is still
// degraded is rescheduled with a doubled delay.
func replayDLQ(ctx context.Context, env *pipelineEnv, filter resilience.DLQFilter, base time.Duration) (replayStats, error) {
	var stats replayStats

	entries, err := env.Store.DequeueDLQ(ctx, filter)
	if err != nil {
		return stats, eris.Wrap(err, "dlq: dequeue")
	}
	if len(entries) == 0 {
		return stats, nil
	}

	engine, err := env.newEngine(nil)
	if err != nil {
		return stats, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Attempted++
		log := zap.L().With(zap.String("dlq_id", entry.ID), zap.String("record", entry.Record.Key()))

		out := engine.Process(ctx, entry.Record)
		if out.Degraded {
			stats.Failed++
			next := resilience.NextRetry(time.Now(), entry.RetryCount+1, base)
			reason := strings.TrimPrefix(out.Reasoning, "Error: ")
			if err := env.Store.IncrementDLQRetry(ctx, entry.ID, next, reason); err != nil {
				return stats, eris.Wrap(err, "dlq: reschedule")
			}
			log.Warn("dlq: replay still degraded", zap.Int("retry_count", entry.RetryCount+1), zap.String("error", reason))
			continue
		}

		if entry.RunID != "" {
			if err := env.Store.SaveRecord(ctx, entry.RunID, entry.RecordIndex, out); err != nil {
				return stats, eris.Wrap(err, "dlq: save recovered record")
			}
		}
		if err := env.Store.RemoveDLQ(ctx, entry.ID); err != nil {
			return stats, eris.Wrap(err, "dlq: remove recovered entry")
		}
		stats.Recovered++
		log.Info("dlq: record recovered", zap.Float64("confidence", out.AgentConfidence))
	}
	return stats, nil
}

func formatDLQList(out io.Writer, entries []resilience.DLQEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN\tFRANCHISEE\tTYPE\tSTATE\tRETRIES\tNEXT_RETRY\tERROR")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			e.ID, e.RunID, truncate(e.Record.Franchisee, 30), e.ErrorType, e.FailedState,
			e.RetryCount, e.MaxRetries, e.NextRetryAt.Local().Format("2006-01-02 15:04"), truncate(e.Error, 60))
	}
	_ = w.Flush()
}
