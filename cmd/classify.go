package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galaxia-dev/starchive/internal/classify"
	"github.com/galaxia-dev/starchive/internal/history"
	"github.com/galaxia-dev/starchive/internal/taxonomy"
)

func newClassifyCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Tag, summarize, and categorize archived posts with an LLM",
		Long: `Sends every record of a raw archive directory to the configured
chat-completions endpoint and writes enriched copies into the matching
processed directory. Already-classified records are skipped, and records
the model cannot classify are copied through unchanged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.ValidateClassify(); err != nil {
				return err
			}
			if !strings.HasPrefix(source, "raw_") {
				return fmt.Errorf("source folder %q must be a raw_ directory", source)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub, _, err := newProgressHub()
			if err != nil {
				return err
			}
			defer closeHub(hub)

			srcDir := filepath.Join(cfg.Crawl.OutputDir, source)
			dstDir := filepath.Join(cfg.Crawl.OutputDir, strings.Replace(source, "raw_", "processed_", 1))

			llm := classify.NewLLMClient(classify.LLMConfig{
				BaseURL:    cfg.Classify.BaseURL,
				APIKey:     cfg.Classify.APIKey,
				Model:      cfg.Classify.Model,
				RetryDelay: cfg.Classify.RetryDelay(),
				Timeout:    time.Duration(cfg.Classify.TimeoutSeconds) * time.Second,
			}, taxonomy.OfficialTopics, logger)

			runID := uuid.New()
			p := classify.NewProcessor(classify.ProcessorConfig{
				Concurrency: cfg.Classify.Concurrency,
				RunID:       runID,
			}, llm, hub, logger)

			started := time.Now()
			sum, runErr := p.Run(ctx, srcDir, dstDir)
			recordRun(cmd.Context(), history.Run{
				ID:         runID,
				Kind:       history.KindClassify,
				Target:     dstDir,
				StartedAt:  started,
				FinishedAt: time.Now(),
				Saved:      sum.Processed,
				Skipped:    sum.Skipped,
				Failed:     sum.Failed,
				Outcome:    outcomeOf(runErr),
				Note:       noteOf(runErr),
			})
			printClassifySummary(cmd, dstDir, sum)
			if runErr != nil {
				logger.Error("classification failed", zap.Error(runErr))
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "raw_md", "raw archive folder under the output directory")
	return cmd
}

func printClassifySummary(cmd *cobra.Command, dstDir string, sum classify.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Total", "Processed", "Skipped", "Failed", "Elapsed"})
	t.AppendRow(table.Row{sum.Total, sum.Processed, sum.Skipped, sum.Failed,
		sum.Elapsed.Round(time.Millisecond)})
	t.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "processed archive: %s\n", dstDir)
}
