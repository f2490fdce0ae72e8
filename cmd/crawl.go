package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galaxia-dev/starchive/internal/archive"
	"github.com/galaxia-dev/starchive/internal/assets"
	"github.com/galaxia-dev/starchive/internal/crawler"
	"github.com/galaxia-dev/starchive/internal/history"
	"github.com/galaxia-dev/starchive/internal/zsxq"
)

func newCrawlCmd() *cobra.Command {
	var (
		mode    string
		keyword string
		topicID string
		budget  int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl posts into the local Markdown archive",
		Long: `Walks the group's paginated listing and saves one Markdown record per
post, with images and file attachments downloaded alongside it. Re-running
the same crawl skips every post already on disk, so an interrupted crawl
resumes for free.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.ValidateCrawl(); err != nil {
				return err
			}
			m := zsxq.Mode(mode)
			if !m.Valid() {
				return fmt.Errorf("unknown mode %q (want all, digests, search, or single)", mode)
			}
			if m == zsxq.ModeSearch && keyword == "" {
				return fmt.Errorf("--keyword is required for search mode")
			}
			if m == zsxq.ModeSingle && topicID == "" {
				return fmt.Errorf("--topic is required for single mode")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub, _, err := newProgressHub()
			if err != nil {
				return err
			}
			defer closeHub(hub)

			outDir := filepath.Join(cfg.Crawl.OutputDir, zsxq.OutputDirName(m, keyword, topicID))
			store, err := archive.NewStore(outDir)
			if err != nil {
				return err
			}

			client := zsxq.NewClient(zsxq.Config{
				AccessToken: cfg.Crawl.AccessToken,
				UserAgent:   cfg.Crawl.UserAgent,
				Timeout:     cfg.Crawl.RequestTimeout(),
				RetryDelay:  cfg.Crawl.PageDelay(),
			}, logger)
			fetcher := assets.NewFetcher(assets.Config{
				ImageWorkers:      cfg.Crawl.ImageWorkers,
				FileWorkers:       cfg.Crawl.FileWorkers,
				RequestsPerSecond: cfg.Crawl.AssetRPS,
			}, client, logger)

			runID := uuid.New()
			c := crawler.New(crawler.Config{
				Mode:             m,
				GroupID:          cfg.Crawl.GroupID,
				Keyword:          keyword,
				TopicID:          topicID,
				CountsPerPage:    cfg.Crawl.CountsPerPage,
				Budget:           budget,
				PageDelay:        cfg.Crawl.PageDelay(),
				DownloadImages:   cfg.Crawl.DownloadImages,
				DownloadFiles:    cfg.Crawl.DownloadFiles,
				DownloadComments: cfg.Crawl.DownloadComments,
				RunID:            runID,
			}, client, fetcher, store, hub, logger)

			started := time.Now()
			sum, runErr := c.Run(ctx)
			recordRun(cmd.Context(), history.Run{
				ID:         runID,
				Kind:       history.KindCrawl,
				Mode:       string(m),
				Target:     outDir,
				StartedAt:  started,
				FinishedAt: time.Now(),
				Pages:      sum.Pages,
				Saved:      sum.Saved,
				Skipped:    sum.Skipped,
				Failed:     sum.Failed,
				Outcome:    outcomeOf(runErr),
				Note:       noteOf(runErr),
			})
			printCrawlSummary(cmd, outDir, sum)
			if runErr != nil {
				logger.Error("crawl failed", zap.Error(runErr))
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "all", "crawl mode: all, digests, search, or single")
	cmd.Flags().StringVar(&keyword, "keyword", "", "search keyword (search mode)")
	cmd.Flags().StringVar(&topicID, "topic", "", "topic id (single mode)")
	cmd.Flags().IntVar(&budget, "limit", 0, "stop after this many new posts (0 = unlimited)")
	return cmd
}

func printCrawlSummary(cmd *cobra.Command, outDir string, sum crawler.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Pages", "Saved", "Skipped", "Failed", "Assets OK", "Assets Failed", "Elapsed"})
	t.AppendRow(table.Row{sum.Pages, sum.Saved, sum.Skipped, sum.Failed,
		sum.AssetsSaved, sum.AssetsFailed, sum.Elapsed.Round(time.Millisecond)})
	t.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "archive: %s\n", outDir)
}
