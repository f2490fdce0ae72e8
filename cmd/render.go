package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galaxia-dev/starchive/internal/history"
	"github.com/galaxia-dev/starchive/internal/render"
)

func newRenderCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Build a static site from a classified archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !strings.HasPrefix(source, "processed_") {
				return fmt.Errorf("source folder %q must be a processed_ directory", source)
			}

			processedDir := filepath.Join(cfg.Crawl.OutputDir, source)
			rawDir := filepath.Join(cfg.Crawl.OutputDir, strings.Replace(source, "processed_", "raw_", 1))
			outDir := cfg.Render.OutputDir

			r, err := render.New(render.Config{Title: cfg.Render.Title}, logger)
			if err != nil {
				return err
			}

			runID := uuid.New()
			started := time.Now()
			sum, runErr := r.Run(processedDir, rawDir, outDir)
			recordRun(cmd.Context(), history.Run{
				ID:         runID,
				Kind:       history.KindRender,
				Target:     outDir,
				StartedAt:  started,
				FinishedAt: time.Now(),
				Saved:      sum.Posts,
				Outcome:    outcomeOf(runErr),
				Note:       noteOf(runErr),
			})
			if runErr != nil {
				logger.Error("render failed", zap.Error(runErr))
				return runErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rendered %d posts (%d topics, %d tags) into %s\n",
				sum.Posts, sum.Topics, sum.Tags, outDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "processed_md", "processed archive folder under the output directory")
	return cmd
}
