package cmd

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/galaxia-dev/starchive/internal/history"
)

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Started", "Kind", "Mode", "Saved", "Skipped", "Failed", "Outcome", "Target"})
			for _, run := range runs {
				t.AppendRow(table.Row{
					run.StartedAt.Local().Format(time.DateTime),
					run.Kind,
					run.Mode,
					run.Saved,
					run.Skipped,
					run.Failed,
					run.Outcome,
					run.Target,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
