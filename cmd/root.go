// Package cmd defines the starchive CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galaxia-dev/starchive/internal/config"
	"github.com/galaxia-dev/starchive/internal/history"
	"github.com/galaxia-dev/starchive/internal/logging"
	"github.com/galaxia-dev/starchive/internal/progress"
	"github.com/galaxia-dev/starchive/internal/progress/sinks"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

// Execute runs the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "starchive",
		Short:         "Archive, classify, and browse zsxq community posts",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, $HOME/.starchive/config.yaml)")

	root.AddCommand(newCrawlCmd())
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newRenderCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newRunsCmd())
	return root
}

// newProgressHub assembles the hub with a log sink and a Prometheus sink
// on a fresh registry. Callers must Close the hub before exiting.
func newProgressHub() (*progress.Hub, *prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return nil, nil, fmt.Errorf("building metrics sink: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger), promSink)
	return hub, registry, nil
}

func closeHub(hub *progress.Hub) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hub.Close(ctx); err != nil {
		logger.Warn("progress hub close", zap.Error(err))
	}
}

// recordRun best-effort appends the run to the history database. History
// failures are logged, never fatal to the pipeline that just finished.
func recordRun(ctx context.Context, run history.Run) {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.Warn("opening run history", zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.Record(ctx, run); err != nil {
		logger.Warn("recording run", zap.Error(err))
	}
}

func outcomeOf(err error) string {
	if err != nil {
		return history.OutcomeError
	}
	return history.OutcomeOK
}

func noteOf(err error) string {
	if err != nil {
		return err.Error()
	}
	return ""
}
