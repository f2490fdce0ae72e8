package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galaxia-dev/starchive/internal/api"
	"github.com/galaxia-dev/starchive/internal/history"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rendered site locally",
		Long: `Serves the rendered static site over HTTP, along with run history at
/api/runs, Prometheus metrics at /metrics, and a health probe at /healthz.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			siteDir := cfg.Render.OutputDir
			if _, err := os.Stat(siteDir); err != nil {
				return fmt.Errorf("site directory %s not found; run render first", siteDir)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub, registry, err := newProgressHub()
			if err != nil {
				return err
			}
			defer closeHub(hub)

			runs, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Serve.Port),
				Handler:           api.NewServer(siteDir, runs, registry, logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("preview server listening",
					zap.String("addr", srv.Addr),
					zap.String("site", siteDir))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down: %w", err)
			}
			logger.Info("preview server stopped")
			return nil
		},
	}
	return cmd
}
