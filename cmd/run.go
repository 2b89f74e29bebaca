// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/observability"
	"github.com/xkilldash9x/recovery-warden/internal/scheduler"
	"github.com/xkilldash9x/recovery-warden/internal/status"
	"github.com/xkilldash9x/recovery-warden/internal/store"
	"github.com/xkilldash9x/recovery-warden/internal/workflow"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the task forever, running the first check immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger := observability.GetLogger()

			deps, err := newDependencies(cfg, logger)
			if err != nil {
				return err
			}
			runner := workflow.NewRunner(cfg, deps, logger)

			g, ctx := errgroup.WithContext(cmd.Context())
			var observers []schemas.RunObserver

			if url := cfg.Database().URL; url != "" {
				journal, closeJournal, err := store.Connect(ctx, url, logger)
				if err != nil {
					logger.Warn("Run journal unavailable, continuing without it.", zap.Error(err))
				} else {
					defer closeJournal()
					observers = append(observers, journal)
				}
			}

			if listen := cfg.Status().Listen; listen != "" {
				srv := status.NewServer(cfg.Task().ID, logger, status.WithTokenSecret(cfg.Status().TokenSecret))
				observers = append(observers, srv)
				g.Go(func() error {
					serveStatus(ctx, srv, listen, logger)
					return nil
				})
			}

			g.Go(func() error {
				scheduler.New(runner, logger, scheduler.WithObservers(observers...)).RunForever(ctx)
				return nil
			})
			return g.Wait()
		},
	}
}

type statusServer interface {
	ListenAndServe(ctx context.Context, addr string) error
}

// serveStatus runs the optional status endpoint. Its failure is logged and
// never stops the watcher.
func serveStatus(ctx context.Context, srv statusServer, addr string, logger *zap.Logger) {
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		logger.Error("Status endpoint stopped; the watcher keeps running.", zap.String("addr", addr), zap.Error(err))
	}
}
