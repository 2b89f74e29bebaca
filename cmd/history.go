// File: cmd/history.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/recovery-warden/internal/observability"
	"github.com/xkilldash9x/recovery-warden/internal/store"
)

// runLister is the part of the journal history needs.
type runLister interface {
	RecentRuns(ctx context.Context, taskID string, limit int) ([]store.RunRecord, error)
}

var openJournal = func(ctx context.Context, url string) (runLister, func(), error) {
	return store.Connect(ctx, url, observability.GetLogger())
}

func newHistoryCmd() *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List the latest journaled runs of the task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Database().URL == "" {
				return errors.New("database.url is required for history")
			}
			journal, closeJournal, err := openJournal(cmd.Context(), cfg.Database().URL)
			if err != nil {
				return err
			}
			defer closeJournal()

			runs, err := journal.RecentRuns(cmd.Context(), cfg.Task().ID, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tACCOUNT\tENTERED\tSUCCESS\tREASON\tWARNINGS\tNEXT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\t%s\t%dm\n",
					r.StartedAt.Local().Format(time.DateTime), observability.MaskAccount(r.Account),
					r.Entered, r.Success, dash(r.Reason), dash(strings.Join(r.Warnings, ",")), r.NextDelayMinutes)
			}
			return tw.Flush()
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return historyCmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
