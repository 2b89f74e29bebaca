// File: cmd/check.go
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/observability"
	"github.com/xkilldash9x/recovery-warden/internal/workflow"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run exactly one check and print its outcome",
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
			report := workflow.NewRunner(cfg, deps, logger).Run(cmd.Context())
			return printReport(cmd.OutOrStdout(), report)
		},
	}
}

func printReport(w io.Writer, r schemas.RunReport) error {
	result := "skipped"
	if r.Entered {
		result = "success"
		if !r.Outcome.Success {
			result = "failure: " + r.Outcome.Reason.String()
		}
	}
	_, err := fmt.Fprintf(w,
		"run:              %s\naccount:          %s\nresult:           %s\npassword changed: %t\ntwo-factor:       %t\nnext run in:      %d minutes\n",
		r.RunID, observability.MaskAccount(r.Account), result,
		r.Outcome.PasswordChanged, r.Outcome.TwoFactor, r.Schedule.NextDelayMinutes)
	if err != nil {
		return err
	}
	for _, warning := range r.Outcome.Warnings {
		if _, err := fmt.Fprintf(w, "warning:          %s\n", warning); err != nil {
			return err
		}
	}
	return nil
}
