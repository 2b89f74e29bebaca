// File: cmd/account.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/recovery-warden/internal/observability"
)

func newAccountCmd() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Query or change an account on the controller",
	}

	accountCmd.AddCommand(&cobra.Command{
		Use:   "password <account>",
		Short: "Print the password the controller holds for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := requireRemote(cfg); err != nil {
				return err
			}
			client := newRemoteClient(cfg.Remote(), observability.GetLogger())
			password, err := client.FetchPassword(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch password: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), password)
			return err
		},
	})

	accountCmd.AddCommand(&cobra.Command{
		Use:   "disable <account>",
		Short: "Disable the task of an account on the controller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := requireRemote(cfg); err != nil {
				return err
			}
			client := newRemoteClient(cfg.Remote(), observability.GetLogger())
			if !client.Disable(cmd.Context(), args[0]) {
				return fmt.Errorf("controller refused to disable %s", observability.MaskAccount(args[0]))
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "disabled %s\n", observability.MaskAccount(args[0]))
			return err
		},
	})
	return accountCmd
}
