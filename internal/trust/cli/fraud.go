package cli

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/trustcore/internal/trust/app"
	"github.com/spf13/cobra"
)

func fraudCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fraud",
		Short: "Fraud engine operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "unblock <ip>",
		Short: "Clear an adaptive IP block and its failure count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if err := a.FraudEngine().UnblockIP(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", args[0])
				return nil
			})
		},
	})

	return cmd
}
