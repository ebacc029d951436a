package cli

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/trustcore/internal/trust/app"
	"github.com/spf13/cobra"
)

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Issue and revoke merchant signing keys",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key; the secret is printed once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			merchant, _ := cmd.Flags().GetString("merchant")
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				key, secret, err := a.APIKeys().Create(ctx, merchant)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "api_key: %s\nsecret:  %s\n", key, secret)
				return nil
			})
		},
	}
	create.Flags().String("merchant", "", "Merchant ID (required)")
	_ = create.MarkFlagRequired("merchant")

	revoke := &cobra.Command{
		Use:   "revoke <api-key>",
		Short: "Revoke an API key immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if err := a.APIKeys().Revoke(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, revoke)
	return cmd
}
