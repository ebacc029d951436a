package cli

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/trustcore/internal/trust/app"
	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/spf13/cobra"
)

func blacklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage the CPF and BIN denylists",
	}
	cmd.PersistentFlags().String("kind", "", "List kind: cpf or bin (required)")
	_ = cmd.MarkPersistentFlagRequired("kind")

	cmd.AddCommand(&cobra.Command{
		Use:   "add <value>",
		Short: "Add a value to a denylist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := blacklistKind(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if err := a.Blacklist().Add(ctx, kind, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added to %s blacklist\n", kind)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <value>",
		Short: "Remove a value from a denylist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := blacklistKind(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if err := a.Blacklist().Remove(ctx, kind, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed from %s blacklist\n", kind)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print a denylist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := blacklistKind(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				members, err := a.Blacklist().List(ctx, kind)
				if err != nil {
					return err
				}
				for _, m := range members {
					fmt.Fprintln(cmd.OutOrStdout(), m)
				}
				return nil
			})
		},
	})

	return cmd
}

func blacklistKind(cmd *cobra.Command) (domain.BlacklistKind, error) {
	v, _ := cmd.Flags().GetString("kind")
	kind := domain.BlacklistKind(v)
	if !kind.Valid() {
		return "", fmt.Errorf("--kind must be cpf or bin, got %q", v)
	}
	return kind, nil
}
