package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/trustcore/internal/trust/app"
	"github.com/aussiebroadwan/trustcore/internal/trust/domain"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile one day of the ledger against the providers",
		Long: `Reconcile compares every payment settled on --date (UTC) with the
provider's record and stores the report, replacing any earlier run for the
same day. Providers are configured with PROVIDERS=name=baseURL,...

Examples:
  trustcore reconcile --date 2024-03-10
  trustcore reconcile --json`,
		RunE: runReconcile,
	}

	cmd.Flags().String("date", "", "Day to reconcile, YYYY-MM-DD (default: yesterday, UTC)")
	cmd.Flags().Bool("json", false, "Print the full report as JSON")

	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	date, _ := cmd.Flags().GetString("date")
	asJSON, _ := cmd.Flags().GetBool("json")
	if date == "" {
		date = time.Now().UTC().AddDate(0, 0, -1).Format(domain.DateLayout)
	}

	return withApp(cmd, func(ctx context.Context, a *app.Application) error {
		rep, err := a.Reconciler().Reconcile(ctx, date)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", date, err)
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}

		fmt.Fprintf(out, "Reconciliation %s: %d payments, %d matched, %d mismatched\n",
			rep.Date, rep.Total, rep.Matched, rep.Mismatched)
		for _, m := range rep.Mismatches {
			fmt.Fprintf(out, "  %-20s %s/%s", m.Type, m.Provider, m.ProviderPaymentID)
			if m.Cause != "" {
				fmt.Fprintf(out, " (%s)", m.Cause)
			}
			fmt.Fprintln(out)
		}
		return nil
	})
}
