// Package cli is the trustcore command line: the server plus the operator
// commands that act on the same stores.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/aussiebroadwan/trustcore/internal/trust/app"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "trustcore",
		Short:         "trustcore - request signing, tokens, fraud scoring and reconciliation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(blacklistCmd())
	root.AddCommand(apikeyCmd())
	root.AddCommand(fraudCmd())

	return root
}

// Execute runs the root command
func Execute(version string) error {
	app.BuildVersion = version
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// withApp opens the application from the environment for one command and
// closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := app.LoadConfig()
	cfg.LogOutput = cmd.ErrOrStderr()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
