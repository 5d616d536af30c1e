package commands

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"convert_invoices/internal/app"
)

var (
	configPath string
	boot       *app.Bootstrap
)

func Execute() error {
	root := &cobra.Command{
		Use:          "quote",
		Short:        "Price conversions and manage the currency registry",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			boot = app.NewBootstrap()
			return boot.Initialize(cmd.Context(), app.Options{ConfigPath: configPath})
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: discovered)")

	root.AddCommand(
		currenciesCmd(),
		pairsCmd(),
		quoteCmd(),
		destinationsCmd(),
		retireCmd(),
		restoreCmd(),
		recentCmd(),
		lastDumpCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer func() {
		if boot != nil {
			boot.Close()
		}
	}()
	return root.ExecuteContext(ctx)
}
