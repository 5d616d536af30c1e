package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func currenciesCmd() *cobra.Command {
	var convertersOnly bool
	cmd := &cobra.Command{
		Use:   "currencies",
		Short: "List enabled currencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			list := boot.Registry.Enabled()
			if convertersOnly {
				list = boot.Registry.Converters()
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSYMBOL\tI-ADDRESS\tDECIMALS\tCONVERTER")
			for _, c := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\n", c.SystemName, c.TradingSymbol, c.IAddress, c.Decimals, c.IsConverter)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&convertersOnly, "converters", false, "only list converter currencies")
	return cmd
}

func pairsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pairs",
		Short: "List frequent conversion pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range boot.Registry.FrequentPairs() {
				fmt.Printf("%s -> %s\n", p.From.SystemName, p.To.SystemName)
			}
			return nil
		},
	}
}

func retireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retire NAME",
		Short: "Disable a currency; persists across restarts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := boot.Registry.SetEnabled(cmd.Context(), args[0], false); err != nil {
				return err
			}
			fmt.Printf("Retired %s\n", args[0])
			return nil
		},
	}
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore NAME",
		Short: "Re-enable a retired currency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := boot.Registry.SetEnabled(cmd.Context(), args[0], true); err != nil {
				return err
			}
			fmt.Printf("Restored %s\n", args[0])
			return nil
		},
	}
}
