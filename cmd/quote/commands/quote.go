package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"convert_invoices/internal/domain"
	"convert_invoices/pkg/quant"
)

func quoteCmd() *cobra.Command {
	var (
		from, to, amount, destination string
		asJSON, noJournal             bool
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price an amount of one currency in another",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := boot.Registry.Require(from)
			if err != nil {
				return err
			}
			qty, err := quant.ParseAmountWithDecimals(amount, src.Decimals)
			if err != nil {
				return domain.ValidationError("quote", err)
			}

			q, err := boot.Quoter.Quote(cmd.Context(), from, to, qty)
			if err != nil {
				return err
			}
			if !noJournal {
				boot.RecordQuote(cmd.Context(), q)
			}

			var terms *domain.InvoiceTerms
			if destination != "" {
				t, err := q.InvoiceTerms(destination)
				if err != nil {
					return err
				}
				terms = &t
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Quote   domain.Quote         `json:"quote"`
					Invoice *domain.InvoiceTerms `json:"invoice,omitempty"`
				}{q, terms})
			}
			printQuote(q, terms)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source currency system name")
	cmd.Flags().StringVar(&to, "to", "", "destination currency system name")
	cmd.Flags().StringVar(&amount, "amount", "", "amount of the source currency")
	cmd.Flags().StringVar(&destination, "destination", "", "also print invoice terms paying this address")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "do not record the quote")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func printQuote(q domain.Quote, terms *domain.InvoiceTerms) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Pair:\t%s -> %s\n", q.From.SystemName, q.To.SystemName)
	if q.IsDirect {
		fmt.Fprintf(w, "Path:\tdirect\n")
	} else {
		fmt.Fprintf(w, "Path:\tvia %s\n", q.Via)
	}
	fmt.Fprintf(w, "Amount:\t%s\n", q.Amount)
	fmt.Fprintf(w, "Estimated out:\t%s\n", q.Estimate.EstimatedOut)
	fmt.Fprintf(w, "Fee:\t%s\n", q.Estimate.Fee)
	if q.Liquidity.HasReserve {
		fmt.Fprintf(w, "Max available:\t%s\n", q.Liquidity.MaxAvailable)
	}
	if q.Liquidity.HasPriceImpact {
		fmt.Fprintf(w, "Price impact:\t%s%%\n", q.Liquidity.PriceImpact.StringFixed(4))
	}
	fmt.Fprintf(w, "Suggested slippage:\t%s%%\n", q.Liquidity.SuggestedSlippage)
	if q.Liquidity.Exceeded {
		fmt.Fprintf(w, "WARNING:\testimate exceeds the pool's destination reserve\n")
	}
	if terms != nil {
		fmt.Fprintf(w, "Invoice amount:\t%s\n", terms.Amount)
		fmt.Fprintf(w, "Invoice currency:\t%s\n", terms.RequestedCurrencyID)
		fmt.Fprintf(w, "Max slippage:\t%s\n", terms.MaxEstimatedSlippage)
	}
	_ = w.Flush()
}

func destinationsCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "destinations",
		Short: "List currencies reachable from a source",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := boot.Quoter.Destinations(cmd.Context(), from)
			if err != nil {
				return err
			}
			for _, c := range list {
				fmt.Println(c.SystemName)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source currency system name")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func recentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recently journaled quotes",
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := boot.Store.RecentQuotes(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tSESSION\tPAIR\tAMOUNT\tOUT\tFEE\tSLIPPAGE\tEXCEEDED")
			for _, r := range recs {
				ts := time.UnixMicro(r.Ts).Format(time.DateTime)
				fmt.Fprintf(w, "%d\t%s\t%s\t%s -> %s\t%s\t%s\t%s\t%s%%\t%v\n",
					r.ID, ts, r.Session, r.FromCurrency, r.ToCurrency, r.Amount,
					r.EstimatedOut, r.Fee, r.SuggestedSlippage, r.LiquidityExceeded)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of quotes to show")
	return cmd
}

func lastDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "last-dump",
		Short: "Print the most recent session state dump",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := boot.Snapshots.LoadLatest()
			if err != nil {
				return err
			}
			if snap == nil {
				fmt.Println("No state dumps found.")
				return nil
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}
