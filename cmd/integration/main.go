package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"convert_invoices/internal/app"
	"convert_invoices/pkg/quant"
)

// Live smoke test: prices every frequent pair against the configured RPC
// endpoint and checks the invoice hand-off for each.
func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	amount := flag.String("amount", "1", "amount of each source currency to price")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	boot := app.NewBootstrap()
	if err := boot.Initialize(ctx, app.Options{ConfigPath: *configPath}); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		boot.Close()
		os.Exit(1)
	}
	defer boot.Close()

	slog.Info("🚀 Starting RPC integration run...", slog.String("rpc", boot.Config.RPC.URL))

	failed := 0
	for _, p := range boot.Registry.FrequentPairs() {
		log := slog.With(slog.String("from", p.From.SystemName), slog.String("to", p.To.SystemName))

		dests, err := boot.Quoter.Destinations(ctx, p.From.SystemName)
		if err != nil {
			log.Error("❌ Destinations failed", slog.Any("error", err))
			failed++
			continue
		}
		log.Info("STEP 1: Destinations", slog.Int("count", len(dests)))

		qty, err := quant.ParseAmountWithDecimals(*amount, p.From.Decimals)
		if err != nil {
			log.Error("❌ Bad amount", slog.Any("error", err))
			boot.Close()
			os.Exit(1)
		}

		q, err := boot.Quoter.Quote(ctx, p.From.SystemName, p.To.SystemName, qty)
		if err != nil {
			log.Error("❌ Quote failed", slog.Any("error", err))
			failed++
			continue
		}
		log.Info("STEP 2: Quote",
			slog.String("via", q.Via),
			slog.String("out", q.Estimate.EstimatedOut.String()),
			slog.String("fee", q.Estimate.Fee.String()),
			slog.String("slippage", q.Liquidity.SuggestedSlippage.String()),
			slog.Bool("exceeded", q.Liquidity.Exceeded))

		if q.Liquidity.Exceeded {
			continue
		}
		terms, err := q.InvoiceTerms("integration@")
		if err != nil {
			log.Error("❌ InvoiceTerms failed", slog.Any("error", err))
			failed++
			continue
		}
		log.Info("STEP 3: Invoice terms", slog.String("amount", terms.Amount.String()), slog.String("currency", terms.RequestedCurrencyID))
	}

	if failed > 0 {
		slog.Error("❌ Integration run failed", slog.Int("failures", failed))
		os.Exit(1)
	}
	slog.Info("🎉 Integration run passed!")
}
