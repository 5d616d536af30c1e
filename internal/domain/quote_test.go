package domain

import (
	"errors"
	"testing"

	"convert_invoices/pkg/quant"

	"github.com/shopspring/decimal"
)

func TestQuote_InvoiceTerms(t *testing.T) {
	q := Quote{
		To:     Currency{SystemName: "VRSC", IAddress: "i5w5MuNik5NtLcYmNzcvaoixooEebB6MGV"},
		Amount: decimal.RequireFromString("1.23456789"),
		Liquidity: LiquidityReport{
			SuggestedSlippage: decimal.RequireFromString("1.5"),
		},
	}

	terms, err := q.InvoiceTerms(" alice@ ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if terms.Amount != quant.QtySats(123456789) {
		t.Errorf("amount = %d", terms.Amount)
	}
	if terms.MaxEstimatedSlippage != quant.QtySats(1500000) {
		t.Errorf("slippage = %d, want 0.015 as sats", terms.MaxEstimatedSlippage)
	}
	if terms.Destination != "alice@" || terms.RequestedCurrencyID != q.To.IAddress {
		t.Errorf("unexpected terms: %+v", terms)
	}
}

func TestQuote_InvoiceTermsRefusals(t *testing.T) {
	base := Quote{Amount: decimal.NewFromInt(1), Liquidity: LiquidityReport{SuggestedSlippage: decimal.RequireFromString("0.5")}}

	t.Run("NoDestination", func(t *testing.T) {
		_, err := base.InvoiceTerms("")
		if !errors.Is(err, ErrNoDestination) || KindOf(err) != KindValidation {
			t.Errorf("got %v", err)
		}
	})

	t.Run("LiquidityExceeded", func(t *testing.T) {
		q := base
		q.Liquidity.Exceeded = true
		_, err := q.InvoiceTerms("alice@")
		if !errors.Is(err, ErrLiquidityExceeded) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		q := base
		q.Amount = decimal.RequireFromString("1e20")
		if _, err := q.InvoiceTerms("alice@"); KindOf(err) != KindValidation {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}
