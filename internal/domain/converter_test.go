package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestConverterCurrency_Reserve(t *testing.T) {
	c := ConverterCurrency{
		FullyQualifiedName: "Bridge.vETH",
		Reserves: []ReserveCurrency{
			{CurrencyID: "iA", Reserves: decimal.NewFromInt(10)},
			{CurrencyID: "iB", Reserves: decimal.NewFromInt(20)},
		},
		Currencies: map[string]CurrencyState{
			"iA": {LastConversionPrice: decimal.NewFromInt(2)},
			"iB": {LastConversionPrice: decimal.Zero},
		},
	}

	t.Run("Present", func(t *testing.T) {
		r, ok := c.Reserve("iB")
		if !ok || !r.Reserves.Equal(decimal.NewFromInt(20)) {
			t.Errorf("expected reserve 20 for iB, got %v (%v)", r.Reserves, ok)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if _, ok := c.Reserve("iZ"); ok {
			t.Error("iZ is not in the basket")
		}
	})

	t.Run("Conversion price", func(t *testing.T) {
		if !c.HasConversionPrice("iA") {
			t.Error("iA has a positive price")
		}
		if c.HasConversionPrice("iB") || c.HasConversionPrice("iZ") {
			t.Error("zero or missing price must not count")
		}
	})
}

func TestConversionPath_Via(t *testing.T) {
	pool := &ConverterCurrency{FullyQualifiedName: "Bridge.vETH"}

	if got := (ConversionPath{Converter: pool}).Via(); got != "Bridge.vETH" {
		t.Errorf("routed path via = %q", got)
	}
	if got := (ConversionPath{Converter: pool, IsDirect: true}).Via(); got != "" {
		t.Errorf("direct path must not carry via, got %q", got)
	}
	if got := (ConversionPath{}).Via(); got != "" {
		t.Errorf("empty path via = %q", got)
	}
}
