package domain

import "github.com/shopspring/decimal"

// ConverterCurrency is the fetched state of one liquidity pool.
type ConverterCurrency struct {
	FullyQualifiedName string                   `json:"fullyqualifiedname"`
	Height             int64                    `json:"height"`
	Currencies         map[string]CurrencyState `json:"currencies"`
	Reserves           []ReserveCurrency        `json:"reservecurrencies"`
}

// CurrencyState is the per-currency conversion-price entry of a converter.
type CurrencyState struct {
	LastConversionPrice decimal.Decimal `json:"lastconversionprice"`
	ViaConversionPrice  decimal.Decimal `json:"viaconversionprice"`
	ReserveIn           decimal.Decimal `json:"reservein"`
	ReserveOut          decimal.Decimal `json:"reserveout"`
	ConversionFees      decimal.Decimal `json:"conversionfees"`
	Fees                decimal.Decimal `json:"fees"`
}

// ReserveCurrency is one entry of a converter's reserve basket.
type ReserveCurrency struct {
	CurrencyID     string          `json:"currencyid"`
	Reserves       decimal.Decimal `json:"reserves"`
	Weight         decimal.Decimal `json:"weight"`
	PriceInReserve decimal.Decimal `json:"priceinreserve"`
}

// Reserve returns the first basket entry for the given iAddress.
func (c *ConverterCurrency) Reserve(iAddress string) (ReserveCurrency, bool) {
	for _, r := range c.Reserves {
		if r.CurrencyID == iAddress {
			return r, true
		}
	}
	return ReserveCurrency{}, false
}

// HasConversionPrice reports whether the converter quotes a positive last
// conversion price for the currency.
func (c *ConverterCurrency) HasConversionPrice(iAddress string) bool {
	st, ok := c.Currencies[iAddress]
	return ok && st.LastConversionPrice.IsPositive()
}
