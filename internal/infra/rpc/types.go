package rpc

import (
	"encoding/json"

	"convert_invoices/internal/domain"

	"github.com/shopspring/decimal"
)

// request is a JSON-RPC 2.0 call.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// envelope is the common response shape. Result is decoded per method.
type envelope struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// converterWire is one element of getcurrencyconverters. Other keys of the
// element (currency definition, output) are ignored.
type converterWire struct {
	FullyQualifiedName string `json:"fullyqualifiedname"`
	Height             int64  `json:"height"`
	LastNotarization   *struct {
		CurrencyState *struct {
			Currencies        map[string]currencyStateWire `json:"currencies"`
			ReserveCurrencies []reserveWire                `json:"reservecurrencies"`
		} `json:"currencystate"`
	} `json:"lastnotarization"`
}

type currencyStateWire struct {
	LastConversionPrice decimal.Decimal `json:"lastconversionprice"`
	ViaConversionPrice  decimal.Decimal `json:"viaconversionprice"`
	ReserveIn           decimal.Decimal `json:"reservein"`
	ReserveOut          decimal.Decimal `json:"reserveout"`
	ConversionFees      decimal.Decimal `json:"conversionfees"`
	Fees                decimal.Decimal `json:"fees"`
}

type reserveWire struct {
	CurrencyID     string              `json:"currencyid"`
	PriceInReserve decimal.Decimal     `json:"priceinreserve"`
	Reserves       decimal.NullDecimal `json:"reserves"`
	Weight         decimal.Decimal     `json:"weight"`
}

// estimateWire is the estimateconversion result.
type estimateWire struct {
	EstimatedCurrencyOut decimal.NullDecimal `json:"estimatedcurrencyout"`
	NetInputAmount       decimal.NullDecimal `json:"netinputamount"`
	InputCurrencyID      string              `json:"inputcurrencyid"`
	OutputCurrencyID     string              `json:"outputcurrencyid"`
}

// conversionParams is the estimateconversion argument object. Amount is
// sent as a JSON number.
type conversionParams struct {
	Currency  string      `json:"currency"`
	ConvertTo string      `json:"convertto"`
	Amount    json.Number `json:"amount"`
	Via       string      `json:"via,omitempty"`
}

func newConversionParams(req domain.ConversionRequest) conversionParams {
	return conversionParams{
		Currency:  req.Currency,
		ConvertTo: req.ConvertTo,
		Amount:    json.Number(req.Amount.String()),
		Via:       req.Via,
	}
}
