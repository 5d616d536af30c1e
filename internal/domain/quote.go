package domain

import (
	"errors"
	"strings"

	"convert_invoices/pkg/quant"

	"github.com/shopspring/decimal"
)

// ConversionPath is the resolver's choice. It is derived per query and never persisted.
type ConversionPath struct {
	// Converter is nil for a direct path when no converter state was returned.
	Converter      *ConverterCurrency
	LiquidityScore decimal.Decimal
	// Unbounded marks the maximal score of a direct path; LiquidityScore is zero then.
	Unbounded bool
	IsDirect  bool
}

// Via returns the intermediate converter name for routed paths, "" otherwise.
func (p ConversionPath) Via() string {
	if p.IsDirect || p.Converter == nil {
		return ""
	}
	return p.Converter.FullyQualifiedName
}

// DestinationReserve returns the winning pool's reserve balance of the
// destination currency, if the pool holds it.
func (p ConversionPath) DestinationReserve(toIAddress string) (decimal.Decimal, bool) {
	if p.Converter == nil {
		return decimal.Zero, false
	}
	r, ok := p.Converter.Reserve(toIAddress)
	if !ok {
		return decimal.Zero, false
	}
	return r.Reserves, true
}

// ConversionRequest is the estimateconversion payload.
type ConversionRequest struct {
	Currency  string          `json:"currency"`
	ConvertTo string          `json:"convertto"`
	Amount    decimal.Decimal `json:"amount"`
	Via       string          `json:"via,omitempty"`
}

// EstimateResult is a priced estimate. Fee = requested amount - NetInput.
type EstimateResult struct {
	EstimatedOut     decimal.Decimal `json:"estimatedOut"`
	NetInput         decimal.Decimal `json:"netInput"`
	Fee              decimal.Decimal `json:"fee"`
	InputCurrencyID  string          `json:"inputCurrencyId"`
	OutputCurrencyID string          `json:"outputCurrencyId"`
}

// LiquidityReport is the analyzer output for one estimate.
type LiquidityReport struct {
	Exceeded bool `json:"liquidityExceeded"`
	// MaxAvailable is the destination reserve balance; valid when HasReserve.
	MaxAvailable decimal.Decimal `json:"maxAvailableAmount"`
	HasReserve   bool            `json:"hasReserve"`
	// PriceImpact is requested/maxAvailable in percent; valid when HasReserve
	// and MaxAvailable is positive.
	PriceImpact       decimal.Decimal `json:"priceImpact"`
	HasPriceImpact    bool            `json:"hasPriceImpact"`
	SuggestedSlippage decimal.Decimal `json:"suggestedSlippage"`
}

// InvoiceTerms is what the invoice-construction collaborator consumes.
type InvoiceTerms struct {
	Amount               quant.QtySats `json:"amount"`
	Destination          string        `json:"destination"`
	RequestedCurrencyID  string        `json:"requestedcurrencyid"`
	MaxEstimatedSlippage quant.QtySats `json:"maxestimatedslippage"`
}

// Quote is one completed pricing pipeline run.
type Quote struct {
	From      Currency        `json:"from"`
	To        Currency        `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Via       string          `json:"via,omitempty"`
	IsDirect  bool            `json:"isDirect"`
	Estimate  EstimateResult  `json:"estimate"`
	Liquidity LiquidityReport `json:"liquidity"`
	// Path is the resolved route; it is never persisted.
	Path ConversionPath `json:"-"`
}

var (
	ErrLiquidityExceeded = errors.New("estimate exceeds the pool's destination reserve")
	ErrNoDestination     = errors.New("destination is required")
)

var hundred = decimal.NewFromInt(100)

// InvoiceTerms converts q into invoice terms paying destination. Amounts are
// fixed to 8 decimals; the slippage percentage becomes a fraction.
func (q Quote) InvoiceTerms(destination string) (InvoiceTerms, error) {
	const op = "quote.InvoiceTerms"

	destination = strings.TrimSpace(destination)
	if destination == "" {
		return InvoiceTerms{}, ValidationError(op, ErrNoDestination)
	}
	if q.Liquidity.Exceeded {
		return InvoiceTerms{}, ValidationError(op, ErrLiquidityExceeded)
	}

	amount, err := quant.ToSats(q.Amount)
	if err != nil {
		return InvoiceTerms{}, ValidationError(op, err)
	}
	slippage, err := quant.ToSats(q.Liquidity.SuggestedSlippage.Div(hundred))
	if err != nil {
		return InvoiceTerms{}, ValidationError(op, err)
	}

	return InvoiceTerms{
		Amount:               amount,
		Destination:          destination,
		RequestedCurrencyID:  q.To.IAddress,
		MaxEstimatedSlippage: slippage,
	}, nil
}
