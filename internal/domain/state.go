package domain

import "github.com/shopspring/decimal"

// ConversionState is what a presentation client renders for one session.
// Nil derived fields mean "no value"; they are never left stale.
type ConversionState struct {
	Seq uint64 `json:"seq"`

	FromCurrency string `json:"fromCurrency"`
	ToCurrency   string `json:"toCurrency"`
	Amount       string `json:"amount"`
	IDontCare    bool   `json:"iDontCareMode"`

	AvailableToTokens []Currency `json:"availableToTokens"`

	EstimatedAmount    *decimal.Decimal `json:"estimatedAmount,omitempty"`
	ConversionFee      *decimal.Decimal `json:"conversionFee,omitempty"`
	LiquidityExceeded  bool             `json:"liquidityExceeded"`
	MaxAvailableAmount *decimal.Decimal `json:"maxAvailableAmount,omitempty"`
	PriceImpact        *decimal.Decimal `json:"priceImpact,omitempty"`
	SuggestedSlippage  *decimal.Decimal `json:"suggestedSlippage,omitempty"`

	IsLoadingEstimate        bool `json:"isLoadingEstimate"`
	IsLoadingAvailableTokens bool `json:"isLoadingAvailableTokens"`

	// LastError is diagnostic only; it never carries a value to act on.
	LastError     string `json:"lastError,omitempty"`
	LastErrorKind string `json:"lastErrorKind,omitempty"`
}

// ClearEstimate drops every field derived from the estimate pipeline.
func (s *ConversionState) ClearEstimate() {
	s.EstimatedAmount = nil
	s.ConversionFee = nil
	s.LiquidityExceeded = false
	s.MaxAvailableAmount = nil
	s.PriceImpact = nil
	s.SuggestedSlippage = nil
}

// ApplyQuote fills the estimate fields from q.
func (s *ConversionState) ApplyQuote(q Quote) {
	s.EstimatedAmount = ptr(q.Estimate.EstimatedOut)
	s.ConversionFee = ptr(q.Estimate.Fee)
	s.LiquidityExceeded = q.Liquidity.Exceeded
	s.MaxAvailableAmount = nil
	if q.Liquidity.HasReserve {
		s.MaxAvailableAmount = ptr(q.Liquidity.MaxAvailable)
	}
	s.PriceImpact = nil
	if q.Liquidity.HasPriceImpact {
		s.PriceImpact = ptr(q.Liquidity.PriceImpact)
	}
	s.SuggestedSlippage = ptr(q.Liquidity.SuggestedSlippage)
}

// Clone returns a deep copy safe to hand across goroutines.
func (s ConversionState) Clone() ConversionState {
	out := s
	if s.AvailableToTokens != nil {
		out.AvailableToTokens = append([]Currency(nil), s.AvailableToTokens...)
	}
	out.EstimatedAmount = clonePtr(s.EstimatedAmount)
	out.ConversionFee = clonePtr(s.ConversionFee)
	out.MaxAvailableAmount = clonePtr(s.MaxAvailableAmount)
	out.PriceImpact = clonePtr(s.PriceImpact)
	out.SuggestedSlippage = clonePtr(s.SuggestedSlippage)
	return out
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func clonePtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	return ptr(*d)
}
