package pricing

import (
	"convert_invoices/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.RequireFromString("0.5")
	two     = decimal.NewFromInt(2)
	five    = decimal.NewFromInt(5)
	ten     = decimal.NewFromInt(10)
	twenty  = decimal.NewFromInt(20)

	// MinSlippage and MaxSlippage bound every suggestion, in percent.
	MinSlippage = half
	MaxSlippage = twenty
)

// Analyze compares an estimate against the destination reserve of the
// winning pool. destReserve is nil when the pool does not report one.
func Analyze(amount, estimatedOut decimal.Decimal, destReserve *decimal.Decimal) domain.LiquidityReport {
	report := domain.LiquidityReport{SuggestedSlippage: MinSlippage}
	if destReserve == nil {
		return report
	}

	reserve := *destReserve
	report.HasReserve = true
	report.MaxAvailable = reserve
	report.Exceeded = estimatedOut.GreaterThan(reserve)

	if !reserve.IsPositive() {
		return report
	}

	report.PriceImpact = amount.Div(reserve).Mul(hundred)
	report.HasPriceImpact = true
	report.SuggestedSlippage = SuggestSlippage(report.PriceImpact)
	return report
}

// SuggestSlippage maps a price impact (percent of the destination reserve)
// to a slippage tolerance in percent. The mapping is monotonic and clamped
// to [MinSlippage, MaxSlippage].
//
//	impact <= 0.5      0.5
//	0.5  < impact <= 2 0.5 + (impact - 0.5), up to the next 0.5
//	2    < impact <= 5 2 + (impact - 2), up to the next 0.5
//	5    < impact <= 10 5 + (impact - 5), up to the next whole
//	10   < impact <= 20 10 + (impact - 10) / 2, up to the next whole
//	impact > 20        20
func SuggestSlippage(impact decimal.Decimal) decimal.Decimal {
	var s decimal.Decimal
	switch {
	case impact.LessThanOrEqual(half):
		s = half
	case impact.LessThanOrEqual(two):
		s = ceilTo(half.Add(impact.Sub(half)), half)
	case impact.LessThanOrEqual(five):
		s = ceilTo(two.Add(impact.Sub(two)), half)
	case impact.LessThanOrEqual(ten):
		s = five.Add(impact.Sub(five)).Ceil()
	case impact.LessThanOrEqual(twenty):
		s = ten.Add(impact.Sub(ten).Div(two)).Ceil()
	default:
		s = twenty
	}
	return decimal.Min(decimal.Max(s, MinSlippage), MaxSlippage)
}

func ceilTo(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Ceil().Mul(step)
}
