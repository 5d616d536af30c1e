package pricing

import (
	"context"

	"convert_invoices/internal/domain"
	"convert_invoices/pkg/quant"

	"github.com/shopspring/decimal"
)

// EstimateService prices a conversion request.
type EstimateService interface {
	EstimateConversion(ctx context.Context, req domain.ConversionRequest) (domain.EstimateResult, error)
}

// ConverterSource fetches converter state involving from (and to, if set).
type ConverterSource interface {
	GetConverters(ctx context.Context, from, to string) ([]domain.ConverterCurrency, error)
}

// EstimateInput names both endpoints by system name.
type EstimateInput struct {
	From   string
	To     string
	Amount decimal.Decimal
	// Via is the resolved intermediate converter; empty for direct paths.
	Via string
}

// Estimator requests a priced estimate for a resolved path.
type Estimator struct {
	svc EstimateService
	reg CurrencyLookup
}

func NewEstimator(svc EstimateService, reg CurrencyLookup) *Estimator {
	return &Estimator{svc: svc, reg: reg}
}

// Estimate prices in. Via is dropped when either endpoint is a converter,
// whatever the caller passed. Fee is Amount - NetInput.
func (e *Estimator) Estimate(ctx context.Context, in EstimateInput) (domain.EstimateResult, error) {
	const op = "pricing.Estimate"

	if !in.Amount.IsPositive() {
		return domain.EstimateResult{}, domain.ValidationError(op, quant.ErrNonPositive)
	}

	src, ok := e.reg.BySystemName(in.From)
	if !ok {
		return domain.EstimateResult{}, domain.ConfigurationError(op, "source currency %q is unknown or disabled", in.From)
	}
	dst, ok := e.reg.BySystemName(in.To)
	if !ok {
		return domain.EstimateResult{}, domain.ConfigurationError(op, "destination currency %q is unknown or disabled", in.To)
	}

	via := in.Via
	if src.IsConverter || dst.IsConverter {
		via = ""
	}

	res, err := e.svc.EstimateConversion(ctx, domain.ConversionRequest{
		Currency:  src.SystemName,
		ConvertTo: dst.SystemName,
		Amount:    in.Amount,
		Via:       via,
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.ExternalServiceError(op, err)
		}
		return domain.EstimateResult{}, err
	}

	res.Fee = in.Amount.Sub(res.NetInput)
	return res, nil
}
