package pricing

import (
	"context"
	"log/slog"

	"convert_invoices/internal/domain"
	"convert_invoices/pkg/quant"

	"github.com/shopspring/decimal"
)

// Registry is what the quoter needs beyond plain lookups.
type Registry interface {
	CurrencyLookup
	Enabled() []domain.Currency
}

// Quoter runs the full pipeline: fetch converters, resolve, estimate, analyze.
// Each stage fails closed; a failed stage ends the run with its error.
type Quoter struct {
	source    ConverterSource
	reg       Registry
	resolver  *Resolver
	estimator *Estimator
}

func NewQuoter(source ConverterSource, svc EstimateService, reg Registry) *Quoter {
	return &Quoter{
		source:    source,
		reg:       reg,
		resolver:  NewResolver(reg),
		estimator: NewEstimator(svc, reg),
	}
}

// Quote prices amount of from in to.
func (q *Quoter) Quote(ctx context.Context, from, to string, amount decimal.Decimal) (domain.Quote, error) {
	const op = "pricing.Quote"

	if !amount.IsPositive() {
		return domain.Quote{}, domain.ValidationError(op, quant.ErrNonPositive)
	}
	src, ok := q.reg.BySystemName(from)
	if !ok {
		return domain.Quote{}, domain.ConfigurationError(op, "source currency %q is unknown or disabled", from)
	}
	dst, ok := q.reg.BySystemName(to)
	if !ok {
		return domain.Quote{}, domain.ConfigurationError(op, "destination currency %q is unknown or disabled", to)
	}

	converters, err := q.source.GetConverters(ctx, src.SystemName, dst.SystemName)
	if err != nil {
		return domain.Quote{}, err
	}

	path, err := q.resolver.Resolve(converters, src.SystemName, dst.SystemName)
	if err != nil {
		return domain.Quote{}, err
	}

	est, err := q.estimator.Estimate(ctx, EstimateInput{
		From:   src.SystemName,
		To:     dst.SystemName,
		Amount: amount,
		Via:    path.Via(),
	})
	if err != nil {
		return domain.Quote{}, err
	}

	var reserve *decimal.Decimal
	if r, ok := path.DestinationReserve(dst.IAddress); ok {
		reserve = &r
	}
	report := Analyze(amount, est.EstimatedOut, reserve)

	quote := domain.Quote{
		From:      src,
		To:        dst,
		Amount:    amount,
		Via:       path.Via(),
		IsDirect:  path.IsDirect,
		Estimate:  est,
		Liquidity: report,
		Path:      path,
	}

	slog.Info("Quote priced",
		slog.String("from", src.SystemName),
		slog.String("to", dst.SystemName),
		slog.String("amount", amount.String()),
		slog.String("out", est.EstimatedOut.String()),
		slog.String("via", quote.Via),
		slog.Bool("liquidity_exceeded", report.Exceeded))
	return quote, nil
}

// Destinations lists the enabled currencies reachable from from, in registry order.
//
// A converter source reaches the enabled members of its own basket. Any other
// source reaches every enabled converter holding it, plus each enabled basket
// member that converter quotes a positive last conversion price for.
func (q *Quoter) Destinations(ctx context.Context, from string) ([]domain.Currency, error) {
	const op = "pricing.Destinations"

	src, ok := q.reg.BySystemName(from)
	if !ok {
		return nil, domain.ConfigurationError(op, "source currency %q is unknown or disabled", from)
	}

	converters, err := q.source.GetConverters(ctx, src.SystemName, "")
	if err != nil {
		return nil, err
	}

	reachable := map[string]bool{}
	if src.IsConverter {
		for i := range converters {
			if converters[i].FullyQualifiedName != src.SystemName {
				continue
			}
			for _, r := range converters[i].Reserves {
				if c, ok := q.reg.ByIAddress(r.CurrencyID); ok {
					reachable[c.SystemName] = true
				}
			}
			break
		}
	} else {
		for i := range converters {
			conv := &converters[i]
			if _, ok := q.reg.BySystemName(conv.FullyQualifiedName); !ok {
				continue
			}
			if _, ok := conv.Reserve(src.IAddress); !ok {
				continue
			}
			reachable[conv.FullyQualifiedName] = true

			for _, r := range conv.Reserves {
				if r.CurrencyID == src.IAddress {
					continue
				}
				c, ok := q.reg.ByIAddress(r.CurrencyID)
				if ok && conv.HasConversionPrice(r.CurrencyID) {
					reachable[c.SystemName] = true
				}
			}
		}
	}

	var out []domain.Currency
	for _, c := range q.reg.Enabled() {
		if reachable[c.SystemName] {
			out = append(out, c)
		}
	}
	return out, nil
}
