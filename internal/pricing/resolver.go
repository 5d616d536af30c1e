// Package pricing selects a liquidity path, prices it and derives a
// slippage tolerance from its depth.
package pricing

import (
	"log/slog"

	"convert_invoices/internal/domain"

	"github.com/shopspring/decimal"
)

// CurrencyLookup is the registry surface pricing depends on.
type CurrencyLookup interface {
	BySystemName(name string) (domain.Currency, bool)
	ByIAddress(id string) (domain.Currency, bool)
}

// Resolver chooses the best converter between two currencies.
type Resolver struct {
	reg CurrencyLookup
}

func NewResolver(reg CurrencyLookup) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve picks a path from converters for the pair from -> to (system names).
//
// When either endpoint is a converter the path is direct and beats any
// routed path. Otherwise every candidate pool holding both endpoints is
// scored by reserve(from) * reserve(to); the highest score wins and ties keep
// the first candidate in input order.
func (r *Resolver) Resolve(converters []domain.ConverterCurrency, from, to string) (domain.ConversionPath, error) {
	const op = "pricing.Resolve"

	src, ok := r.reg.BySystemName(from)
	if !ok {
		return domain.ConversionPath{}, domain.ConfigurationError(op, "source currency %q is unknown or disabled", from)
	}
	dst, ok := r.reg.BySystemName(to)
	if !ok {
		return domain.ConversionPath{}, domain.ConfigurationError(op, "destination currency %q is unknown or disabled", to)
	}

	if src.IsConverter || dst.IsConverter {
		endpoint := src
		if !src.IsConverter {
			endpoint = dst
		}
		return directPath(converters, endpoint.SystemName), nil
	}

	var (
		best      *domain.ConverterCurrency
		bestScore decimal.Decimal
	)
	for i := range converters {
		c := &converters[i]
		score, ok := r.score(c, src, dst)
		if !ok {
			continue
		}
		if best == nil || score.GreaterThan(bestScore) {
			best = c
			bestScore = score
		}
	}

	if best == nil {
		return domain.ConversionPath{}, domain.NoPathFound(op, "no enabled converter holds both %s and %s", from, to)
	}

	winner := *best
	slog.Debug("Routed path resolved",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("via", winner.FullyQualifiedName),
		slog.String("score", bestScore.String()))

	return domain.ConversionPath{
		Converter:      &winner,
		LiquidityScore: bestScore,
	}, nil
}

// score returns false for candidates that cannot carry the pair.
func (r *Resolver) score(c *domain.ConverterCurrency, src, dst domain.Currency) (decimal.Decimal, bool) {
	conv, ok := r.reg.BySystemName(c.FullyQualifiedName)
	if !ok || !conv.IsConverter {
		return decimal.Zero, false
	}

	in, ok := c.Reserve(src.IAddress)
	if !ok {
		return decimal.Zero, false
	}
	out, ok := c.Reserve(dst.IAddress)
	if !ok {
		return decimal.Zero, false
	}

	score := in.Reserves.Mul(out.Reserves)
	if !score.IsPositive() {
		// An empty side cannot price anything.
		return decimal.Zero, false
	}
	return score, true
}

// directPath prefers the pool named after the converter endpoint, then the
// first pool returned. The score is unbounded either way.
func directPath(converters []domain.ConverterCurrency, name string) domain.ConversionPath {
	path := domain.ConversionPath{Unbounded: true, IsDirect: true}

	for i := range converters {
		if converters[i].FullyQualifiedName == name {
			c := converters[i]
			path.Converter = &c
			return path
		}
	}
	if len(converters) > 0 {
		c := converters[0]
		path.Converter = &c
	}
	return path
}
