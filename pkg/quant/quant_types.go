package quant

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QtySats represents a coin amount multiplied by 100,000,000 (10^8).
// E.g., 1.0 VRSC = 100,000,000 QtySats.
type QtySats int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

const (
	QtyScale = 100000000

	// MaxDecimals is the widest fractional precision any catalog currency uses.
	MaxDecimals = 18
)

var (
	qtyScale = decimal.NewFromInt(QtyScale)
	maxSats  = decimal.NewFromInt(math.MaxInt64)

	ErrEmptyAmount     = errors.New("amount is empty")
	ErrMalformedAmount = errors.New("amount is not a plain decimal number")
	ErrNonPositive     = errors.New("amount must be greater than zero")
	ErrTooPrecise      = errors.New("amount has more fractional digits than the currency supports")
	ErrSatsOverflow    = errors.New("amount does not fit in int64 sats")
)

// ParseAmount parses a user-entered amount such as "1", "0.25" or ".5".
// Exponents, signs and thousands separators are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	return ParseAmountWithDecimals(s, MaxDecimals)
}

// ParseAmountWithDecimals is ParseAmount bounded by a currency's precision.
func ParseAmountWithDecimals(s string, decimals int) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrEmptyAmount
	}

	digits, dots, frac := 0, 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
			if dots > 0 {
				frac++
			}
		case c == '.':
			dots++
		default:
			return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
		}
	}
	if digits == 0 || dots > 1 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	if decimals >= 0 && frac > decimals {
		return decimal.Zero, fmt.Errorf("%w: %d > %d", ErrTooPrecise, frac, decimals)
	}

	// decimal does not accept a bare leading or trailing dot.
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrMalformedAmount, err)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, ErrNonPositive
	}
	return d, nil
}

// ToSats converts a coin amount to QtySats, rounding half away from zero.
func ToSats(d decimal.Decimal) (QtySats, error) {
	v := d.Mul(qtyScale).Round(0)
	if v.Abs().GreaterThan(maxSats) {
		return 0, fmt.Errorf("%w: %s", ErrSatsOverflow, d.String())
	}
	return QtySats(v.IntPart()), nil
}

// Decimal converts QtySats back to a coin amount.
func (q QtySats) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -8)
}

func (q QtySats) String() string {
	return q.Decimal().StringFixed(8)
}

// Now returns the current time as a TimeStamp.
func Now() TimeStamp {
	return TimeStamp(time.Now().UnixMicro())
}
