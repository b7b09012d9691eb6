package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Rate is an exchange rate scaled by 10^8: 94_500_000 means 0.945 destination
// units per source unit.
type Rate int64

var (
	rateScale   = big.NewInt(100_000_000)
	basisPoints = big.NewInt(BasisPoints)
)

// RateScale returns 10^8 as a fresh big.Int.
func RateScale() *big.Int {
	return new(big.Int).Set(rateScale)
}

func (r Rate) Valid() bool {
	return r > 0
}

// Decimal returns the human-readable rate, e.g. 0.945.
func (r Rate) Decimal() decimal.Decimal {
	return decimal.New(int64(r), -RateDecimals)
}

func (r Rate) String() string {
	return r.Decimal().String()
}

// IsPositive reports whether a is a usable amount for a value-moving operation.
func IsPositive(a *big.Int) bool {
	return a != nil && a.Sign() > 0
}

// Fee returns floor(amount * bps / 10000).
func Fee(amount *big.Int, bps uint32) *big.Int {
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return fee.Quo(fee, basisPoints)
}

// Convert applies rate to a net source amount. Forward multiplies by the rate,
// reverse divides by it. Both truncate toward zero.
func Convert(net *big.Int, rate Rate, dir Direction) (*big.Int, error) {
	if !rate.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRate, rate)
	}
	r := big.NewInt(int64(rate))
	out := new(big.Int)
	switch dir {
	case DirectionForward:
		out.Mul(net, r)
		out.Quo(out, rateScale)
	case DirectionReverse:
		out.Mul(net, rateScale)
		out.Quo(out, r)
	default:
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidConfiguration, dir)
	}
	return out, nil
}

// ParseAmount parses a base-10 integer amount in smallest units.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidAmount, s)
	}
	return v, nil
}

// FormatUnits renders an amount in smallest units as a decimal string in display
// units, e.g. 1500000000000000000 with 18 decimals is "1.5".
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// ParseUnits converts a display-unit decimal string into smallest units. More
// fractional digits than decimals is an error.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}
	return scaled.BigInt(), nil
}

// UnitsFloat is used for metrics only; it loses precision on large amounts.
func UnitsFloat(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(amount, -int32(decimals)).Float64()
	return f
}
