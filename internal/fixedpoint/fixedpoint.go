// Package fixedpoint converts venue decimals to scaled integers and back so
// rates and prices can be stored losslessly and compared across venues.
package fixedpoint

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the power-of-ten exponent applied to a decimal before storage.
type Scale int32

const (
	Funding Scale = 8
	Price   Scale = 8
)

var (
	maxInt64 = decimal.NewFromInt(int64(^uint64(0) >> 1))
	minInt64 = decimal.NewFromInt(-int64(^uint64(0)>>1) - 1)
)

// Parse accepts the decimal strings venues send. Empty, non-finite and
// malformed values report false.
func Parse(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ToScaled rounds d×10^s to the nearest integer, half away from zero.
// ok is false when the result does not fit in an int64.
func (s Scale) ToScaled(d decimal.Decimal) (int64, bool) {
	// integer digits of d×10^s, checked before the exponent is expanded
	intDigits := int64(d.NumDigits()) + int64(d.Exponent()) + int64(s)
	if d.IsZero() || intDigits < 0 {
		return 0, true
	}
	if intDigits > 19 {
		return 0, false
	}

	v := d.Shift(int32(s)).Round(0)
	if v.GreaterThan(maxInt64) || v.LessThan(minInt64) {
		return 0, false
	}
	return v.IntPart(), true
}

func (s Scale) FromScaled(v int64) float64 {
	return decimal.New(v, -int32(s)).InexactFloat64()
}

// FundingToScaled scales a decimal funding rate; bad input becomes 0.
func FundingToScaled(raw string) int64 {
	d, ok := Parse(raw)
	if !ok {
		return 0
	}
	v, ok := Funding.ToScaled(d)
	if !ok {
		return 0
	}
	return v
}

// PriceToScaled scales a decimal price; bad input becomes nil.
func PriceToScaled(raw string) *int64 {
	d, ok := Parse(raw)
	if !ok {
		return nil
	}
	v, ok := Price.ToScaled(d)
	if !ok {
		return nil
	}
	return &v
}

// FundingPct decodes a scaled funding rate into a percentage of notional.
func FundingPct(v int64) float64 {
	return decimal.New(v, -int32(Funding)).Shift(2).InexactFloat64()
}

func PricePtr(v *int64) *float64 {
	if v == nil {
		return nil
	}
	p := Price.FromScaled(*v)
	return &p
}
