// Package money provides exact decimal helpers and per-currency precision
// rules. All monetary values in this codebase are shopspring decimals; binary
// floats never touch an amount.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// minorUnits maps ISO 4217 codes to the number of fractional digits of the
// currency's smallest unit. Currencies not listed default to 2.
var minorUnits = map[string]int32{
	"BHD": 3,
	"IQD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"BIF": 0,
	"CLP": 0,
	"DJF": 0,
	"GNF": 0,
	"ISK": 0,
	"JPY": 0,
	"KMF": 0,
	"KRW": 0,
	"PYG": 0,
	"RWF": 0,
	"UGX": 0,
	"VND": 0,
	"VUV": 0,
	"XAF": 0,
	"XOF": 0,
	"XPF": 0,
}

const defaultMinorUnits int32 = 2

// MinorUnits returns the number of fractional digits for the currency code.
func MinorUnits(currency string) int32 {
	if units, ok := minorUnits[currency]; ok {
		return units
	}
	return defaultMinorUnits
}

// Step returns the smallest representable amount of the currency as a decimal,
// e.g. 0.01 for USD, 1 for VND, 0.001 for BHD.
func Step(currency string) decimal.Decimal {
	return decimal.New(1, -MinorUnits(currency))
}

// Epsilon returns the tolerance used for conservation checks in the currency:
// one smallest unit. Sums that differ by less than this are considered equal.
func Epsilon(currency string) decimal.Decimal {
	return Step(currency)
}

// WithinEpsilon reports whether a and b differ by less than the currency's
// smallest unit.
func WithinEpsilon(a, b decimal.Decimal, currency string) bool {
	return a.Sub(b).Abs().LessThan(Epsilon(currency))
}

// Parse converts an exact decimal string ("12.50") into a decimal. It is the
// only entry point for amounts crossing a serialization boundary.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid decimal amount %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for literals in tests and fixtures; it panics on bad input.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// String renders the amount with the currency's full minor-unit precision,
// e.g. "12.50" for USD, "1000" for VND. Round-tripping through Parse
// reproduces the identical value.
func String(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(MinorUnits(currency))
}

// Sum adds a list of decimals.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
