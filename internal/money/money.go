// Package money provides fixed-point currency parsing and arithmetic.
//
// All amounts use 2 decimal places and are stored as big.Int in the
// smallest unit (1 currency unit = 100 cents). Amounts travel the system
// as decimal strings like "200.00".
package money

import (
	"math/big"
	"strings"
)

const Decimals = 2

// fractionScale is the denominator for Fraction (basis points).
const fractionScale = 10000

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation (150). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 2 decimal places
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a smallest-unit big.Int to a decimal string with
// exactly 2 decimal places (e.g. "1.50").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.00"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// IsPositive reports whether s parses to an amount greater than zero.
func IsPositive(s string) bool {
	v, ok := Parse(s)
	return ok && v.Sign() > 0
}

// Add returns a+b as a decimal string. Invalid inputs count as zero.
func Add(a, b string) string {
	av, _ := Parse(a)
	bv, _ := Parse(b)
	if av == nil {
		av = big.NewInt(0)
	}
	if bv == nil {
		bv = big.NewInt(0)
	}
	return Format(new(big.Int).Add(av, bv))
}

// Cmp compares two decimal strings: -1 if a < b, 0 if equal, 1 if a > b.
// Invalid inputs count as zero.
func Cmp(a, b string) int {
	av, _ := Parse(a)
	bv, _ := Parse(b)
	if av == nil {
		av = big.NewInt(0)
	}
	if bv == nil {
		bv = big.NewInt(0)
	}
	return av.Cmp(bv)
}

// Fraction is a rate in [0,1] held in basis points so that fee math stays
// exact. "0.05" becomes 500.
type Fraction struct {
	bp int64
}

// ParseFraction converts a decimal string like "0.05" to a Fraction.
// Values outside [0,1] or with more than 4 decimal places are rejected.
func ParseFraction(s string) (Fraction, bool) {
	if s == "" {
		return Fraction{}, false
	}
	if strings.HasPrefix(s, "-") {
		return Fraction{}, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Fraction{}, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}
	if len(frac) > 4 {
		return Fraction{}, false
	}
	for len(frac) < 4 {
		frac += "0"
	}

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return Fraction{}, false
	}
	bp := v.Int64()
	if bp < 0 || bp > fractionScale {
		return Fraction{}, false
	}
	return Fraction{bp: bp}, true
}

// IsZero reports whether the fraction is exactly zero.
func (f Fraction) IsZero() bool { return f.bp == 0 }

// String returns the fraction as a decimal, e.g. "0.0500".
func (f Fraction) String() string {
	s := big.NewInt(f.bp).String()
	for len(s) < 5 {
		s = "0" + s
	}
	decimal := len(s) - 4
	return s[:decimal] + "." + s[decimal:]
}

// ApplyRemainder returns amount × (1 − f) as a decimal string, truncating
// sub-cent remainders toward zero. This is the payout side of a fee: the
// retained share is amount minus the result.
func (f Fraction) ApplyRemainder(amount string) string {
	v, ok := Parse(amount)
	if !ok {
		return "0.00"
	}
	keep := new(big.Int).Mul(v, big.NewInt(fractionScale-f.bp))
	keep.Quo(keep, big.NewInt(fractionScale))
	return Format(keep)
}

// Apply returns amount × f as a decimal string, truncating sub-cent
// remainders toward zero.
func (f Fraction) Apply(amount string) string {
	v, ok := Parse(amount)
	if !ok {
		return "0.00"
	}
	take := new(big.Int).Mul(v, big.NewInt(f.bp))
	take.Quo(take, big.NewInt(fractionScale))
	return Format(take)
}
