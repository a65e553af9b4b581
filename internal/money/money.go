// Package money provides shared USD parsing, formatting, and arithmetic.
//
// Amounts travel through the system as decimal strings ("25.00") and are
// computed as big.Int cents (1 USD = 100 cents), so wallet math never
// touches floating point.
package money

import (
	"math/big"
	"strings"
)

const Decimals = 2

// Parse converts a decimal string (e.g. "1.50") to cents (150).
// Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string parses to 0
//   - A single leading "-" is allowed (signed ledger amounts)
//   - More than one decimal point is rejected
//   - Fractional parts are padded or truncated to 2 places
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if s == "" {
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

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, false
	}
	if neg {
		result.Neg(result)
	}
	return result, true
}

// ParsePositive parses a decimal string and additionally rejects zero and
// negative amounts. Used for operation inputs where only a positive amount
// makes sense.
func ParsePositive(s string) (*big.Int, bool) {
	v, ok := Parse(s)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}

// Format converts cents to a decimal string with exactly two places
// (e.g. 150 -> "1.50", -2375 -> "-23.75").
func Format(cents *big.Int) string {
	if cents == nil {
		return "0.00"
	}
	neg := cents.Sign() < 0
	s := new(big.Int).Abs(cents).String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	split := len(s) - Decimals
	out := s[:split] + "." + s[split:]
	if neg {
		out = "-" + out
	}
	return out
}

// Add returns a+b formatted. Invalid inputs are treated as zero, matching
// the forgiving behavior snapshot math needs when a field is absent.
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

// Sub returns a-b formatted.
func Sub(a, b string) string {
	av, _ := Parse(a)
	bv, _ := Parse(b)
	if av == nil {
		av = big.NewInt(0)
	}
	if bv == nil {
		bv = big.NewInt(0)
	}
	return Format(new(big.Int).Sub(av, bv))
}

// Neg returns -a formatted.
func Neg(a string) string {
	av, _ := Parse(a)
	if av == nil {
		av = big.NewInt(0)
	}
	return Format(new(big.Int).Neg(av))
}

// Cmp compares two decimal strings: -1 if a<b, 0 if equal, 1 if a>b.
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

// IsNegative reports whether the amount parses to less than zero.
func IsNegative(a string) bool {
	return Cmp(a, "0") < 0
}

// Percent returns amount * pct / 100, rounded half-up to the cent.
// pct is given in basis points of a percent times 100, i.e. PercentBps.
func percentBps(amount *big.Int, bps int64) *big.Int {
	// amount * bps / 10000, half-up
	n := new(big.Int).Mul(amount, big.NewInt(bps))
	q, r := new(big.Int).QuoRem(n, big.NewInt(10000), new(big.Int))
	// round half-up on the truncated remainder
	if new(big.Int).Mul(r, big.NewInt(2)).CmpAbs(big.NewInt(10000)) >= 0 {
		if n.Sign() >= 0 {
			q.Add(q, big.NewInt(1))
		} else {
			q.Sub(q, big.NewInt(1))
		}
	}
	return q
}

// ApplyPercent returns amount * pct% formatted, rounded half-up to the
// cent. pct carries up to two decimal places itself (e.g. "4.50").
func ApplyPercent(amount string, pct string) (string, bool) {
	av, ok := Parse(amount)
	if !ok {
		return "", false
	}
	pv, ok := Parse(pct) // pct in hundredths => basis points
	if !ok {
		return "", false
	}
	return Format(percentBps(av, pv.Int64())), true
}
