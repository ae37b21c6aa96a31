package scanner

import (
	"math"
	"strconv"

	"github.com/wudi/pdfcodec/ir/raw"
)

// ParseNumber classifies a numeric literal as a 32-bit integer, a 64-bit integer
// or a real, widening instead of failing on overflow. Malformed literals still
// produce a best-effort value; defect describes what was wrong with them.
// Literals beyond the float64 range clamp to the largest finite real.
//
// Accepted oddities: a leading '+', repeated signs ("--5", an odd number of
// minus signs is negative), fraction-only values (".5", "-.456"), trailing dots
// ("-2147483648."), and arbitrarily long digit runs. A sign or second point in
// the middle of a literal ends it.
func ParseNumber(lit []byte) (n raw.NumberObj, defect string) {
	i := 0
	neg := false
	signs := 0
	for i < len(lit) && (lit[i] == '+' || lit[i] == '-') {
		if lit[i] == '-' {
			neg = !neg
		}
		signs++
		i++
	}
	if signs > 1 {
		defect = "repeated sign"
	}

	digits := make([]byte, 0, len(lit)+1)
	if neg {
		digits = append(digits, '-')
	}
	sawDigit := false
	sawPoint := false
	for ; i < len(lit); i++ {
		c := lit[i]
		if c >= '0' && c <= '9' {
			digits = append(digits, c)
			sawDigit = true
			continue
		}
		if c == '.' && !sawPoint {
			sawPoint = true
			digits = append(digits, c)
			continue
		}
		defect = "unexpected '" + string(c) + "'"
		break
	}
	if !sawDigit {
		if defect == "" {
			defect = "no digits"
		}
		return raw.NumberInt(0), defect
	}

	if !sawPoint {
		v, err := strconv.ParseInt(string(digits), 10, 64)
		if err == nil {
			return raw.NumberInt(v), defect
		}
		// too wide for 64 bits: fall through to a real
	}
	f, err := strconv.ParseFloat(string(digits), 64)
	if err != nil {
		// only range errors remain possible; ParseFloat returns ±Inf for them
		if math.IsInf(f, 0) {
			return raw.NumberFloat(math.Copysign(math.MaxFloat64, f)), "out of range"
		}
		return raw.NumberInt(0), err.Error()
	}
	return raw.NumberFloat(f), defect
}
