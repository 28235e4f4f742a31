// Package fixedpoint converts raw on-chain integers into display quantities.
//
// All arithmetic happens on *big.Int before any conversion to float64 or text,
// and every conversion truncates toward zero the way Solidity integer division does.
package fixedpoint

import (
	"math"
	"math/big"
)

// MaxSafeInteger is the largest integer a float64 represents exactly (2^53 - 1).
var MaxSafeInteger = big.NewInt(1<<53 - 1)

// Pow10 returns 10^n as a new big.Int.
func Pow10(n uint) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ScaleDownSafe converts raw / 10^pow into a float64.
//
// The magnitude is split into whole and fractional parts before conversion so that
// the whole part is truncated toward zero exactly. When the whole part does not fit
// in MaxSafeInteger the result is +Inf or -Inf rather than a rounded finite value.
func ScaleDownSafe(raw *big.Int, pow uint) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}

	sign := 1.0
	if raw.Sign() < 0 {
		sign = -1.0
	}
	abs := new(big.Int).Abs(raw)

	denom := Pow10(pow)
	whole, frac := new(big.Int).QuoRem(abs, denom, new(big.Int))

	if whole.Cmp(MaxSafeInteger) > 0 {
		return sign * math.Inf(1)
	}

	fracNum, _ := new(big.Float).Quo(new(big.Float).SetInt(frac), new(big.Float).SetInt(denom)).Float64()
	return sign * (float64(whole.Int64()) + fracNum)
}
