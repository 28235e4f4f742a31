package uniswap

import (
	"fmt"
	"math/big"
)

// AmountsForLiquidity splits liquidity into token amounts at the current price,
// following LiquidityAmounts.getAmountsForLiquidity. The range bounds may be
// passed in either order. Products are formed before dividing and every
// division truncates.
func AmountsForLiquidity(sqrtPriceX96, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int) (amount0, amount1 *big.Int) {
	a, b := sqrtRatioAX96, sqrtRatioBX96
	if a.Cmp(b) > 0 {
		a, b = b, a
	}

	switch {
	case sqrtPriceX96.Cmp(a) <= 0:
		return amount0ForLiquidity(a, b, liquidity), new(big.Int)
	case sqrtPriceX96.Cmp(b) < 0:
		return amount0ForLiquidity(sqrtPriceX96, b, liquidity), amount1ForLiquidity(a, sqrtPriceX96, liquidity)
	default:
		return new(big.Int), amount1ForLiquidity(a, b, liquidity)
	}
}

// liquidity * (b - a) * 2^96 / (a * b)
func amount0ForLiquidity(a, b, liquidity *big.Int) *big.Int {
	num := new(big.Int).Sub(b, a)
	num.Mul(num, liquidity)
	num.Lsh(num, 96)
	den := new(big.Int).Mul(a, b)
	if den.Sign() == 0 {
		return new(big.Int)
	}
	return num.Quo(num, den)
}

// liquidity * (b - a) / 2^96
func amount1ForLiquidity(a, b, liquidity *big.Int) *big.Int {
	num := new(big.Int).Sub(b, a)
	num.Mul(num, liquidity)
	return num.Rsh(num, 96)
}

// PoolShare returns the user's share of both reserves of a constant-product
// pair, reserve * balance / supply with truncation. ok is false when the pair
// has no supply or both shares truncate to zero.
func PoolShare(reserve0, reserve1, lpBalance, totalSupply *big.Int) (amount0, amount1 *big.Int, ok bool) {
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return nil, nil, false
	}

	amount0 = new(big.Int).Mul(reserve0, lpBalance)
	amount0.Quo(amount0, totalSupply)
	amount1 = new(big.Int).Mul(reserve1, lpBalance)
	amount1.Quo(amount1, totalSupply)

	if amount0.Sign() == 0 && amount1.Sign() == 0 {
		return nil, nil, false
	}
	return amount0, amount1, true
}

// FormatFeeTier renders a fee in hundredths of a basis point, 3000 -> "0.30%"
func FormatFeeTier(fee uint32) string {
	return fmt.Sprintf("%.2f%%", float64(fee)/10000)
}
