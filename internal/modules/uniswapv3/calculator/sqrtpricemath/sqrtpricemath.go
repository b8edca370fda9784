// Package sqrtpricemath computes token amounts covered by a liquidity range.
package sqrtpricemath

import (
	"errors"
	"math/big"
)

// Resolution is the number of fractional bits in a Q64.96 price.
const Resolution = 96

var (
	// Q96 is 1.0 in Q64.96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), Resolution)

	ErrSqrtPriceZero = errors.New("sqrt price must be greater than zero")

	one = big.NewInt(1)
)

// GetAmount0Delta returns liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB) in Q96
// terms, i.e. the amount of token0 between the two prices.
func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}

	numerator1 := new(big.Int).Lsh(liquidity, Resolution)
	numerator2 := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		term := mulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96)
		return divRoundingUp(term, sqrtRatioAX96), nil
	}
	term := new(big.Int).Mul(numerator1, numerator2)
	term.Quo(term, sqrtRatioBX96)
	return term.Quo(term, sqrtRatioAX96), nil
}

// GetAmount1Delta returns liquidity * (sqrtB - sqrtA) / 2^96, the amount of
// token1 between the two prices.
func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96)
	}
	out := new(big.Int).Mul(liquidity, diff)
	return out.Quo(out, Q96)
}

// AmountsForLiquidity splits a position's liquidity into token amounts at the
// current price, following the three cases of the periphery LiquidityAmounts
// library: below, inside and above the range.
func AmountsForLiquidity(sqrtPriceX96, sqrtRatioLowerX96, sqrtRatioUpperX96, liquidity *big.Int) (amount0, amount1 *big.Int, err error) {
	if sqrtRatioLowerX96.Cmp(sqrtRatioUpperX96) > 0 {
		sqrtRatioLowerX96, sqrtRatioUpperX96 = sqrtRatioUpperX96, sqrtRatioLowerX96
	}

	switch {
	case sqrtPriceX96.Cmp(sqrtRatioLowerX96) <= 0:
		amount0, err = GetAmount0Delta(sqrtRatioLowerX96, sqrtRatioUpperX96, liquidity, false)
		amount1 = new(big.Int)
	case sqrtPriceX96.Cmp(sqrtRatioUpperX96) < 0:
		amount0, err = GetAmount0Delta(sqrtPriceX96, sqrtRatioUpperX96, liquidity, false)
		amount1 = GetAmount1Delta(sqrtRatioLowerX96, sqrtPriceX96, liquidity, false)
	default:
		amount0 = new(big.Int)
		amount1 = GetAmount1Delta(sqrtRatioLowerX96, sqrtRatioUpperX96, liquidity, false)
	}
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}

func divRoundingUp(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}
