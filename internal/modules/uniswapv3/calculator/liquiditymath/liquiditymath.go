package liquiditymath

import (
	"errors"
	"math/big"
)

var (
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// AddDelta returns x + delta, failing when the result leaves the uint128 range.
func AddDelta(x, delta *big.Int) (*big.Int, error) {
	out := new(big.Int).Add(x, delta)
	if out.Sign() < 0 {
		return nil, ErrLiquidityUnderflow
	}
	if out.Cmp(maxUint128) > 0 {
		return nil, ErrLiquidityOverflow
	}
	return out, nil
}
