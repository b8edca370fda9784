package uniswapv3

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/calculator/sqrtpricemath"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/calculator/tickmath"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
	"github.com/ubeswap/v3-indexer/internal/prices"
	"github.com/ubeswap/v3-indexer/internal/store"
)

// loadTick returns the tick at idx in pool, creating it priced at 1.0001^idx.
func loadTick(ctx context.Context, sc *scope, pool *schema.Pool, idx int32) (*schema.Tick, error) {
	id := schema.TickID(pool.ID, idx)
	tick, err := sc.entities.Tick(ctx, id)
	if err == nil {
		return tick, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	sqrtRatio, err := tickmath.GetSqrtRatioAtTick(idx)
	if err != nil {
		return nil, fmt.Errorf("tick %d of pool %s: %w", idx, pool.ID, err)
	}
	// raw ratio, before token decimals
	inverse, ratio := prices.SqrtPriceX96ToTokenPrices(sqrtRatio, 0, 0)

	tick, _, err = sc.entities.GetOrCreateTick(ctx, id, func() *schema.Tick {
		return &schema.Tick{
			ID:                    id,
			PoolAddress:           pool.ID,
			TickIdx:               idx,
			Pool:                  pool.ID,
			LiquidityGross:        new(big.Int),
			LiquidityNet:          new(big.Int),
			Price0:                ratio,
			Price1:                inverse,
			CreatedAtTimestamp:    sc.event.Timestamp,
			CreatedAtBlockNumber:  sc.event.BlockNumber,
			FeeGrowthOutside0X128: new(big.Int),
			FeeGrowthOutside1X128: new(big.Int),
		}
	})
	return tick, err
}

// savePositionSnapshot records the position's counters as of this event.
func savePositionSnapshot(sc *scope, position *schema.Position) {
	sc.entities.PutPositionSnapshot(&schema.PositionSnapshot{
		ID:                  fmt.Sprintf("%s#%d#%d", position.ID, sc.event.BlockNumber, sc.event.LogIndex),
		Owner:               position.Owner,
		Pool:                position.Pool,
		Position:            position.ID,
		BlockNumber:         sc.event.BlockNumber,
		Timestamp:           sc.event.Timestamp,
		Liquidity:           new(big.Int).Set(position.Liquidity),
		DepositedToken0:     position.DepositedToken0,
		DepositedToken1:     position.DepositedToken1,
		WithdrawnToken0:     position.WithdrawnToken0,
		WithdrawnToken1:     position.WithdrawnToken1,
		CollectedFeesToken0: position.CollectedFeesToken0,
		CollectedFeesToken1: position.CollectedFeesToken1,
		Transaction:         position.Transaction,
	})
}

// PositionAmounts returns the token amounts a position's liquidity is worth at
// the pool's current price. Uninitialised pools hold nothing.
func PositionAmounts(pool *schema.Pool, position *schema.Position) (amount0, amount1 *big.Int, err error) {
	if pool.SqrtPrice == nil || pool.SqrtPrice.Sign() == 0 {
		return new(big.Int), new(big.Int), nil
	}
	lower, err := tickmath.GetSqrtRatioAtTick(position.TickLowerIdx)
	if err != nil {
		return nil, nil, err
	}
	upper, err := tickmath.GetSqrtRatioAtTick(position.TickUpperIdx)
	if err != nil {
		return nil, nil, err
	}
	return sqrtpricemath.AmountsForLiquidity(pool.SqrtPrice, lower, upper, position.Liquidity)
}
