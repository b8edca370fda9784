package uniswapv3

import (
	"context"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
)

// rollups are the period snapshots touched by one event. Swap adds its volume
// to them after they have been refreshed.
type rollups struct {
	day    *schema.UniswapDayData
	pool   []*schema.PoolIntervalData
	token0 []*schema.TokenIntervalData
	token1 []*schema.TokenIntervalData
}

func (m *UniswapV3Module) intervals() []schema.Interval {
	if m.minuteRollups {
		return []schema.Interval{schema.Day, schema.Hour, schema.Minute}
	}
	return []schema.Interval{schema.Day, schema.Hour}
}

// updateRollups refreshes the factory day and every pool and token period
// snapshot containing the event. Each snapshot counts the event once.
func (m *UniswapV3Module) updateRollups(ctx context.Context, sc *scope, factory *schema.Factory, pool *schema.Pool, token0, token1 *schema.Token, bundle *schema.Bundle) (*rollups, error) {
	ts := sc.event.Timestamp
	out := &rollups{}

	if factory != nil {
		day, err := updateUniswapDayData(ctx, sc.entities, factory, ts)
		if err != nil {
			return nil, err
		}
		out.day = day
	}

	for _, interval := range m.intervals() {
		pd, err := updatePoolInterval(ctx, sc.entities, interval, pool, ts)
		if err != nil {
			return nil, err
		}
		out.pool = append(out.pool, pd)

		if token0 == nil || token1 == nil {
			continue
		}
		t0, err := updateTokenInterval(ctx, sc.entities, interval, token0, bundle, ts)
		if err != nil {
			return nil, err
		}
		t1, err := updateTokenInterval(ctx, sc.entities, interval, token1, bundle, ts)
		if err != nil {
			return nil, err
		}
		out.token0 = append(out.token0, t0)
		out.token1 = append(out.token1, t1)
	}
	return out, nil
}

func updateUniswapDayData(ctx context.Context, e *schema.Entities, factory *schema.Factory, timestamp uint64) (*schema.UniswapDayData, error) {
	dayID := schema.Day.Index(timestamp)
	data, _, err := e.GetOrCreateUniswapDayData(ctx, strconv.FormatInt(dayID, 10), func() *schema.UniswapDayData {
		return &schema.UniswapDayData{
			ID:   strconv.FormatInt(dayID, 10),
			Date: dayID * schema.Day.Seconds,
		}
	})
	if err != nil {
		return nil, err
	}
	data.TvlUSD = factory.TotalValueLockedUSD
	data.TxCount++
	return data, nil
}

func updatePoolInterval(ctx context.Context, e *schema.Entities, interval schema.Interval, pool *schema.Pool, timestamp uint64) (*schema.PoolIntervalData, error) {
	idx := interval.Index(timestamp)
	id := schema.IntervalID(pool.ID, idx)
	data, _, err := e.GetOrCreatePoolInterval(ctx, interval, id, func() *schema.PoolIntervalData {
		return &schema.PoolIntervalData{
			ID:              id,
			Pool:            pool.ID,
			PeriodStartUnix: idx * interval.Seconds,
			Open:            pool.Token0Price,
			High:            pool.Token0Price,
			Low:             pool.Token0Price,
		}
	})
	if err != nil {
		return nil, err
	}

	price := pool.Token0Price
	if price.GreaterThan(data.High) {
		data.High = price
	}
	if price.LessThan(data.Low) {
		data.Low = price
	}
	data.Close = price
	data.Liquidity = new(big.Int).Set(pool.Liquidity)
	data.SqrtPrice = new(big.Int).Set(pool.SqrtPrice)
	data.FeeGrowthGlobal0X128 = new(big.Int).Set(pool.FeeGrowthGlobal0X128)
	data.FeeGrowthGlobal1X128 = new(big.Int).Set(pool.FeeGrowthGlobal1X128)
	data.Token0Price = pool.Token0Price
	data.Token1Price = pool.Token1Price
	data.Tick = pool.Tick
	data.TvlUSD = pool.TotalValueLockedUSD
	data.TxCount++
	return data, nil
}

func updateTokenInterval(ctx context.Context, e *schema.Entities, interval schema.Interval, token *schema.Token, bundle *schema.Bundle, timestamp uint64) (*schema.TokenIntervalData, error) {
	priceUSD := token.DerivedETH.Mul(bundle.EthPriceUSD)
	idx := interval.Index(timestamp)
	id := schema.IntervalID(token.ID, idx)
	data, _, err := e.GetOrCreateTokenInterval(ctx, interval, id, func() *schema.TokenIntervalData {
		return &schema.TokenIntervalData{
			ID:              id,
			Token:           token.ID,
			PeriodStartUnix: idx * interval.Seconds,
			Open:            priceUSD,
			High:            priceUSD,
			Low:             priceUSD,
		}
	})
	if err != nil {
		return nil, err
	}

	if priceUSD.GreaterThan(data.High) {
		data.High = priceUSD
	}
	if priceUSD.LessThan(data.Low) {
		data.Low = priceUSD
	}
	data.Close = priceUSD
	data.PriceUSD = priceUSD
	data.TotalValueLocked = token.TotalValueLocked
	data.TotalValueLockedUSD = token.TotalValueLockedUSD
	return data, nil
}

// addSwapVolume books a swap's volume and fees into its period snapshots.
func (r *rollups) addSwapVolume(v *swapVolume) {
	if r.day != nil {
		r.day.VolumeETH = r.day.VolumeETH.Add(v.trackedETH)
		r.day.VolumeUSD = r.day.VolumeUSD.Add(v.trackedUSD)
		r.day.VolumeUSDUntracked = r.day.VolumeUSDUntracked.Add(v.untrackedUSD)
		r.day.FeesUSD = r.day.FeesUSD.Add(v.feesUSD)
	}
	for _, pd := range r.pool {
		pd.VolumeUSD = pd.VolumeUSD.Add(v.trackedUSD)
		pd.VolumeToken0 = pd.VolumeToken0.Add(v.amount0Abs)
		pd.VolumeToken1 = pd.VolumeToken1.Add(v.amount1Abs)
		pd.FeesUSD = pd.FeesUSD.Add(v.feesUSD)
	}
	addTokenVolume(r.token0, v.amount0Abs, v)
	addTokenVolume(r.token1, v.amount1Abs, v)
}

func addTokenVolume(data []*schema.TokenIntervalData, amount decimal.Decimal, v *swapVolume) {
	for _, td := range data {
		td.Volume = td.Volume.Add(amount)
		td.VolumeUSD = td.VolumeUSD.Add(v.trackedUSD)
		td.UntrackedVolumeUSD = td.UntrackedVolumeUSD.Add(v.untrackedUSD)
		td.FeesUSD = td.FeesUSD.Add(v.feesUSD)
	}
}
