package uniswapv3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ubeswap/v3-indexer/internal/modules/core"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/calculator/liquiditymath"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
	"github.com/ubeswap/v3-indexer/internal/prices"
	"github.com/ubeswap/v3-indexer/internal/store"
)

var half = decimal.New(5, -1)

// handlerFuncs resolves manifest handler names.
var handlerFuncs = map[string]EventHandler{
	"handlePoolCreated": handlePoolCreated,
	"handleInitialize":  handleInitialize,
	"handleMint":        handleMint,
	"handleBurn":        handleBurn,
	"handleSwap":        handleSwap,
	"handleCollect":     handleCollect,
}

// registerEventHandlers maps every manifest event handler to its topic hash
func (m *UniswapV3Module) registerEventHandlers() error {
	register := func(ds core.DataSource) error {
		for _, h := range ds.Mapping.EventHandlers {
			fn, ok := handlerFuncs[h.Handler]
			if !ok {
				return fmt.Errorf("data source %s: unknown handler %s", ds.Name, h.Handler)
			}
			topic, ok := m.topicFor(ds.Source.ABI, h.Event)
			if !ok {
				return fmt.Errorf("data source %s: event %s not found in ABI %s", ds.Name, h.Event, ds.Source.ABI)
			}
			ev, _ := m.parser.Event(topic)
			m.handlers[topic] = fn
			m.names[topic] = ev.Name
		}
		return nil
	}

	for _, ds := range m.manifest.DataSources {
		if ds.Source.ABI == FactoryABIName && ds.Source.Address != nil {
			m.factoryAddress = common.HexToAddress(*ds.Source.Address)
		}
		if err := register(ds); err != nil {
			return err
		}
	}
	for _, ds := range m.manifest.Templates {
		if err := register(ds); err != nil {
			return err
		}
	}

	if m.factoryAddress == (common.Address{}) {
		return errors.New("manifest has no Factory data source")
	}
	if _, ok := m.manifest.Template(PoolTemplate); !ok {
		return fmt.Errorf("manifest has no %s template", PoolTemplate)
	}
	return nil
}

// handlePoolCreated registers a new pool and any token seen for the first time
func handlePoolCreated(ctx context.Context, m *UniswapV3Module, sc *scope) error {
	ev, err := decodePoolCreated(sc.event)
	if err != nil {
		return err
	}
	if sc.event.Address != m.factoryAddress {
		return nil
	}

	e := sc.entities
	factory, created, err := e.GetOrCreateFactory(ctx, m.FactoryID())
	if err != nil {
		return err
	}
	if created {
		if _, _, err := e.GetOrCreateBundle(ctx); err != nil {
			return err
		}
	}
	factory.PoolCount++

	token0, err := m.bootstrapToken(ctx, e, ev.Token0)
	if err != nil {
		return err
	}
	token1, err := m.bootstrapToken(ctx, e, ev.Token1)
	if err != nil {
		return err
	}

	poolID := schema.ID(ev.Pool)
	if m.router.IsWhitelisted(token0.ID) {
		token1.WhitelistPools = appendUnique(token1.WhitelistPools, poolID)
	}
	if m.router.IsWhitelisted(token1.ID) {
		token0.WhitelistPools = appendUnique(token0.WhitelistPools, poolID)
	}
	token0.PoolCount++
	token1.PoolCount++

	e.PutPool(schema.NewPool(poolID, token0.ID, token1.ID, ev.Fee, ev.TickSpacing, sc.event.Timestamp, sc.event.BlockNumber))

	if m.dataSources != nil {
		m.dataSources.CreateDataSource(PoolTemplate, ev.Pool)
	}

	m.logger.Info().
		Str("pool", poolID).
		Str("token0", token0.Symbol).
		Str("token1", token1.Symbol).
		Uint32("fee", ev.Fee).
		Uint64("block", sc.event.BlockNumber).
		Msg("V3 pool created")
	return nil
}

// handleInitialize records the starting price of a pool
func handleInitialize(ctx context.Context, m *UniswapV3Module, sc *scope) error {
	ev, err := decodeInitialize(sc.event)
	if err != nil {
		return err
	}

	e := sc.entities
	pool, err := e.Pool(ctx, schema.ID(sc.event.Address))
	if err != nil {
		return err
	}
	token0, err := e.Token(ctx, pool.Token0)
	if err != nil {
		return err
	}
	token1, err := e.Token(ctx, pool.Token1)
	if err != nil {
		return err
	}
	bundle, err := e.Bundle(ctx)
	if err != nil {
		return err
	}

	pool.SqrtPrice = new(big.Int).Set(ev.SqrtPriceX96)
	tick := ev.Tick
	pool.Tick = &tick
	pool.Token0Price, pool.Token1Price = prices.SqrtPriceX96ToTokenPrices(pool.SqrtPrice, token0.Decimals, token1.Decimals)

	if err := m.refreshPrices(ctx, e, bundle, token0, token1); err != nil {
		return err
	}

	_, err = m.updateRollups(ctx, sc, nil, pool, nil, nil, bundle)
	return err
}

// handleMint adds liquidity to a pool, its boundary ticks and the position
func handleMint(ctx context.Context, m *UniswapV3Module, sc *scope) error {
	ev, err := decodeMint(sc.event)
	if err != nil {
		return err
	}
	st, err := m.loadPoolState(ctx, sc)
	if err != nil {
		return err
	}
	pool, token0, token1 := st.pool, st.token0, st.token1

	amount0 := prices.ConvertTokenToDecimal(ev.Amount0, token0.Decimals)
	amount1 := prices.ConvertTokenToDecimal(ev.Amount1, token1.Decimals)
	amountUSD := prices.AmountUSD(amount0, token0, amount1, token1, st.bundle.EthPriceUSD)

	st.detachTVL()
	st.countTx()

	token0.TotalValueLocked = token0.TotalValueLocked.Add(amount0)
	token1.TotalValueLocked = token1.TotalValueLocked.Add(amount1)

	if pool.InRange(ev.TickLower, ev.TickUpper) {
		liquidity, err := liquiditymath.AddDelta(pool.Liquidity, ev.Amount)
		if err != nil {
			return fmt.Errorf("pool %s: %w", pool.ID, err)
		}
		pool.Liquidity = liquidity
	}
	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Add(amount0)
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Add(amount1)

	st.attachTVL()

	tx, err := loadTransaction(ctx, sc)
	if err != nil {
		return err
	}
	owner := schema.ID(ev.Owner)
	sc.entities.PutMint(&schema.Mint{
		ID:          fmt.Sprintf("%s#%d", tx.ID, pool.TxCount),
		Transaction: tx.ID,
		Timestamp:   tx.Timestamp,
		Pool:        pool.ID,
		Token0:      token0.ID,
		Token1:      token1.ID,
		Owner:       owner,
		Sender:      schema.ID(ev.Sender),
		Origin:      tx.Origin,
		Amount:      new(big.Int).Set(ev.Amount),
		Amount0:     amount0,
		Amount1:     amount1,
		AmountUSD:   amountUSD,
		TickLower:   ev.TickLower,
		TickUpper:   ev.TickUpper,
		LogIndex:    sc.event.LogIndex,
	})

	if err := updateTicks(ctx, sc, pool, ev.TickLower, ev.TickUpper, ev.Amount); err != nil {
		return err
	}

	position, created, err := sc.entities.GetOrCreatePosition(ctx, owner, pool, ev.TickLower, ev.TickUpper)
	if err != nil {
		return err
	}
	if created {
		pool.LiquidityProviderCount++
	}
	position.Liquidity, err = liquiditymath.AddDelta(position.Liquidity, ev.Amount)
	if err != nil {
		return fmt.Errorf("position %s: %w", position.ID, err)
	}
	position.DepositedToken0 = position.DepositedToken0.Add(amount0)
	position.DepositedToken1 = position.DepositedToken1.Add(amount1)
	position.AmountDepositedUSD = position.AmountDepositedUSD.Add(amountUSD)
	position.Transaction = tx.ID
	position.Closed = position.Liquidity.Sign() == 0
	savePositionSnapshot(sc, position)

	_, err = m.updateRollups(ctx, sc, st.factory, pool, token0, token1, st.bundle)
	return err
}

// handleBurn removes liquidity. The burned amounts leave TVL here; collecting
// them later only moves principal already accounted for.
func handleBurn(ctx context.Context, m *UniswapV3Module, sc *scope) error {
	ev, err := decodeBurn(sc.event)
	if err != nil {
		return err
	}
	st, err := m.loadPoolState(ctx, sc)
	if err != nil {
		return err
	}
	pool, token0, token1 := st.pool, st.token0, st.token1

	amount0 := prices.ConvertTokenToDecimal(ev.Amount0, token0.Decimals)
	amount1 := prices.ConvertTokenToDecimal(ev.Amount1, token1.Decimals)
	amountUSD := prices.AmountUSD(amount0, token0, amount1, token1, st.bundle.EthPriceUSD)
	delta := new(big.Int).Neg(ev.Amount)

	st.detachTVL()
	st.countTx()

	token0.TotalValueLocked = token0.TotalValueLocked.Sub(amount0)
	token1.TotalValueLocked = token1.TotalValueLocked.Sub(amount1)

	if pool.InRange(ev.TickLower, ev.TickUpper) {
		liquidity, err := liquiditymath.AddDelta(pool.Liquidity, delta)
		if err != nil {
			return fmt.Errorf("pool %s: %w", pool.ID, err)
		}
		pool.Liquidity = liquidity
	}
	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Sub(amount0)
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Sub(amount1)

	st.attachTVL()

	tx, err := loadTransaction(ctx, sc)
	if err != nil {
		return err
	}
	owner := schema.ID(ev.Owner)
	sc.entities.PutBurn(&schema.Burn{
		ID:          fmt.Sprintf("%s#%d", tx.ID, pool.TxCount),
		Transaction: tx.ID,
		Timestamp:   tx.Timestamp,
		Pool:        pool.ID,
		Token0:      token0.ID,
		Token1:      token1.ID,
		Owner:       owner,
		Origin:      tx.Origin,
		Amount:      new(big.Int).Set(ev.Amount),
		Amount0:     amount0,
		Amount1:     amount1,
		AmountUSD:   amountUSD,
		TickLower:   ev.TickLower,
		TickUpper:   ev.TickUpper,
		LogIndex:    sc.event.LogIndex,
	})

	if err := updateTicks(ctx, sc, pool, ev.TickLower, ev.TickUpper, delta); err != nil {
		return err
	}

	position, err := sc.entities.Position(ctx, schema.PositionID(owner, pool.ID, ev.TickLower, ev.TickUpper))
	switch {
	case errors.Is(err, store.ErrNotFound):
		m.logger.Warn().
			Str("pool", pool.ID).
			Str("owner", owner).
			Int32("tick_lower", ev.TickLower).
			Int32("tick_upper", ev.TickUpper).
			Msg("Burn for unknown position")
	case err != nil:
		return err
	default:
		position.Liquidity, err = liquiditymath.AddDelta(position.Liquidity, delta)
		if err != nil {
			return fmt.Errorf("position %s: %w", position.ID, err)
		}
		position.WithdrawnToken0 = position.WithdrawnToken0.Add(amount0)
		position.WithdrawnToken1 = position.WithdrawnToken1.Add(amount1)
		position.AmountWithdrawnUSD = position.AmountWithdrawnUSD.Add(amountUSD)
		position.Transaction = tx.ID
		position.Closed = position.Liquidity.Sign() == 0
		savePositionSnapshot(sc, position)
	}

	_, err = m.updateRollups(ctx, sc, st.factory, pool, token0, token1, st.bundle)
	return err
}

// swapVolume is the valuation of one swap.
type swapVolume struct {
	amount0Abs   decimal.Decimal
	amount1Abs   decimal.Decimal
	trackedUSD   decimal.Decimal
	trackedETH   decimal.Decimal
	untrackedUSD decimal.Decimal
	feesUSD      decimal.Decimal
	feesETH      decimal.Decimal
}

// handleSwap books volume and fees and moves the pool to its post-swap state
func handleSwap(ctx context.Context, m *UniswapV3Module, sc *scope) error {
	ev, err := decodeSwap(sc.event)
	if err != nil {
		return err
	}
	st, err := m.loadPoolState(ctx, sc)
	if err != nil {
		return err
	}
	factory, pool, token0, token1, bundle := st.factory, st.pool, st.token0, st.token1, st.bundle

	amount0 := prices.ConvertTokenToDecimal(ev.Amount0, token0.Decimals)
	amount1 := prices.ConvertTokenToDecimal(ev.Amount1, token1.Decimals)

	v := &swapVolume{amount0Abs: amount0.Abs(), amount1Abs: amount1.Abs()}
	amount0USD := v.amount0Abs.Mul(token0.DerivedETH).Mul(bundle.EthPriceUSD)
	amount1USD := v.amount1Abs.Mul(token1.DerivedETH).Mul(bundle.EthPriceUSD)
	v.untrackedUSD = prices.Normalize(amount0USD.Add(amount1USD).Mul(half))
	v.trackedUSD = m.router.TrackedAmountUSD(v.amount0Abs, token0, v.amount1Abs, token1, bundle.EthPriceUSD)
	v.trackedETH = prices.SafeDiv(v.trackedUSD, bundle.EthPriceUSD)
	v.feesETH = prices.FeeAmount(v.trackedETH, pool.FeeTier)
	v.feesUSD = prices.FeeAmount(v.trackedUSD, pool.FeeTier)

	factory.TotalVolumeETH = factory.TotalVolumeETH.Add(v.trackedETH)
	factory.TotalVolumeUSD = factory.TotalVolumeUSD.Add(v.trackedUSD)
	factory.UntrackedVolumeUSD = factory.UntrackedVolumeUSD.Add(v.untrackedUSD)
	factory.TotalFeesETH = factory.TotalFeesETH.Add(v.feesETH)
	factory.TotalFeesUSD = factory.TotalFeesUSD.Add(v.feesUSD)

	st.detachTVL()
	st.countTx()

	pool.VolumeToken0 = pool.VolumeToken0.Add(v.amount0Abs)
	pool.VolumeToken1 = pool.VolumeToken1.Add(v.amount1Abs)
	pool.VolumeUSD = pool.VolumeUSD.Add(v.trackedUSD)
	pool.UntrackedVolumeUSD = pool.UntrackedVolumeUSD.Add(v.untrackedUSD)
	pool.FeesUSD = pool.FeesUSD.Add(v.feesUSD)

	pool.Liquidity = new(big.Int).Set(ev.Liquidity)
	tick := ev.Tick
	pool.Tick = &tick
	pool.SqrtPrice = new(big.Int).Set(ev.SqrtPriceX96)
	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Add(amount0)
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Add(amount1)

	for _, leg := range []struct {
		token  *schema.Token
		amount decimal.Decimal
		abs    decimal.Decimal
	}{{token0, amount0, v.amount0Abs}, {token1, amount1, v.amount1Abs}} {
		leg.token.Volume = leg.token.Volume.Add(leg.abs)
		leg.token.TotalValueLocked = leg.token.TotalValueLocked.Add(leg.amount)
		leg.token.VolumeUSD = leg.token.VolumeUSD.Add(v.trackedUSD)
		leg.token.UntrackedVolumeUSD = leg.token.UntrackedVolumeUSD.Add(v.untrackedUSD)
		leg.token.FeesUSD = leg.token.FeesUSD.Add(v.feesUSD)
	}

	pool.Token0Price, pool.Token1Price = prices.SqrtPriceX96ToTokenPrices(pool.SqrtPrice, token0.Decimals, token1.Decimals)
	if err := m.refreshPrices(ctx, sc.entities, bundle, token0, token1); err != nil {
		return err
	}

	st.attachTVL()

	tx, err := loadTransaction(ctx, sc)
	if err != nil {
		return err
	}
	sc.entities.PutSwap(&schema.Swap{
		ID:           fmt.Sprintf("%s#%d", tx.ID, pool.TxCount),
		Transaction:  tx.ID,
		Timestamp:    tx.Timestamp,
		Pool:         pool.ID,
		Token0:       token0.ID,
		Token1:       token1.ID,
		Sender:       schema.ID(ev.Sender),
		Recipient:    schema.ID(ev.Recipient),
		Origin:       tx.Origin,
		Amount0:      amount0,
		Amount1:      amount1,
		AmountUSD:    v.trackedUSD,
		SqrtPriceX96: new(big.Int).Set(ev.SqrtPriceX96),
		Tick:         ev.Tick,
		LogIndex:     sc.event.LogIndex,
	})

	r, err := m.updateRollups(ctx, sc, factory, pool, token0, token1, bundle)
	if err != nil {
		return err
	}
	r.addSwapVolume(v)
	return nil
}

// handleCollect withdraws owed tokens. Only the fee share of a collect leaves
// TVL: principal was already removed when it was burned.
func handleCollect(ctx context.Context, m *UniswapV3Module, sc *scope) error {
	ev, err := decodeCollect(sc.event)
	if err != nil {
		return err
	}
	st, err := m.loadPoolState(ctx, sc)
	if err != nil {
		return err
	}
	pool, token0, token1 := st.pool, st.token0, st.token1
	ethPrice := st.bundle.EthPriceUSD

	amount0 := prices.ConvertTokenToDecimal(ev.Amount0, token0.Decimals)
	amount1 := prices.ConvertTokenToDecimal(ev.Amount1, token1.Decimals)

	owner := schema.ID(ev.Owner)
	position, err := sc.entities.Position(ctx, schema.PositionID(owner, pool.ID, ev.TickLower, ev.TickUpper))
	if errors.Is(err, store.ErrNotFound) {
		position = nil
	} else if err != nil {
		return err
	}

	fees0, fees1 := amount0, amount1
	if position != nil {
		owed0, owed1 := position.PrincipalOwed()
		fees0 = amount0.Sub(decimal.Min(owed0, amount0))
		fees1 = amount1.Sub(decimal.Min(owed1, amount1))
	} else {
		m.logger.Warn().
			Str("pool", pool.ID).
			Str("owner", owner).
			Int32("tick_lower", ev.TickLower).
			Int32("tick_upper", ev.TickUpper).
			Msg("Collect for unknown position, counting it as fees")
	}
	amountUSD := prices.AmountUSD(amount0, token0, amount1, token1, ethPrice)
	feesUSD := prices.AmountUSD(fees0, token0, fees1, token1, ethPrice)

	st.detachTVL()
	st.countTx()

	token0.TotalValueLocked = token0.TotalValueLocked.Sub(fees0)
	token1.TotalValueLocked = token1.TotalValueLocked.Sub(fees1)

	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Sub(fees0)
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Sub(fees1)
	pool.CollectedFeesToken0 = pool.CollectedFeesToken0.Add(fees0)
	pool.CollectedFeesToken1 = pool.CollectedFeesToken1.Add(fees1)
	pool.CollectedFeesUSD = pool.CollectedFeesUSD.Add(feesUSD)

	st.attachTVL()

	tx, err := loadTransaction(ctx, sc)
	if err != nil {
		return err
	}
	sc.entities.PutCollect(&schema.Collect{
		ID:          fmt.Sprintf("%s#%d", tx.ID, pool.TxCount),
		Transaction: tx.ID,
		Timestamp:   tx.Timestamp,
		Pool:        pool.ID,
		Owner:       owner,
		Recipient:   schema.ID(ev.Recipient),
		Amount0:     amount0,
		Amount1:     amount1,
		AmountUSD:   amountUSD,
		TickLower:   ev.TickLower,
		TickUpper:   ev.TickUpper,
		LogIndex:    sc.event.LogIndex,
	})

	if position != nil {
		position.CollectedToken0 = position.CollectedToken0.Add(amount0)
		position.CollectedToken1 = position.CollectedToken1.Add(amount1)
		position.CollectedFeesToken0 = position.CollectedFeesToken0.Add(fees0)
		position.CollectedFeesToken1 = position.CollectedFeesToken1.Add(fees1)
		position.AmountCollectedUSD = position.AmountCollectedUSD.Add(amountUSD)
		position.Transaction = tx.ID
		savePositionSnapshot(sc, position)
	}

	_, err = m.updateRollups(ctx, sc, st.factory, pool, token0, token1, st.bundle)
	return err
}

// poolState groups the entities every pool event reads and writes.
type poolState struct {
	factory *schema.Factory
	bundle  *schema.Bundle
	pool    *schema.Pool
	token0  *schema.Token
	token1  *schema.Token
}

func (m *UniswapV3Module) loadPoolState(ctx context.Context, sc *scope) (*poolState, error) {
	e := sc.entities
	st := &poolState{}
	var err error

	if st.pool, err = e.Pool(ctx, schema.ID(sc.event.Address)); err != nil {
		return nil, err
	}
	if st.factory, err = e.Factory(ctx, m.FactoryID()); err != nil {
		return nil, err
	}
	if st.bundle, err = e.Bundle(ctx); err != nil {
		return nil, err
	}
	if st.token0, err = e.Token(ctx, st.pool.Token0); err != nil {
		return nil, err
	}
	if st.token1, err = e.Token(ctx, st.pool.Token1); err != nil {
		return nil, err
	}
	return st, nil
}

func (st *poolState) countTx() {
	st.factory.TxCount++
	st.pool.TxCount++
	st.token0.TxCount++
	st.token1.TxCount++
}

// detachTVL removes the pool's current contribution from the factory totals.
// Every detach is paired with attachTVL once the pool has been updated.
func (st *poolState) detachTVL() {
	st.factory.TotalValueLockedETH = st.factory.TotalValueLockedETH.Sub(st.pool.TotalValueLockedETH)
	st.factory.TotalValueLockedUSDUntracked = st.factory.TotalValueLockedUSDUntracked.Sub(st.pool.TotalValueLockedUSDUntracked)
}

// attachTVL revalues the pool and both tokens at current prices and adds the
// pool back into the factory totals.
func (st *poolState) attachTVL() {
	ethPrice := st.bundle.EthPriceUSD
	pool, token0, token1, factory := st.pool, st.token0, st.token1, st.factory

	pool.TotalValueLockedETH = prices.Normalize(pool.TotalValueLockedToken0.Mul(token0.DerivedETH)).
		Add(prices.Normalize(pool.TotalValueLockedToken1.Mul(token1.DerivedETH)))
	pool.TotalValueLockedUSD = prices.Normalize(pool.TotalValueLockedETH.Mul(ethPrice))
	pool.TotalValueLockedUSDUntracked = prices.AmountUSD(pool.TotalValueLockedToken0, token0, pool.TotalValueLockedToken1, token1, ethPrice)

	factory.TotalValueLockedETH = factory.TotalValueLockedETH.Add(pool.TotalValueLockedETH)
	factory.TotalValueLockedUSDUntracked = factory.TotalValueLockedUSDUntracked.Add(pool.TotalValueLockedUSDUntracked)
	factory.TotalValueLockedUSD = prices.Normalize(factory.TotalValueLockedETH.Mul(ethPrice))
	factory.TotalValueLockedETHUntracked = prices.SafeDiv(factory.TotalValueLockedUSDUntracked, ethPrice)

	for _, t := range []*schema.Token{token0, token1} {
		t.TotalValueLockedUSD = prices.Normalize(t.TotalValueLocked.Mul(t.DerivedETH).Mul(ethPrice))
		t.TotalValueLockedUSDUntracked = t.TotalValueLockedUSD
	}
}

// refreshPrices recomputes the bundle price and both tokens' derived ETH.
func (m *UniswapV3Module) refreshPrices(ctx context.Context, e *schema.Entities, bundle *schema.Bundle, token0, token1 *schema.Token) error {
	ethPrice, err := m.router.EthPriceInUSD(ctx, e)
	if err != nil {
		return err
	}
	bundle.EthPriceUSD = ethPrice

	if token0.DerivedETH, err = m.router.FindEthPerToken(ctx, e, token0); err != nil {
		return err
	}
	if token1.DerivedETH, err = m.router.FindEthPerToken(ctx, e, token1); err != nil {
		return err
	}
	return nil
}

// updateTicks applies a liquidity delta to the range's boundary ticks.
func updateTicks(ctx context.Context, sc *scope, pool *schema.Pool, tickLower, tickUpper int32, delta *big.Int) error {
	lower, err := loadTick(ctx, sc, pool, tickLower)
	if err != nil {
		return err
	}
	upper, err := loadTick(ctx, sc, pool, tickUpper)
	if err != nil {
		return err
	}

	if lower.LiquidityGross, err = liquiditymath.AddDelta(lower.LiquidityGross, delta); err != nil {
		return fmt.Errorf("tick %s: %w", lower.ID, err)
	}
	if upper.LiquidityGross, err = liquiditymath.AddDelta(upper.LiquidityGross, delta); err != nil {
		return fmt.Errorf("tick %s: %w", upper.ID, err)
	}
	lower.LiquidityNet = new(big.Int).Add(lower.LiquidityNet, delta)
	upper.LiquidityNet = new(big.Int).Sub(upper.LiquidityNet, delta)
	return nil
}

func loadTransaction(ctx context.Context, sc *scope) (*schema.Transaction, error) {
	id := strings.ToLower(sc.event.TransactionHash.Hex())
	return sc.entities.GetOrCreateTransaction(ctx, id, func() *schema.Transaction {
		return &schema.Transaction{
			ID:          id,
			BlockNumber: sc.event.BlockNumber,
			Timestamp:   sc.event.Timestamp,
			Origin:      schema.ID(sc.event.Origin),
		}
	})
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}
