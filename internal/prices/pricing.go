// Package prices derives token prices from pool state: pool prices from
// sqrtPriceX96, the wrapped native token's USD price from a reference
// stablecoin pool, and every other token's native-denominated price by
// routing through whitelisted pools.
package prices

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
	"github.com/ubeswap/v3-indexer/internal/store"
)

// Config describes the chain's pricing anchors. Addresses are hex, any case.
type Config struct {
	WrappedNative      string
	StablecoinPool     string
	StablecoinIsToken0 bool
	Whitelist          []string
	Stablecoins        []string
	MinimumEthLocked   decimal.Decimal
}

// Router prices tokens against the wrapped native token.
type Router struct {
	wrappedNative      string
	stablecoinPool     string
	stablecoinIsToken0 bool
	whitelist          map[string]bool
	stable             map[string]bool
	minimumEthLocked   decimal.Decimal
}

// NewRouter builds a router from cfg, lower-casing every address.
func NewRouter(cfg Config) *Router {
	r := &Router{
		wrappedNative:      strings.ToLower(cfg.WrappedNative),
		stablecoinPool:     strings.ToLower(cfg.StablecoinPool),
		stablecoinIsToken0: cfg.StablecoinIsToken0,
		whitelist:          make(map[string]bool, len(cfg.Whitelist)),
		stable:             make(map[string]bool, len(cfg.Stablecoins)),
		minimumEthLocked:   cfg.MinimumEthLocked,
	}
	for _, a := range cfg.Whitelist {
		r.whitelist[strings.ToLower(a)] = true
	}
	for _, a := range cfg.Stablecoins {
		r.stable[strings.ToLower(a)] = true
	}
	return r
}

// IsWhitelisted reports whether a token may anchor prices and tracked volume.
func (r *Router) IsWhitelisted(token string) bool { return r.whitelist[token] }

// WrappedNative returns the id of the wrapped native token.
func (r *Router) WrappedNative() string { return r.wrappedNative }

// StablecoinPool returns the id of the reference stablecoin pool.
func (r *Router) StablecoinPool() string { return r.stablecoinPool }

var pow5x192 = new(big.Int).Exp(big.NewInt(5), big.NewInt(192), nil)

// SqrtPriceX96ToTokenPrices converts a pool's Q64.96 square-root price into
// decimal-adjusted prices: price1 is token1 per token0, price0 its inverse.
func SqrtPriceX96ToTokenPrices(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (price0, price1 decimal.Decimal) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return decimal.Zero, decimal.Zero
	}
	// sqrtP^2 / 2^192 == sqrtP^2 * 5^192 / 10^192, which decimal holds exactly.
	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num.Mul(num, pow5x192)
	ratio := decimal.NewFromBigInt(num, -192)

	price1 = Normalize(ratio.Shift(int32(decimals0) - int32(decimals1)))
	price0 = SafeDiv(decimal.NewFromInt(1), price1)
	return price0, price1
}

// EthPriceInUSD reads the wrapped native token's USD price off the reference
// stablecoin pool. It is zero until that pool exists.
func (r *Router) EthPriceInUSD(ctx context.Context, e *schema.Entities) (decimal.Decimal, error) {
	pool, err := e.Pool(ctx, r.stablecoinPool)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	if r.stablecoinIsToken0 {
		return pool.Token0Price, nil
	}
	return pool.Token1Price, nil
}

// FindEthPerToken prices token in the wrapped native token. Stablecoins are
// priced off the bundle; other tokens use the whitelisted pool holding the
// most native value on the counter side, provided it clears the minimum.
func (r *Router) FindEthPerToken(ctx context.Context, e *schema.Entities, token *schema.Token) (decimal.Decimal, error) {
	if token.ID == r.wrappedNative {
		return decimal.NewFromInt(1), nil
	}

	bundle, err := e.Bundle(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if r.stable[token.ID] {
		return SafeDiv(decimal.NewFromInt(1), bundle.EthPriceUSD), nil
	}

	largestLiquidityETH := decimal.Zero
	priceSoFar := decimal.Zero
	for _, poolID := range token.WhitelistPools {
		pool, err := e.Pool(ctx, poolID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return decimal.Zero, err
		}
		if pool.Liquidity.Sign() <= 0 {
			continue
		}

		switch token.ID {
		case pool.Token0:
			other, err := e.Token(ctx, pool.Token1)
			if err != nil {
				return decimal.Zero, err
			}
			ethLocked := pool.TotalValueLockedToken1.Mul(other.DerivedETH)
			if ethLocked.GreaterThan(largestLiquidityETH) && ethLocked.GreaterThan(r.minimumEthLocked) {
				largestLiquidityETH = ethLocked
				priceSoFar = pool.Token1Price.Mul(other.DerivedETH)
			}
		case pool.Token1:
			other, err := e.Token(ctx, pool.Token0)
			if err != nil {
				return decimal.Zero, err
			}
			ethLocked := pool.TotalValueLockedToken0.Mul(other.DerivedETH)
			if ethLocked.GreaterThan(largestLiquidityETH) && ethLocked.GreaterThan(r.minimumEthLocked) {
				largestLiquidityETH = ethLocked
				priceSoFar = pool.Token0Price.Mul(other.DerivedETH)
			}
		}
	}
	return Normalize(priceSoFar), nil
}

// TrackedAmountUSD values a two-legged amount using only whitelisted legs:
// zero when neither token is whitelisted, the whitelisted leg's value when one
// is, and the mean of both legs when both are. Summing both legs of a swap
// would count the same trade twice, so the result is already de-duplicated.
func (r *Router) TrackedAmountUSD(amount0 decimal.Decimal, token0 *schema.Token, amount1 decimal.Decimal, token1 *schema.Token, ethPriceUSD decimal.Decimal) decimal.Decimal {
	price0USD := token0.DerivedETH.Mul(ethPriceUSD)
	price1USD := token1.DerivedETH.Mul(ethPriceUSD)

	w0, w1 := r.whitelist[token0.ID], r.whitelist[token1.ID]
	switch {
	case w0 && w1:
		return Normalize(amount0.Mul(price0USD).Add(amount1.Mul(price1USD)).Mul(half))
	case w0:
		return Normalize(amount0.Mul(price0USD))
	case w1:
		return Normalize(amount1.Mul(price1USD))
	default:
		return decimal.Zero
	}
}

// AmountUSD values both legs at their derived prices, whitelisted or not.
func AmountUSD(amount0 decimal.Decimal, token0 *schema.Token, amount1 decimal.Decimal, token1 *schema.Token, ethPriceUSD decimal.Decimal) decimal.Decimal {
	eth := amount0.Mul(token0.DerivedETH).Add(amount1.Mul(token1.DerivedETH))
	return Normalize(eth.Mul(ethPriceUSD))
}
