package prices

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/calculator/tickmath"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
	"github.com/ubeswap/v3-indexer/internal/store"
	"github.com/ubeswap/v3-indexer/internal/store/memory"
)

const (
	weth     = "0x00000000000000000000000000000000000000ee"
	usdc     = "0x00000000000000000000000000000000000000c0"
	tokA     = "0x00000000000000000000000000000000000000aa"
	tokB     = "0x00000000000000000000000000000000000000bb"
	poolUSDC = "0x0000000000000000000000000000000000000001"
)

var tolerance = decimal.New(1, -30)

func testRouter() *Router {
	return NewRouter(Config{
		WrappedNative:      weth,
		StablecoinPool:     poolUSDC,
		StablecoinIsToken0: true,
		Whitelist:          []string{weth, usdc},
		Stablecoins:        []string{usdc},
		MinimumEthLocked:   decimal.NewFromInt(1),
	})
}

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return n
}

// sqrtPriceFromPrice1 rebuilds sqrtPriceX96 from a decimal token1 price.
func sqrtPriceFromPrice1(price1 decimal.Decimal, decimals0, decimals1 uint8) *big.Int {
	raw := price1.Shift(int32(decimals1) - int32(decimals0))
	scaled := raw.Mul(Q192).Round(0).BigInt()
	return new(big.Int).Sqrt(scaled)
}

func TestSqrtPriceX96ToTokenPrices(t *testing.T) {
	tests := []struct {
		name      string
		sqrtPrice *big.Int
		dec0      uint8
		dec1      uint8
	}{
		{"parity", new(big.Int).Lsh(big.NewInt(1), 96), 18, 18},
		{"usdc/weth", mustBig("1350174849792634181862360983626536"), 6, 18},
		{"low tick", tickmath.MinSqrtRatio, 18, 18},
		{"high price", mustBig("1461446703485210103287273052203988822378723970341"), 18, 6},
		{"odd decimals", mustBig("56022770974786139918731938227"), 8, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price0, price1 := SqrtPriceX96ToTokenPrices(tt.sqrtPrice, tt.dec0, tt.dec1)
			require.True(t, price1.IsPositive())

			product := price0.Mul(price1)
			assert.True(t, product.Sub(decimal.NewFromInt(1)).Abs().LessThan(tolerance),
				"token0Price * token1Price = %s", product)

			rebuilt := sqrtPriceFromPrice1(price1, tt.dec0, tt.dec1)
			diff := new(big.Int).Sub(rebuilt, tt.sqrtPrice)
			diff.Abs(diff)
			// relative error below 1e-30, absolute error at most 1 for small prices
			bound := new(big.Int).Quo(tt.sqrtPrice, mustBig("1000000000000000000000000000000"))
			if bound.Cmp(big.NewInt(1)) < 0 {
				bound = big.NewInt(1)
			}
			assert.True(t, diff.Cmp(bound) <= 0, "rebuilt %s from %s", rebuilt, tt.sqrtPrice)
		})
	}

	t.Run("parity is exactly one", func(t *testing.T) {
		price0, price1 := SqrtPriceX96ToTokenPrices(new(big.Int).Lsh(big.NewInt(1), 96), 18, 18)
		assert.Equal(t, "1", price0.String())
		assert.Equal(t, "1", price1.String())
	})

	t.Run("decimals shift the price", func(t *testing.T) {
		_, price1 := SqrtPriceX96ToTokenPrices(new(big.Int).Lsh(big.NewInt(1), 96), 6, 18)
		assert.Equal(t, "0.000000000001", price1.String())
	})

	t.Run("zero price", func(t *testing.T) {
		price0, price1 := SqrtPriceX96ToTokenPrices(new(big.Int), 18, 18)
		assert.True(t, price0.IsZero())
		assert.True(t, price1.IsZero())
	})
}

func TestTrackedAmountUSD(t *testing.T) {
	r := NewRouter(Config{Whitelist: []string{tokA, weth}})
	ethPrice := decimal.NewFromInt(2000)

	a := &schema.Token{ID: tokA, DerivedETH: decimal.NewFromInt(1)}
	b := &schema.Token{ID: tokB, DerivedETH: decimal.RequireFromString("0.5")}
	w := &schema.Token{ID: weth, DerivedETH: decimal.NewFromInt(1)}

	t.Run("one side whitelisted", func(t *testing.T) {
		got := r.TrackedAmountUSD(decimal.NewFromInt(10), a, decimal.NewFromInt(999), b, ethPrice)
		assert.Equal(t, "20000", got.String())

		got = r.TrackedAmountUSD(decimal.NewFromInt(999), b, decimal.NewFromInt(10), a, ethPrice)
		assert.Equal(t, "20000", got.String())
	})

	t.Run("both whitelisted is the mean", func(t *testing.T) {
		got := r.TrackedAmountUSD(decimal.NewFromInt(10), a, decimal.NewFromInt(5), w, ethPrice)
		assert.Equal(t, "15000", got.String())
	})

	t.Run("neither whitelisted", func(t *testing.T) {
		other := &schema.Token{ID: "0x0c", DerivedETH: decimal.NewFromInt(3)}
		got := r.TrackedAmountUSD(decimal.NewFromInt(10), b, decimal.NewFromInt(10), other, ethPrice)
		assert.True(t, got.IsZero())
	})
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "1.5", ConvertTokenToDecimal(big.NewInt(1500000), 6).String())
	assert.Equal(t, "-0.000000000000000001", ConvertTokenToDecimal(big.NewInt(-1), 18).String())
	assert.True(t, SafeDiv(decimal.NewFromInt(1), decimal.Zero).IsZero())
	assert.Equal(t, "0.003", FeeAmount(decimal.NewFromInt(1), 3000).String())

	n := Normalize(decimal.RequireFromString("1.23456789012345678901234567890123456789"))
	assert.Equal(t, "1.234567890123456789012345678901235", n.String())
	assert.Equal(t, "123456789012345678901234567890123500000", Normalize(decimal.RequireFromString("123456789012345678901234567890123456789")).String())
}

func seed(t *testing.T, backend store.Backend, entities ...any) {
	t.Helper()
	s := store.NewSession(backend, store.Cursor{})
	for _, ent := range entities {
		switch v := ent.(type) {
		case *schema.Pool:
			s.Put(schema.KindPool, v.ID, v)
		case *schema.Token:
			s.Put(schema.KindToken, v.ID, v)
		case *schema.Bundle:
			s.Put(schema.KindBundle, v.ID, v)
		default:
			t.Fatalf("unexpected entity %T", ent)
		}
	}
	require.NoError(t, s.Commit(context.Background()))
}

func pool(id, token0, token1 string, liquidity int64, tvl0, tvl1, price0, price1 string) *schema.Pool {
	p := schema.NewPool(id, token0, token1, 3000, 60, 0, 0)
	p.Liquidity = big.NewInt(liquidity)
	p.TotalValueLockedToken0 = decimal.RequireFromString(tvl0)
	p.TotalValueLockedToken1 = decimal.RequireFromString(tvl1)
	p.Token0Price = decimal.RequireFromString(price0)
	p.Token1Price = decimal.RequireFromString(price1)
	return p
}

func TestEthPriceInUSD(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	r := testRouter()

	got, err := r.EthPriceInUSD(ctx, schema.New(store.NewSession(backend, store.Cursor{})))
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "no reference pool yet")

	seed(t, backend, pool(poolUSDC, usdc, weth, 1, "1000", "1", "2000", "0.0005"))
	got, err = r.EthPriceInUSD(ctx, schema.New(store.NewSession(backend, store.Cursor{})))
	require.NoError(t, err)
	assert.Equal(t, "2000", got.String())
}

func TestFindEthPerToken(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	r := testRouter()

	wethToken := &schema.Token{ID: weth, DerivedETH: decimal.NewFromInt(1)}
	usdcToken := &schema.Token{ID: usdc, DerivedETH: decimal.RequireFromString("0.0005")}
	a := &schema.Token{ID: tokA, WhitelistPools: []string{"0xp1", "0xp2", "0xp3", "0xp4"}}

	seed(t, backend,
		&schema.Bundle{ID: schema.BundleID, EthPriceUSD: decimal.NewFromInt(2000)},
		wethToken, usdcToken, a,
		// 10 WETH on the other side, A priced at 0.01 WETH
		pool("0xp1", tokA, weth, 100, "1000", "10", "100", "0.01"),
		// 50 WETH worth of USDC, A priced at 40 USDC = 0.02 WETH
		pool("0xp2", usdc, tokA, 100, "100000", "5000", "40", "0.025"),
		// deeper but no liquidity in range
		pool("0xp3", tokA, weth, 0, "1", "1000", "1", "1"),
		// below the minimum
		pool("0xp4", tokA, weth, 100, "1", "0.5", "2", "0.5"),
	)

	e := schema.New(store.NewSession(backend, store.Cursor{}))

	got, err := r.FindEthPerToken(ctx, e, wethToken)
	require.NoError(t, err)
	assert.Equal(t, "1", got.String())

	got, err = r.FindEthPerToken(ctx, e, usdcToken)
	require.NoError(t, err)
	assert.Equal(t, "0.0005", got.String())

	got, err = r.FindEthPerToken(ctx, e, a)
	require.NoError(t, err)
	assert.Equal(t, "0.02", got.String(), "deepest whitelisted pool wins")

	lonely := &schema.Token{ID: tokB}
	got, err = r.FindEthPerToken(ctx, e, lonely)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
