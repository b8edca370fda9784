package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
	"github.com/ubeswap/v3-indexer/internal/prices"
	"github.com/ubeswap/v3-indexer/internal/store"
	"github.com/ubeswap/v3-indexer/internal/store/memory"
	"github.com/ubeswap/v3-indexer/internal/sync"
)

const (
	factoryID = "0x1f98431c8ad98523631ae4a59f267346ea31f984"
	celo      = "0x471ece3750da237f93b8e339c536989b8978a438"
	cusd      = "0x765de816845861e75a25fca122bb6898b8b1282a"
	poolA     = "0x00000000000000000000000000000000000000aa"
	poolB     = "0x00000000000000000000000000000000000000bb"
	owner     = "0x00000000000000000000000000000000000000cc"
)

type response struct {
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination"`
	Error      *string         `json:"error"`
}

func seed(t *testing.T) *memory.Backend {
	t.Helper()
	ctx := context.Background()
	backend := memory.New()
	s := store.NewSession(backend, store.Cursor{Block: 42, LogIndex: 3})
	e := schema.New(s)

	_, _, err := e.GetOrCreateFactory(ctx, factoryID)
	require.NoError(t, err)
	bundle, _, err := e.GetOrCreateBundle(ctx)
	require.NoError(t, err)
	bundle.EthPriceUSD = decimal.RequireFromString("0.5")

	t0 := schema.NewToken(celo, "CELO", "Celo", 18, nil)
	t1 := schema.NewToken(cusd, "cUSD", "Celo Dollar", 18, nil)
	e.PutToken(t0)
	e.PutToken(t1)

	a := schema.NewPool(poolA, celo, cusd, 3000, 60, 100, 1)
	a.SqrtPrice = new(big.Int).Lsh(big.NewInt(1), 96)
	tick := int32(0)
	a.Tick = &tick
	a.TotalValueLockedUSD = decimal.NewFromInt(500)
	e.PutPool(a)
	b := schema.NewPool(poolB, celo, cusd, 500, 10, 200, 2)
	b.TotalValueLockedUSD = decimal.NewFromInt(9000)
	e.PutPool(b)

	position, _, err := e.GetOrCreatePosition(ctx, owner, a, -60, 60)
	require.NoError(t, err)
	position.Liquidity = big.NewInt(1_000_000_000_000_000_000)

	for i, ts := range []uint64{10, 30, 20} {
		e.PutSwap(&schema.Swap{
			ID:        "0xtx#" + string(rune('0'+i)),
			Pool:      poolA,
			Timestamp: ts,
		})
	}
	require.NoError(t, s.Commit(ctx))
	return backend
}

func get(t *testing.T, h http.Handler, path string) (int, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func TestAPIServer(t *testing.T) {
	router := prices.NewRouter(prices.Config{
		WrappedNative:  "0x471ECE3750DA237F93B8E339C536989B8978A438",
		StablecoinPool: poolA,
	})
	h := NewAPIServer(seed(t), factoryID, router, zerolog.Nop()).Handler()

	t.Run("status reports cursor", func(t *testing.T) {
		code, resp := get(t, h, "/status")
		require.Equal(t, http.StatusOK, code)
		var st struct {
			Block    uint64 `json:"block"`
			LogIndex uint   `json:"log_index"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &st))
		assert.Equal(t, uint64(42), st.Block)
		assert.Equal(t, uint(3), st.LogIndex)
	})

	t.Run("factory and bundle", func(t *testing.T) {
		code, resp := get(t, h, "/factory")
		require.Equal(t, http.StatusOK, code)
		var f schema.Factory
		require.NoError(t, json.Unmarshal(resp.Data, &f))
		assert.Equal(t, factoryID, f.ID)

		code, resp = get(t, h, "/bundle")
		require.Equal(t, http.StatusOK, code)
		var b struct {
			schema.Bundle
			WrappedNative  string `json:"wrappedNative"`
			StablecoinPool string `json:"stablecoinPool"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &b))
		assert.Equal(t, "0.5", b.EthPriceUSD.String())
		assert.Equal(t, celo, b.WrappedNative)
		assert.Equal(t, poolA, b.StablecoinPool)
	})

	t.Run("token lookup is case insensitive", func(t *testing.T) {
		code, resp := get(t, h, "/tokens/0x471ECE3750DA237F93B8E339C536989B8978A438")
		require.Equal(t, http.StatusOK, code)
		var tok schema.Token
		require.NoError(t, json.Unmarshal(resp.Data, &tok))
		assert.Equal(t, "CELO", tok.Symbol)
	})

	t.Run("missing entity is 404", func(t *testing.T) {
		code, resp := get(t, h, "/pools/0xdead")
		assert.Equal(t, http.StatusNotFound, code)
		require.NotNil(t, resp.Error)
	})

	t.Run("pools sort by tvl", func(t *testing.T) {
		code, resp := get(t, h, "/pools?per_page=1")
		require.Equal(t, http.StatusOK, code)
		var pools []schema.Pool
		require.NoError(t, json.Unmarshal(resp.Data, &pools))
		require.Len(t, pools, 1)
		assert.Equal(t, poolB, pools[0].ID)
		assert.True(t, resp.Pagination.HasNext)

		_, resp = get(t, h, "/pools?sort_by=totalValueLockedUSD&sort_order=asc")
		require.NoError(t, json.Unmarshal(resp.Data, &pools))
		require.Len(t, pools, 2)
		assert.Equal(t, poolA, pools[0].ID)
	})

	t.Run("pools filter by fee tier", func(t *testing.T) {
		_, resp := get(t, h, "/pools?feeTier=500")
		var pools []schema.Pool
		require.NoError(t, json.Unmarshal(resp.Data, &pools))
		require.Len(t, pools, 1)
		assert.Equal(t, poolB, pools[0].ID)
	})

	t.Run("pool swaps newest first", func(t *testing.T) {
		code, resp := get(t, h, "/pools/"+poolA+"/events/swaps")
		require.Equal(t, http.StatusOK, code)
		var swaps []schema.Swap
		require.NoError(t, json.Unmarshal(resp.Data, &swaps))
		require.Len(t, swaps, 3)
		assert.Equal(t, []uint64{30, 20, 10}, []uint64{swaps[0].Timestamp, swaps[1].Timestamp, swaps[2].Timestamp})
	})

	t.Run("unknown event kind", func(t *testing.T) {
		code, _ := get(t, h, "/pools/"+poolA+"/events/flashes")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("unknown interval", func(t *testing.T) {
		code, _ := get(t, h, "/pools/"+poolA+"/data/week")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("position carries current amounts", func(t *testing.T) {
		id := schema.PositionID(owner, poolA, -60, 60)
		code, resp := get(t, h, "/positions/"+url.PathEscape(id))
		require.Equal(t, http.StatusOK, code)
		var view struct {
			ID      string `json:"id"`
			Amount0 string `json:"amount0"`
			Amount1 string `json:"amount1"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &view))
		assert.Equal(t, id, view.ID)
		a0 := decimal.RequireFromString(view.Amount0)
		a1 := decimal.RequireFromString(view.Amount1)
		assert.True(t, a0.IsPositive())
		assert.True(t, a1.IsPositive())
		// centred range at price 1 holds roughly equal amounts
		assert.True(t, a0.Sub(a1).Abs().LessThan(decimal.New(1, -12)))
	})

	t.Run("positions by owner", func(t *testing.T) {
		_, resp := get(t, h, "/positions?owner="+owner)
		var positions []schema.Position
		require.NoError(t, json.Unmarshal(resp.Data, &positions))
		assert.Len(t, positions, 1)

		_, resp = get(t, h, "/positions?owner=0x01")
		require.NoError(t, json.Unmarshal(resp.Data, &positions))
		assert.Empty(t, positions)
	})
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeHead struct {
	head uint64
	err  error
}

func (f fakeHead) GetEndpoint() string { return "http://node" }
func (f fakeHead) ChainID() uint64     { return 42220 }
func (f fakeHead) GetLatestBlockNumber(context.Context) (uint64, error) {
	return f.head, f.err
}

type fakeSync sync.Status

func (f fakeSync) GetStatus() sync.Status { return sync.Status(f) }

func TestHealthServer(t *testing.T) {
	health := func(h *HealthServer) (int, HealthStatus) {
		rec := httptest.NewRecorder()
		h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var st HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		return rec.Code, st
	}

	t.Run("healthy", func(t *testing.T) {
		h := NewHealthServer(fakePinger{}, fakeHead{head: 100}, fakeSync{LastSynced: 99, BehindBy: 1}, nil, 50, zerolog.Nop())
		code, st := health(h)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", st.Status)
		assert.Equal(t, uint64(100), st.RPC.LatestBlock)
		assert.Equal(t, uint64(42220), st.RPC.ChainID)
	})

	t.Run("degraded when far behind", func(t *testing.T) {
		h := NewHealthServer(fakePinger{}, fakeHead{head: 1000}, fakeSync{BehindBy: 900}, nil, 50, zerolog.Nop())
		code, st := health(h)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "degraded", st.Status)
	})

	t.Run("unhealthy without database", func(t *testing.T) {
		h := NewHealthServer(fakePinger{err: errors.New("refused")}, fakeHead{head: 1}, nil, nil, 0, zerolog.Nop())
		code, st := health(h)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "refused", st.Database.Error)

		rec := httptest.NewRecorder()
		h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("serves metrics", func(t *testing.T) {
		metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("up 1\n"))
		})
		h := NewHealthServer(fakePinger{}, fakeHead{}, nil, metrics, 0, zerolog.Nop())
		rec := httptest.NewRecorder()
		h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, "up 1\n", rec.Body.String())
	})
}
