package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
	"github.com/ubeswap/v3-indexer/internal/prices"
	"github.com/ubeswap/v3-indexer/internal/store"
)

var eventKinds = map[string]string{
	"mints":    schema.KindMint,
	"burns":    schema.KindBurn,
	"swaps":    schema.KindSwap,
	"collects": schema.KindCollect,
}

// entities opens a read-only view of the store. Nothing is ever committed.
func (s *APIServer) entities(ctx context.Context) (*schema.Entities, error) {
	cursor, err := s.store.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	return schema.New(store.NewSession(s.store, cursor)), nil
}

// list writes one page of kind matching filter.
func (s *APIServer) list(w http.ResponseWriter, r *http.Request, kind string, filter map[string]string, orderBy string, desc bool) {
	limit, offset, page, perPage := parsePagination(r)
	docs, err := s.store.List(r.Context(), kind, store.ListOptions{
		OrderBy: orderBy,
		Desc:    desc,
		Filter:  filter,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(docs) == perPage}
	JSON(w, http.StatusOK, rawDocs(docs), pg)
}

// get writes one entity, or 404.
func (s *APIServer) get(w http.ResponseWriter, r *http.Request, kind, id string) {
	doc, err := s.store.Get(r.Context(), kind, strings.ToLower(id))
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, strings.ToLower(kind)+" not found")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, json.RawMessage(doc), nil)
}

func (s *APIServer) handleFactory(w http.ResponseWriter, r *http.Request) {
	s.get(w, r, schema.KindFactory, s.factoryID)
}

// bundleView is the bundle plus the pool and token it is priced from.
type bundleView struct {
	*schema.Bundle
	WrappedNative  string `json:"wrappedNative"`
	StablecoinPool string `json:"stablecoinPool"`
}

func (s *APIServer) handleBundle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, err := s.entities(ctx)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	bundle, err := e.Bundle(ctx)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "bundle not found")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, bundleView{
		Bundle:         bundle,
		WrappedNative:  s.router.WrappedNative(),
		StablecoinPool: s.router.StablecoinPool(),
	}, nil)
}

func (s *APIServer) handleUniswapDayData(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, schema.KindUniswapDayData, nil, "date", true)
}

func (s *APIServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	var filter map[string]string
	if v := r.URL.Query().Get("symbol"); v != "" {
		filter = map[string]string{"symbol": v}
	}
	sortBy, desc := parseSort(r, "totalValueLockedUSD",
		"totalValueLockedUSD", "volumeUSD", "txCount", "feesUSD", "derivedETH")
	s.list(w, r, schema.KindToken, filter, sortBy, desc)
}

func (s *APIServer) handleToken(w http.ResponseWriter, r *http.Request) {
	s.get(w, r, schema.KindToken, r.PathValue("id"))
}

func (s *APIServer) handleTokenIntervals(w http.ResponseWriter, r *http.Request) {
	interval, ok := schema.IntervalByName(r.PathValue("interval"))
	if !ok {
		Error(w, http.StatusNotFound, "unknown interval")
		return
	}
	filter := map[string]string{"token": strings.ToLower(r.PathValue("id"))}
	s.list(w, r, interval.TokenKind, filter, "periodStartUnix", true)
}

func (s *APIServer) handlePools(w http.ResponseWriter, r *http.Request) {
	filter := map[string]string{}
	for _, field := range []string{"token0", "token1", "feeTier"} {
		if v := r.URL.Query().Get(field); v != "" {
			filter[field] = v
		}
	}
	sortBy, desc := parseSort(r, "totalValueLockedUSD",
		"totalValueLockedUSD", "volumeUSD", "txCount", "feesUSD", "liquidity", "createdAtTimestamp")
	s.list(w, r, schema.KindPool, filter, sortBy, desc)
}

func (s *APIServer) handlePool(w http.ResponseWriter, r *http.Request) {
	s.get(w, r, schema.KindPool, r.PathValue("id"))
}

func (s *APIServer) handlePoolTicks(w http.ResponseWriter, r *http.Request) {
	filter := map[string]string{"pool": strings.ToLower(r.PathValue("id"))}
	_, desc := parseSort(r, "tickIdx")
	if r.URL.Query().Get("sort_order") == "" {
		desc = false
	}
	s.list(w, r, schema.KindTick, filter, "tickIdx", desc)
}

func (s *APIServer) handlePoolIntervals(w http.ResponseWriter, r *http.Request) {
	interval, ok := schema.IntervalByName(r.PathValue("interval"))
	if !ok {
		Error(w, http.StatusNotFound, "unknown interval")
		return
	}
	filter := map[string]string{"pool": strings.ToLower(r.PathValue("id"))}
	s.list(w, r, interval.PoolKind, filter, "periodStartUnix", true)
}

func (s *APIServer) handlePoolEvents(w http.ResponseWriter, r *http.Request) {
	kind, ok := eventKinds[r.PathValue("kind")]
	if !ok {
		Error(w, http.StatusNotFound, "unknown event kind")
		return
	}
	filter := map[string]string{"pool": strings.ToLower(r.PathValue("id"))}
	s.list(w, r, kind, filter, "timestamp", true)
}

func (s *APIServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	filter := map[string]string{}
	for _, field := range []string{"owner", "pool"} {
		if v := r.URL.Query().Get(field); v != "" {
			filter[field] = v
		}
	}
	sortBy, desc := parseSort(r, "liquidity", "liquidity", "depositedToken0", "depositedToken1")
	s.list(w, r, schema.KindPosition, filter, sortBy, desc)
}

// positionView is a position with the token amounts its liquidity is worth
// at the pool's current price.
type positionView struct {
	*schema.Position
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

func (s *APIServer) handlePosition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, err := s.entities(ctx)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	position, err := e.Position(ctx, strings.ToLower(r.PathValue("id")))
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "position not found")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	pool, err := e.Pool(ctx, position.Pool)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	token0, err := e.Token(ctx, pool.Token0)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	token1, err := e.Token(ctx, pool.Token1)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	amount0, amount1, err := uniswapv3.PositionAmounts(pool, position)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, positionView{
		Position: position,
		Amount0:  prices.ConvertTokenToDecimal(amount0, token0.Decimals).String(),
		Amount1:  prices.ConvertTokenToDecimal(amount1, token1.Decimals).String(),
	}, nil)
}

func (s *APIServer) handlePositionSnapshots(w http.ResponseWriter, r *http.Request) {
	filter := map[string]string{"position": strings.ToLower(r.PathValue("id"))}
	s.list(w, r, schema.KindPositionSnapshot, filter, "blockNumber", true)
}

func (s *APIServer) handleTransaction(w http.ResponseWriter, r *http.Request) {
	s.get(w, r, schema.KindTransaction, r.PathValue("id"))
}
