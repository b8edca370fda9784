package schema

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ubeswap/v3-indexer/internal/store"
)

// Interval is a rollup period for pool and token snapshots.
type Interval struct {
	Name      string
	Seconds   int64
	PoolKind  string
	TokenKind string
}

var (
	Day    = Interval{Name: "day", Seconds: 86400, PoolKind: KindPoolDayData, TokenKind: KindTokenDayData}
	Hour   = Interval{Name: "hour", Seconds: 3600, PoolKind: KindPoolHourData, TokenKind: KindTokenHourData}
	Minute = Interval{Name: "minute", Seconds: 60, PoolKind: KindPoolMinuteData, TokenKind: KindTokenMinuteData}
)

// Index returns the period number containing timestamp.
func (i Interval) Index(timestamp uint64) int64 {
	return int64(timestamp) / i.Seconds
}

// IntervalByName resolves "day", "hour" or "minute".
func IntervalByName(name string) (Interval, bool) {
	for _, i := range []Interval{Day, Hour, Minute} {
		if i.Name == name {
			return i, true
		}
	}
	return Interval{}, false
}

// IntervalID keys a snapshot of entity id in period index.
func IntervalID(id string, index int64) string {
	return id + "-" + itoa(index)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// Entities exposes one typed accessor per entity kind over a session.
// Lookups of required entities return an error wrapping store.ErrNotFound.
type Entities struct {
	session *store.Session
}

// New binds accessors to a session.
func New(session *store.Session) *Entities {
	return &Entities{session: session}
}

// Session returns the underlying unit of work.
func (e *Entities) Session() *store.Session { return e.session }

func (e *Entities) Factory(ctx context.Context, id string) (*Factory, error) {
	return store.Get[Factory](ctx, e.session, KindFactory, id)
}

func (e *Entities) GetOrCreateFactory(ctx context.Context, id string) (*Factory, bool, error) {
	return store.GetOrCreate(ctx, e.session, KindFactory, id, func() *Factory { return NewFactory(id) })
}

func (e *Entities) Bundle(ctx context.Context) (*Bundle, error) {
	return store.Get[Bundle](ctx, e.session, KindBundle, BundleID)
}

func (e *Entities) GetOrCreateBundle(ctx context.Context) (*Bundle, bool, error) {
	return store.GetOrCreate(ctx, e.session, KindBundle, BundleID, func() *Bundle { return &Bundle{ID: BundleID} })
}

func (e *Entities) Token(ctx context.Context, id string) (*Token, error) {
	return store.Get[Token](ctx, e.session, KindToken, id)
}

func (e *Entities) PutToken(t *Token) { e.session.Put(KindToken, t.ID, t) }

func (e *Entities) Pool(ctx context.Context, id string) (*Pool, error) {
	return store.Get[Pool](ctx, e.session, KindPool, id)
}

func (e *Entities) PutPool(p *Pool) { e.session.Put(KindPool, p.ID, p) }

// GetOrCreateTick loads a tick, creating it through create when absent.
func (e *Entities) GetOrCreateTick(ctx context.Context, id string, create func() *Tick) (*Tick, bool, error) {
	return store.GetOrCreate(ctx, e.session, KindTick, id, create)
}

func (e *Entities) Tick(ctx context.Context, id string) (*Tick, error) {
	return store.Get[Tick](ctx, e.session, KindTick, id)
}

// GetOrCreatePosition loads the position of owner over [tickLower, tickUpper) in pool.
func (e *Entities) GetOrCreatePosition(ctx context.Context, owner string, pool *Pool, tickLower, tickUpper int32) (*Position, bool, error) {
	id := PositionID(owner, pool.ID, tickLower, tickUpper)
	return store.GetOrCreate(ctx, e.session, KindPosition, id, func() *Position {
		return &Position{
			ID:           id,
			Owner:        owner,
			Pool:         pool.ID,
			Token0:       pool.Token0,
			Token1:       pool.Token1,
			TickLower:    TickID(pool.ID, tickLower),
			TickUpper:    TickID(pool.ID, tickUpper),
			TickLowerIdx: tickLower,
			TickUpperIdx: tickUpper,
			Liquidity:    new(big.Int),
		}
	})
}

func (e *Entities) Position(ctx context.Context, id string) (*Position, error) {
	return store.Get[Position](ctx, e.session, KindPosition, id)
}

func (e *Entities) PutPositionSnapshot(s *PositionSnapshot) {
	e.session.Put(KindPositionSnapshot, s.ID, s)
}

func (e *Entities) GetOrCreateTransaction(ctx context.Context, id string, create func() *Transaction) (*Transaction, error) {
	tx, _, err := store.GetOrCreate(ctx, e.session, KindTransaction, id, create)
	return tx, err
}

func (e *Entities) PutMint(m *Mint)       { e.session.Put(KindMint, m.ID, m) }
func (e *Entities) PutBurn(b *Burn)       { e.session.Put(KindBurn, b.ID, b) }
func (e *Entities) PutSwap(s *Swap)       { e.session.Put(KindSwap, s.ID, s) }
func (e *Entities) PutCollect(c *Collect) { e.session.Put(KindCollect, c.ID, c) }

func (e *Entities) GetOrCreateUniswapDayData(ctx context.Context, id string, create func() *UniswapDayData) (*UniswapDayData, bool, error) {
	return store.GetOrCreate(ctx, e.session, KindUniswapDayData, id, create)
}

func (e *Entities) GetOrCreatePoolInterval(ctx context.Context, interval Interval, id string, create func() *PoolIntervalData) (*PoolIntervalData, bool, error) {
	return store.GetOrCreate(ctx, e.session, interval.PoolKind, id, create)
}

func (e *Entities) GetOrCreateTokenInterval(ctx context.Context, interval Interval, id string, create func() *TokenIntervalData) (*TokenIntervalData, bool, error) {
	return store.GetOrCreate(ctx, e.session, interval.TokenKind, id, create)
}
