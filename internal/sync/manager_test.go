package sync

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubeswap/v3-indexer/internal/modules/core"
)

var swapTopic = common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67")

type fakeChain struct {
	head       uint64
	logs       []types.Log
	logQueries [][2]uint64
}

func (c *fakeChain) GetLatestBlockNumber(context.Context) (uint64, error) { return c.head, nil }

func (c *fakeChain) GetLogs(_ context.Context, from, to uint64, topics []common.Hash) ([]types.Log, error) {
	c.logQueries = append(c.logQueries, [2]uint64{from, to})
	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to && l.Topics[0] == topics[0] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *fakeChain) BlockTimestamps(_ context.Context, numbers []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64)
	for _, n := range numbers {
		out[n] = 1000 + n
	}
	return out, nil
}

func (c *fakeChain) TransactionOrigins(_ context.Context, hashes []common.Hash) (map[common.Hash]common.Address, error) {
	out := make(map[common.Hash]common.Address)
	for _, h := range hashes {
		out[h] = common.BytesToAddress(h.Bytes())
	}
	return out, nil
}

type fakeRouter struct {
	events   []*core.Event
	blocks   []uint64
	failAt   uint64
	failures int
}

func (r *fakeRouter) Topics() []common.Hash { return []common.Hash{swapTopic} }

func (r *fakeRouter) ProcessEvent(_ context.Context, ev *core.Event) error {
	if r.failures > 0 && ev.Log.BlockNumber == r.failAt {
		r.failures--
		return errors.New("module failed")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRouter) UpdateModuleBlock(_ context.Context, block uint64) error {
	r.blocks = append(r.blocks, block)
	return nil
}

type fakeArchive struct{ events int }

func (a *fakeArchive) InsertEvents(_ context.Context, events []*core.Event) error {
	a.events += len(events)
	return nil
}

func chainLog(block uint64, index uint) types.Log {
	return types.Log{
		Topics:      []common.Hash{swapTopic},
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*10 + uint64(index))),
	}
}

func blocksOf(events []*core.Event) []uint64 {
	out := make([]uint64, len(events))
	for i, ev := range events {
		out[i] = ev.Log.BlockNumber
	}
	return out
}

func TestSyncToTipWalksConfirmedRanges(t *testing.T) {
	chain := &fakeChain{
		head: 30,
		logs: []types.Log{chainLog(9, 0), chainLog(10, 0), chainLog(12, 1), chainLog(12, 2), chainLog(24, 0), chainLog(27, 0)},
	}
	router := &fakeRouter{}
	archive := &fakeArchive{}
	m := NewManager(chain, router, Config{BatchSize: 5, Confirmations: 5, StartBlock: 10}, zerolog.Nop(), WithArchive(archive))
	m.Init(0)

	require.NoError(t, m.SyncToTip(context.Background()))

	assert.Equal(t, uint64(25), m.LastSyncedBlock())
	assert.Equal(t, [][2]uint64{{10, 14}, {15, 19}, {20, 24}, {25, 25}}, chain.logQueries)
	assert.Equal(t, []uint64{14, 19, 24, 25}, router.blocks)
	assert.Equal(t, []uint64{10, 12, 12, 24}, blocksOf(router.events))
	assert.Equal(t, 4, archive.events)

	ev := router.events[1]
	assert.Equal(t, uint64(1012), ev.Timestamp)
	assert.Equal(t, common.BytesToAddress(ev.Log.TxHash.Bytes()), ev.Origin)

	st := m.GetStatus()
	assert.Equal(t, uint64(30), st.ChainTip)
	assert.Equal(t, uint64(5), st.BehindBy)
	assert.False(t, st.IsSyncing)
	assert.Empty(t, st.LastError)

	// nothing new below the confirmed head
	chain.logQueries = nil
	require.NoError(t, m.SyncToTip(context.Background()))
	assert.Empty(t, chain.logQueries)
}

func TestSyncRetriesFailedRange(t *testing.T) {
	chain := &fakeChain{head: 10, logs: []types.Log{chainLog(3, 0), chainLog(4, 0)}}
	router := &fakeRouter{failAt: 4, failures: 1}
	m := NewManager(chain, router, Config{BatchSize: 10, MaxRetries: 2, RetryDelay: time.Millisecond}, zerolog.Nop())
	m.Init(0)

	require.NoError(t, m.SyncToTip(context.Background()))
	assert.Equal(t, uint64(10), m.LastSyncedBlock())
	assert.Equal(t, [][2]uint64{{1, 10}, {1, 10}}, chain.logQueries)
	// the first attempt delivered block 3 before failing
	assert.Equal(t, []uint64{3, 3, 4}, blocksOf(router.events))
}

func TestSyncGivesUpAfterRetries(t *testing.T) {
	chain := &fakeChain{head: 10, logs: []types.Log{chainLog(4, 0)}}
	router := &fakeRouter{failAt: 4, failures: 5}
	m := NewManager(chain, router, Config{BatchSize: 10, MaxRetries: 2, RetryDelay: time.Millisecond}, zerolog.Nop())
	m.Init(2)

	err := m.SyncToTip(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(2), m.LastSyncedBlock())
	assert.Empty(t, router.blocks)
	assert.Contains(t, m.GetStatus().LastError, "failed to sync range 3-10")
}

func TestInitResumesAfterStartBlock(t *testing.T) {
	m := NewManager(&fakeChain{}, &fakeRouter{}, Config{StartBlock: 100}, zerolog.Nop())

	m.Init(0)
	assert.Equal(t, uint64(99), m.LastSyncedBlock())

	m.Init(150)
	assert.Equal(t, uint64(150), m.LastSyncedBlock())
}

func TestSyncBelowConfirmationsIsNoop(t *testing.T) {
	chain := &fakeChain{head: 3}
	m := NewManager(chain, &fakeRouter{}, Config{Confirmations: 5}, zerolog.Nop())
	require.NoError(t, m.SyncToTip(context.Background()))
	assert.Empty(t, chain.logQueries)
}
