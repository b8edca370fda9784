package database

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ubeswap/v3-indexer/internal/modules/core"
	"github.com/ubeswap/v3-indexer/internal/store"
)

// setupTestDB starts a PostgreSQL container and applies the embedded migrations.
func setupTestDB(t *testing.T) *Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("indexer_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	applied, err := RunMigrations(ctx, dsn, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"001_entities", "002_event_logs", "003_module_state", "004_event_logs_topic_index",
	}, applied)

	again, err := RunMigrations(ctx, dsn, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, again)

	db, err := Connect(ctx, dsn, 4, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestPostgres(t *testing.T) {
	db := setupTestDB(t)

	t.Run("entity store", func(t *testing.T) { testEntityStore(t, db) })
	t.Run("event archive", func(t *testing.T) { testEventArchive(t, db) })
	t.Run("module state", func(t *testing.T) { testModuleState(t, db) })
}

func testEntityStore(t *testing.T, db *Database) {
	ctx := context.Background()
	s := NewEntityStore(db)

	cursor, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Cursor{}, cursor)

	_, err = s.Get(ctx, "Pool", "0x01")
	assert.ErrorIs(t, err, store.ErrNotFound)

	records := []store.Record{
		{Kind: "Pool", ID: "0x01", Data: []byte(`{"id":"0x01","token0":"0xAA","totalValueLockedUSD":"10.5"}`)},
		{Kind: "Pool", ID: "0x02", Data: []byte(`{"id":"0x02","token0":"0xaa","totalValueLockedUSD":"250"}`)},
		{Kind: "Pool", ID: "0x03", Data: []byte(`{"id":"0x03","token0":"0xbb","totalValueLockedUSD":"99"}`)},
		{Kind: "Token", ID: "0xaa", Data: []byte(`{"id":"0xaa"}`)},
	}
	require.NoError(t, s.Commit(ctx, store.Cursor{Block: 10, LogIndex: 3}, records))

	cursor, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Cursor{Block: 10, LogIndex: 3}, cursor)

	data, err := s.Get(ctx, "Token", "0xaa")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"0xaa"}`, string(data))

	ids, err := s.IDs(ctx, "Pool")
	require.NoError(t, err)
	assert.Equal(t, []string{"0x01", "0x02", "0x03"}, ids)

	docs, err := s.List(ctx, "Pool", store.ListOptions{OrderBy: "totalValueLockedUSD", Desc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Contains(t, string(docs[0]), `"0x02"`)
	assert.Contains(t, string(docs[1]), `"0x03"`)

	docs, err = s.List(ctx, "Pool", store.ListOptions{Filter: map[string]string{"token0": "0xAA"}, Offset: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, string(docs[0]), `"0x02"`)

	n, err := s.Count(ctx, "Pool", map[string]string{"token0": "0xaa"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// upsert replaces the document and moves the cursor
	require.NoError(t, s.Commit(ctx, store.Cursor{Block: 11}, []store.Record{
		{Kind: "Token", ID: "0xaa", Data: []byte(`{"id":"0xaa","symbol":"WETH"}`)},
	}))
	data, err = s.Get(ctx, "Token", "0xaa")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"0xaa","symbol":"WETH"}`, string(data))

	cursor, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), cursor.Block)
}

func testEvent(block uint64, index uint, topic common.Hash) *core.Event {
	return &core.Event{
		Log: types.Log{
			Address:     common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"),
			Topics:      []common.Hash{topic, common.BigToHash(big.NewInt(int64(index)))},
			Data:        []byte{0x01, 0x02},
			BlockNumber: block,
			TxHash:      common.BigToHash(big.NewInt(int64(block))),
			BlockHash:   common.BigToHash(big.NewInt(int64(block * 10))),
			Index:       index,
		},
		Timestamp: 1620000000 + block,
		Origin:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
	}
}

func testEventArchive(t *testing.T, db *Database) {
	ctx := context.Background()
	archive := NewEventArchive(db)

	swap := common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67")
	mint := common.HexToHash("0x7a53080ba414158be7ec69b987b5fb7d07dee101fe85488f0853ae16239d0bde")

	events := []*core.Event{
		testEvent(7, 1, swap),
		testEvent(5, 2, mint),
		testEvent(5, 0, swap),
	}
	require.NoError(t, archive.InsertEvents(ctx, events))
	// a refetched range is ignored
	require.NoError(t, archive.InsertEvents(ctx, events[:1]))

	latest, err := archive.LatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), latest)

	var got []*core.Event
	err = archive.StreamEvents(ctx, 0, 100, nil, func(ev *core.Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(5), got[0].Log.BlockNumber)
	assert.Equal(t, uint(0), got[0].Log.Index)
	assert.Equal(t, uint(2), got[1].Log.Index)
	assert.Equal(t, uint64(7), got[2].Log.BlockNumber)

	first := got[0]
	want := events[2]
	assert.Equal(t, want.Log.Address, first.Log.Address)
	assert.Equal(t, want.Log.Topics, first.Log.Topics)
	assert.Equal(t, want.Log.Data, first.Log.Data)
	assert.Equal(t, want.Log.TxHash, first.Log.TxHash)
	assert.Equal(t, want.Timestamp, first.Timestamp)
	assert.Equal(t, want.Origin, first.Origin)

	got = nil
	err = archive.StreamEvents(ctx, 6, 7, []common.Hash{swap}, func(ev *core.Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].Log.BlockNumber)

	got = nil
	err = archive.StreamEvents(ctx, 0, 100, []common.Hash{mint}, func(ev *core.Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(2), got[0].Log.Index)
}

func testModuleState(t *testing.T, db *Database) {
	ctx := context.Background()
	s := NewModuleStateStore(db)

	_, err := s.GetModuleState(ctx, "uniswap-v3")
	assert.Error(t, err)
	assert.Error(t, s.UpdateModuleBlock(ctx, "uniswap-v3", 1))

	require.NoError(t, s.InitModuleState(ctx, "uniswap-v3", "1.0.0"))
	require.NoError(t, s.UpdateModuleBlock(ctx, "uniswap-v3", 12369700))
	require.NoError(t, s.UpdateModuleStatus(ctx, "uniswap-v3", core.StatusBackfilling))

	from, to := uint64(100), uint64(200)
	require.NoError(t, s.SetBackfillRange(ctx, "uniswap-v3", &from, &to))

	// re-initializing keeps progress
	require.NoError(t, s.InitModuleState(ctx, "uniswap-v3", "1.1.0"))

	st, err := s.GetModuleState(ctx, "uniswap-v3")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", st.Version)
	assert.Equal(t, uint64(12369700), st.LastProcessedBlock)
	assert.Equal(t, core.StatusBackfilling, st.Status)
	require.NotNil(t, st.BackfillFromBlock)
	assert.Equal(t, uint64(100), *st.BackfillFromBlock)
	assert.Equal(t, uint64(200), *st.BackfillToBlock)
	assert.NotZero(t, st.CreatedAt)

	require.NoError(t, s.SetBackfillRange(ctx, "uniswap-v3", nil, nil))
	st, err = s.GetModuleState(ctx, "uniswap-v3")
	require.NoError(t, err)
	assert.Nil(t, st.BackfillFromBlock)
}
