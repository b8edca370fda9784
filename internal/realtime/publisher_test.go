package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
)

var _ uniswapv3.Notifier = (*Publisher)(nil)

type message struct {
	channel string
	data    []byte
}

type fakeCentrifugo struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (f *fakeCentrifugo) Publish(_ context.Context, channel string, data []byte, _ ...gocent.PublishOption) (gocent.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message{channel: channel, data: data})
	return gocent.PublishResult{}, f.err
}

func (f *fakeCentrifugo) sent() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.messages...)
}

type countingRecorder struct {
	mu         sync.Mutex
	ok, failed int
}

func (r *countingRecorder) Published(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.ok++
	} else {
		r.failed++
	}
}

func testPool(id string, txCount uint64) *schema.Pool {
	pool := schema.NewPool(id, "0xa", "0xb", 500, 10, 1620000000, 1)
	pool.TxCount = txCount
	return pool
}

func TestPublisherCoalescesUpdates(t *testing.T) {
	gc := &fakeCentrifugo{}
	rec := &countingRecorder{}
	p := newPublisher(gc, PublishConfig{Channel: "pools", Interval: time.Hour}, zerolog.Nop(), rec)
	defer p.Close()

	ctx := context.Background()
	p.PoolUpdated(ctx, testPool("0x02", 1))
	p.PoolUpdated(ctx, testPool("0x01", 1))
	p.PoolUpdated(ctx, testPool("0x02", 2))
	p.Flush()

	msgs := gc.sent()
	require.Len(t, msgs, 3)
	assert.Equal(t, "pools.0x01", msgs[0].channel)
	assert.Equal(t, "pools.0x02", msgs[1].channel)
	assert.Equal(t, "pools", msgs[2].channel)

	var update struct {
		Type string      `json:"type"`
		Pool schema.Pool `json:"pool"`
	}
	require.NoError(t, json.Unmarshal(msgs[1].data, &update))
	assert.Equal(t, "pool.update", update.Type)
	assert.Equal(t, uint64(2), update.Pool.TxCount)

	var batch struct {
		Type  string        `json:"type"`
		Items []schema.Pool `json:"items"`
	}
	require.NoError(t, json.Unmarshal(msgs[2].data, &batch))
	assert.Equal(t, "pool.batch", batch.Type)
	assert.Len(t, batch.Items, 2)
	assert.Equal(t, 3, rec.ok)

	// nothing queued, nothing sent
	p.Flush()
	assert.Len(t, gc.sent(), 3)
}

func TestPublisherTriggerFlushes(t *testing.T) {
	gc := &fakeCentrifugo{}
	p := newPublisher(gc, PublishConfig{Interval: time.Hour}, zerolog.Nop(), nil)
	defer p.Close()

	p.PoolUpdated(context.Background(), testPool("0x01", 1))
	p.Trigger()

	assert.Eventually(t, func() bool { return len(gc.sent()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "pools.0x01", gc.sent()[0].channel)
}

func TestPublisherCountsFailures(t *testing.T) {
	gc := &fakeCentrifugo{err: errors.New("unavailable")}
	rec := &countingRecorder{}
	p := newPublisher(gc, PublishConfig{Interval: time.Hour}, zerolog.Nop(), rec)

	p.PoolUpdated(context.Background(), testPool("0x01", 1))
	require.NoError(t, p.Close())

	assert.Equal(t, 2, rec.failed)
	assert.Zero(t, rec.ok)
}
