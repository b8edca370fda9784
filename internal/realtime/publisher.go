package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
)

// publishClient is the part of the Centrifugo API client the publisher uses.
type publishClient interface {
	Publish(ctx context.Context, channel string, data []byte, opts ...gocent.PublishOption) (gocent.PublishResult, error)
}

// Recorder counts publish attempts.
type Recorder interface {
	Published(ok bool)
}

// Publisher pushes pool snapshots to Centrifugo. Updates are coalesced per
// pool and flushed every interval, so a busy block publishes each pool once.
type Publisher struct {
	gc       publishClient
	channel  string
	recorder Recorder
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]schema.Pool
	flushCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type PublishConfig struct {
	APIURL string
	APIKey string
	// Channel receives batches; each pool also gets "<Channel>.<address>".
	Channel  string
	Interval time.Duration
}

func NewPublisher(config PublishConfig, logger zerolog.Logger, recorder Recorder) *Publisher {
	gc := gocent.New(gocent.Config{
		Addr: config.APIURL,
		Key:  config.APIKey,
	})
	return newPublisher(gc, config, logger, recorder)
}

func newPublisher(gc publishClient, config PublishConfig, logger zerolog.Logger, recorder Recorder) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	if config.Channel == "" {
		config.Channel = "pools"
	}
	if config.Interval <= 0 {
		config.Interval = 250 * time.Millisecond
	}

	p := &Publisher{
		gc:       gc,
		channel:  config.Channel,
		recorder: recorder,
		logger:   logger.With().Str("component", "realtime-publisher").Logger(),
		pending:  make(map[string]schema.Pool),
		flushCh:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	p.startFlusher(config.Interval)
	return p
}

func (p *Publisher) startFlusher(interval time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				p.logger.Info().Msg("Stopping publisher flusher")
				return
			case <-ticker.C:
				p.flush(p.ctx)
			case <-p.flushCh:
				p.flush(p.ctx)
			}
		}
	}()
}

// PoolUpdated queues the latest state of pool.
func (p *Publisher) PoolUpdated(_ context.Context, pool *schema.Pool) {
	p.mu.Lock()
	p.pending[pool.ID] = *pool
	p.mu.Unlock()
}

// Trigger asks the flusher to publish now.
func (p *Publisher) Trigger() {
	select {
	case p.flushCh <- struct{}{}:
	default:
	}
}

func (p *Publisher) Flush() {
	p.flush(p.ctx)
}

func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	pools := make([]schema.Pool, 0, len(p.pending))
	for _, pool := range p.pending {
		pools = append(pools, pool)
	}
	p.pending = make(map[string]schema.Pool)
	p.mu.Unlock()

	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	timestamp := time.Now().UTC().Unix()

	p.logger.Debug().Int("count", len(pools)).Msg("Flushing pool updates")

	for i := range pools {
		pool := &pools[i]
		payload := map[string]any{
			"type": "pool.update",
			"ts":   timestamp,
			"pool": pool,
		}
		p.publish(ctx, p.channel+"."+pool.ID, payload)
	}

	p.publish(ctx, p.channel, map[string]any{
		"type":  "pool.batch",
		"ts":    timestamp,
		"items": pools,
	})
}

func (p *Publisher) publish(ctx context.Context, channel string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn().Err(err).Str("channel", channel).Msg("Failed to marshal payload")
		return
	}

	_, err = p.gc.Publish(ctx, channel, data)
	if p.recorder != nil {
		p.recorder.Published(err == nil)
	}
	if err != nil {
		// Ignore errors if context is cancelled (shutting down)
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn().
			Err(err).
			Str("channel", channel).
			Msg("Failed to publish pool update")
	}
}

// Close stops the flusher after publishing what is still queued.
func (p *Publisher) Close() error {
	p.logger.Info().Msg("Closing publisher")
	p.flush(p.ctx)
	p.cancel()
	p.wg.Wait()
	return nil
}
