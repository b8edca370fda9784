package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/modules/core"
)

// ChainReader is the part of the RPC client the sync needs.
type ChainReader interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, fromBlock, toBlock uint64, topics []common.Hash) ([]types.Log, error)
	BlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error)
	TransactionOrigins(ctx context.Context, hashes []common.Hash) (map[common.Hash]common.Address, error)
}

// EventRouter delivers events to modules and records their progress.
type EventRouter interface {
	Topics() []common.Hash
	ProcessEvent(ctx context.Context, ev *core.Event) error
	UpdateModuleBlock(ctx context.Context, blockNumber uint64) error
}

// Archiver stores routed events for later backfills.
type Archiver interface {
	InsertEvents(ctx context.Context, events []*core.Event) error
}

// Observer receives sync progress.
type Observer interface {
	HeadObserved(head, synced uint64)
	RangeSynced(fromBlock, toBlock uint64, events int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) HeadObserved(uint64, uint64) {}
func (nopObserver) RangeSynced(uint64, uint64, int, time.Duration) {}

type Config struct {
	// BatchSize is the number of blocks covered by one range.
	BatchSize uint64
	// Confirmations keeps the sync this many blocks behind the head.
	Confirmations uint64
	// StartBlock is the first block to sync when nothing was synced yet.
	StartBlock uint64
	MaxRetries int
	RetryDelay time.Duration
}

// Manager follows the chain head in ranges of logs. Each range is fetched,
// enriched, archived and routed in (block, logIndex) order; progress only
// moves once a whole range succeeded.
type Manager struct {
	chain    ChainReader
	router   EventRouter
	archive  Archiver
	observer Observer
	logger   zerolog.Logger

	batchSize     uint64
	confirmations uint64
	startBlock    uint64
	maxRetries    int
	retryDelay    time.Duration

	// Sync state
	mu               sync.RWMutex
	isSyncing        bool
	lastSyncedBlock  uint64
	latestChainBlock uint64
	lastError        error
}

// Option configures optional collaborators.
type Option func(*Manager)

// WithArchive stores every routed event.
func WithArchive(a Archiver) Option {
	return func(m *Manager) { m.archive = a }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

func NewManager(chain ChainReader, router EventRouter, config Config, logger zerolog.Logger, opts ...Option) *Manager {
	if config.BatchSize == 0 {
		config.BatchSize = 2000
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	m := &Manager{
		chain:         chain,
		router:        router,
		observer:      nopObserver{},
		logger:        logger.With().Str("component", "sync").Logger(),
		batchSize:     config.BatchSize,
		confirmations: config.Confirmations,
		startBlock:    config.StartBlock,
		maxRetries:    config.MaxRetries,
		retryDelay:    config.RetryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init positions the sync after lastProcessed, or just before the start
// block when that is further ahead.
func (m *Manager) Init(lastProcessed uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startBlock > 0 && lastProcessed < m.startBlock {
		m.lastSyncedBlock = m.startBlock - 1
		m.logger.Info().
			Uint64("last_processed", lastProcessed).
			Uint64("start_block", m.startBlock).
			Msg("Starting from configured start block")
		return
	}
	m.lastSyncedBlock = lastProcessed
	m.logger.Info().Uint64("block", lastProcessed).Msg("Resuming from last synced block")
}

// SyncToTip syncs range after range until the confirmed head is reached.
func (m *Manager) SyncToTip(ctx context.Context) error {
	m.mu.Lock()
	if m.isSyncing {
		m.mu.Unlock()
		return nil
	}
	m.isSyncing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isSyncing = false
		m.mu.Unlock()
	}()

	err := m.syncToTip(ctx)
	m.mu.Lock()
	m.lastError = err
	m.mu.Unlock()
	return err
}

func (m *Manager) syncToTip(ctx context.Context) error {
	latestBlock, err := m.chain.GetLatestBlockNumber(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.latestChainBlock = latestBlock
	m.mu.Unlock()

	if latestBlock < m.confirmations {
		return nil
	}
	safeHead := latestBlock - m.confirmations

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		current := m.LastSyncedBlock() + 1
		m.observer.HeadObserved(latestBlock, current-1)
		if current > safeHead {
			return nil
		}

		batchEnd := min(current+m.batchSize-1, safeHead)
		if err := m.syncRangeWithRetry(ctx, current, batchEnd); err != nil {
			return err
		}

		m.mu.Lock()
		m.lastSyncedBlock = batchEnd
		m.mu.Unlock()
	}
}

// syncRangeWithRetry retries the same range with exponential backoff. Events
// applied by a failed attempt are behind the store cursor and skipped.
func (m *Manager) syncRangeWithRetry(ctx context.Context, from, to uint64) error {
	var err error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := m.retryDelay * time.Duration(1<<(attempt-1))
			m.logger.Warn().
				Err(err).
				Uint64("from", from).
				Uint64("to", to).
				Int("retry", attempt).
				Dur("delay", delay).
				Msg("Range failed, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err = m.SyncRange(ctx, from, to); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
	}
	return fmt.Errorf("failed to sync range %d-%d after %d attempts: %w", from, to, m.maxRetries, err)
}

// LastSyncedBlock returns the last block whose events were all routed.
func (m *Manager) LastSyncedBlock() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSyncedBlock
}

// Status is a snapshot of the sync progress.
type Status struct {
	IsSyncing  bool   `json:"is_syncing"`
	LastSynced uint64 `json:"last_synced"`
	ChainTip   uint64 `json:"chain_tip"`
	BehindBy   uint64 `json:"behind_by"`
	LastError  string `json:"last_error,omitempty"`
}

// GetStatus returns current sync status
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		IsSyncing:  m.isSyncing,
		LastSynced: m.lastSyncedBlock,
		ChainTip:   m.latestChainBlock,
	}
	if m.latestChainBlock > m.lastSyncedBlock {
		st.BehindBy = m.latestChainBlock - m.lastSyncedBlock
	}
	if m.lastError != nil {
		st.LastError = m.lastError.Error()
	}
	return st
}

// LogStatus logs current sync status
func (m *Manager) LogStatus() {
	st := m.GetStatus()
	m.logger.Info().
		Uint64("synced", st.LastSynced).
		Uint64("chain_tip", st.ChainTip).
		Uint64("behind_by", st.BehindBy).
		Msg("Sync status")
}
