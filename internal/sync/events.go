package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ubeswap/v3-indexer/internal/modules/core"
)

// SyncRange fetches the logs of [from, to] for every routed topic and hands
// them to the modules in chain order. Module progress is recorded at to.
func (m *Manager) SyncRange(ctx context.Context, from, to uint64) error {
	start := time.Now()

	logs, err := m.chain.GetLogs(ctx, from, to, m.router.Topics())
	if err != nil {
		return err
	}

	events, err := m.enrich(ctx, logs)
	if err != nil {
		return err
	}

	if m.archive != nil && len(events) > 0 {
		if err := m.archive.InsertEvents(ctx, events); err != nil {
			return fmt.Errorf("failed to archive events %d-%d: %w", from, to, err)
		}
	}

	for _, ev := range events {
		if err := m.router.ProcessEvent(ctx, ev); err != nil {
			return err
		}
	}

	if err := m.router.UpdateModuleBlock(ctx, to); err != nil {
		return err
	}

	elapsed := time.Since(start)
	m.observer.RangeSynced(from, to, len(events), elapsed)

	evt := m.logger.Debug()
	if len(events) > 0 {
		evt = m.logger.Info()
	}
	evt.Uint64("from", from).
		Uint64("to", to).
		Int("events", len(events)).
		Dur("elapsed", elapsed).
		Msg("Synced block range")
	return nil
}

// enrich wraps logs with their block timestamps and transaction senders.
func (m *Manager) enrich(ctx context.Context, logs []types.Log) ([]*core.Event, error) {
	if len(logs) == 0 {
		return nil, nil
	}

	var blocks []uint64
	var hashes []common.Hash
	seenBlock := make(map[uint64]bool)
	seenHash := make(map[common.Hash]bool)
	for _, l := range logs {
		if !seenBlock[l.BlockNumber] {
			seenBlock[l.BlockNumber] = true
			blocks = append(blocks, l.BlockNumber)
		}
		if !seenHash[l.TxHash] {
			seenHash[l.TxHash] = true
			hashes = append(hashes, l.TxHash)
		}
	}

	timestamps, err := m.chain.BlockTimestamps(ctx, blocks)
	if err != nil {
		return nil, err
	}
	origins, err := m.chain.TransactionOrigins(ctx, hashes)
	if err != nil {
		return nil, err
	}

	events := make([]*core.Event, len(logs))
	for i, l := range logs {
		events[i] = &core.Event{
			Log:       l,
			Timestamp: timestamps[l.BlockNumber],
			Origin:    origins[l.TxHash],
		}
	}
	return events, nil
}
