package rpc

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/semaphore"
)

// BlockRange is an inclusive range of blocks.
type BlockRange struct {
	Start uint64
	End   uint64
}

// SplitRange cuts [start, end] into consecutive ranges of at most size blocks.
func SplitRange(start, end, size uint64) []BlockRange {
	if start > end || size == 0 {
		return nil
	}
	var out []BlockRange
	for from := start; from <= end; from += size {
		to := from + size - 1
		if to > end || to < from {
			to = end
		}
		out = append(out, BlockRange{Start: from, End: to})
		if to == end {
			break
		}
	}
	return out
}

// GetLogs fetches the logs carrying any of topics in [fromBlock, toBlock].
// Large ranges are split and fetched concurrently; the result is ordered by
// (block, logIndex) and excludes removed logs.
func (c *Client) GetLogs(ctx context.Context, fromBlock, toBlock uint64, topics []common.Hash) ([]types.Log, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("invalid range: start %d > end %d", fromBlock, toBlock)
	}
	if len(topics) == 0 {
		return nil, nil
	}

	chunks := SplitRange(fromBlock, toBlock, c.opts.LogRange)
	sem := semaphore.NewWeighted(int64(c.opts.Workers))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		allLogs  []types.Log
		fetchErr error
	)

	for _, chunk := range chunks {
		wg.Add(1)
		go func(r BlockRange) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				if fetchErr == nil {
					fetchErr = err
				}
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			logs, err := c.getLogsRange(ctx, r, topics)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fetchErr == nil {
					fetchErr = fmt.Errorf("failed to get logs for range %d-%d: %w", r.Start, r.End, err)
				}
				return
			}
			allLogs = append(allLogs, logs...)
		}(chunk)
	}

	wg.Wait()
	if fetchErr != nil {
		return nil, fetchErr
	}

	kept := allLogs[:0]
	for _, l := range allLogs {
		if !l.Removed {
			kept = append(kept, l)
		}
	}
	SortLogs(kept)

	c.logger.Debug().
		Uint64("from", fromBlock).
		Uint64("to", toBlock).
		Int("chunks", len(chunks)).
		Int("total_logs", len(kept)).
		Msg("Fetched logs")

	return kept, nil
}

func (c *Client) getLogsRange(ctx context.Context, r BlockRange, topics []common.Hash) ([]types.Log, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.Start),
		ToBlock:   new(big.Int).SetUint64(r.End),
		Topics:    [][]common.Hash{topics},
	}
	return c.eth.FilterLogs(ctx, query)
}

// SortLogs orders logs by block, then log index.
func SortLogs(logs []types.Log) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}
