package rpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// blockHeader holds the header fields the indexer reads. Decoding into it
// instead of types.Header tolerates chains with non-standard headers.
type blockHeader struct {
	Number    hexutil.Uint64 `json:"number"`
	Hash      common.Hash    `json:"hash"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

type rawTransaction struct {
	Hash common.Hash    `json:"hash"`
	From common.Address `json:"from"`
}

// BlockTimestamps returns the timestamp of every block in numbers, fetched in
// JSON-RPC batches.
func (c *Client) BlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64, len(numbers))
	for start := 0; start < len(numbers); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(numbers))
		chunk := numbers[start:end]

		headers := make([]blockHeader, len(chunk))
		elems := make([]rpc.BatchElem, len(chunk))
		for i, n := range chunk {
			elems[i] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []interface{}{hexutil.EncodeUint64(n), false},
				Result: &headers[i],
			}
		}
		if err := c.batchCall(ctx, elems); err != nil {
			return nil, fmt.Errorf("failed to fetch block headers: %w", err)
		}
		for i, n := range chunk {
			if elems[i].Error != nil {
				return nil, fmt.Errorf("failed to fetch block %d: %w", n, elems[i].Error)
			}
			if uint64(headers[i].Number) != n {
				return nil, fmt.Errorf("block %d not available", n)
			}
			out[n] = uint64(headers[i].Timestamp)
		}
	}
	return out, nil
}

// TransactionOrigins returns the sender of every transaction in hashes.
func (c *Client) TransactionOrigins(ctx context.Context, hashes []common.Hash) (map[common.Hash]common.Address, error) {
	out := make(map[common.Hash]common.Address, len(hashes))
	for start := 0; start < len(hashes); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(hashes))
		chunk := hashes[start:end]

		txs := make([]*rawTransaction, len(chunk))
		elems := make([]rpc.BatchElem, len(chunk))
		for i, h := range chunk {
			elems[i] = rpc.BatchElem{
				Method: "eth_getTransactionByHash",
				Args:   []interface{}{h},
				Result: &txs[i],
			}
		}
		if err := c.batchCall(ctx, elems); err != nil {
			return nil, fmt.Errorf("failed to fetch transactions: %w", err)
		}
		for i, h := range chunk {
			if elems[i].Error != nil {
				return nil, fmt.Errorf("failed to fetch transaction %s: %w", h.Hex(), elems[i].Error)
			}
			if txs[i] == nil {
				return nil, fmt.Errorf("transaction %s not found", h.Hex())
			}
			out[h] = txs[i].From
		}
	}
	return out, nil
}

func (c *Client) batchCall(ctx context.Context, elems []rpc.BatchElem) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return c.raw.BatchCallContext(ctx, elems)
}
