package database

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ubeswap/v3-indexer/internal/modules/core"
)

// EventLog is a row of event_logs.
type EventLog struct {
	BlockNumber      uint64   `db:"block_number"`
	LogIndex         int64    `db:"log_index"`
	BlockHash        string   `db:"block_hash"`
	TransactionHash  string   `db:"transaction_hash"`
	TransactionIndex int64    `db:"transaction_index"`
	Address          string   `db:"address"`
	Topic0           string   `db:"topic0"`
	Topics           []string `db:"topics"`
	Data             string   `db:"data"`
	BlockTimestamp   int64    `db:"block_timestamp"`
	Origin           string   `db:"origin"`
}

// NewEventLog flattens an event for storage. Hex fields are lower case.
func NewEventLog(ev *core.Event) *EventLog {
	topics := make([]string, len(ev.Log.Topics))
	for i, t := range ev.Log.Topics {
		topics[i] = strings.ToLower(t.Hex())
	}
	topic0 := ""
	if len(topics) > 0 {
		topic0 = topics[0]
	}
	return &EventLog{
		BlockNumber:      ev.Log.BlockNumber,
		LogIndex:         int64(ev.Log.Index),
		BlockHash:        strings.ToLower(ev.Log.BlockHash.Hex()),
		TransactionHash:  strings.ToLower(ev.Log.TxHash.Hex()),
		TransactionIndex: int64(ev.Log.TxIndex),
		Address:          strings.ToLower(ev.Log.Address.Hex()),
		Topic0:           topic0,
		Topics:           topics,
		Data:             hexutil.Encode(ev.Log.Data),
		BlockTimestamp:   int64(ev.Timestamp),
		Origin:           strings.ToLower(ev.Origin.Hex()),
	}
}

// Event rebuilds the envelope handed to modules.
func (l *EventLog) Event() (*core.Event, error) {
	data, err := hexutil.Decode(l.Data)
	if err != nil {
		return nil, fmt.Errorf("event %d/%d has malformed data: %w", l.BlockNumber, l.LogIndex, err)
	}
	topics := make([]common.Hash, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = common.HexToHash(t)
	}
	return &core.Event{
		Log: types.Log{
			Address:     common.HexToAddress(l.Address),
			Topics:      topics,
			Data:        data,
			BlockNumber: l.BlockNumber,
			TxHash:      common.HexToHash(l.TransactionHash),
			TxIndex:     uint(l.TransactionIndex),
			BlockHash:   common.HexToHash(l.BlockHash),
			Index:       uint(l.LogIndex),
		},
		Timestamp: uint64(l.BlockTimestamp),
		Origin:    common.HexToAddress(l.Origin),
	}, nil
}

func topicsJSON(topics []string) ([]byte, error) {
	return json.Marshal(topics)
}
