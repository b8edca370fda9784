package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/modules/core"
)

var _ core.EventArchive = (*EventArchive)(nil)

// EventArchive stores routed logs and streams them back for backfills.
type EventArchive struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewEventArchive(db *Database) *EventArchive {
	return &EventArchive{
		pool:   db.pool,
		logger: db.logger.With().Str("component", "event_archive").Logger(),
	}
}

// InsertEvents copies events into a temporary table and merges them, so a
// range fetched twice does not duplicate rows.
func (a *EventArchive) InsertEvents(ctx context.Context, events []*core.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE temp_event_logs (LIKE event_logs INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("failed to create temp table: %w", err)
	}

	rows := make([][]interface{}, 0, len(events))
	for _, ev := range events {
		l := NewEventLog(ev)
		topics, err := topicsJSON(l.Topics)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			l.BlockNumber, l.LogIndex, l.BlockHash, l.TransactionHash, l.TransactionIndex,
			l.Address, l.Topic0, topics, l.Data, l.BlockTimestamp, l.Origin,
		})
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"temp_event_logs"}, eventLogColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy event logs: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO event_logs (`+strings.Join(eventLogColumns, ", ")+`)
		SELECT `+strings.Join(eventLogColumns, ", ")+` FROM temp_event_logs
		ON CONFLICT (block_number, log_index) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to merge event logs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit event logs: %w", err)
	}

	a.logger.Debug().
		Int("events", len(events)).
		Int64("inserted", tag.RowsAffected()).
		Msg("Archived event logs")
	return nil
}

var eventLogColumns = []string{
	"block_number", "log_index", "block_hash", "transaction_hash", "transaction_index",
	"address", "topic0", "topics", "data", "block_timestamp", "origin",
}

// StreamEvents calls fn for every archived event in [fromBlock, toBlock]
// carrying one of topics, in (block, logIndex) order. An empty topic list
// streams everything.
func (a *EventArchive) StreamEvents(ctx context.Context, fromBlock, toBlock uint64, topics []common.Hash, fn func(*core.Event) error) error {
	query := `SELECT ` + strings.Join(eventLogColumns, ", ") + `
		FROM event_logs
		WHERE block_number BETWEEN $1 AND $2`
	args := []interface{}{fromBlock, toBlock}
	if len(topics) > 0 {
		hexes := make([]string, len(topics))
		for i, t := range topics {
			hexes[i] = strings.ToLower(t.Hex())
		}
		args = append(args, hexes)
		query += ` AND topic0 = ANY($3)`
	}
	query += ` ORDER BY block_number, log_index`

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l EventLog
		var topicsRaw []byte
		if err := rows.Scan(
			&l.BlockNumber, &l.LogIndex, &l.BlockHash, &l.TransactionHash, &l.TransactionIndex,
			&l.Address, &l.Topic0, &topicsRaw, &l.Data, &l.BlockTimestamp, &l.Origin,
		); err != nil {
			return fmt.Errorf("failed to scan event log: %w", err)
		}
		if err := json.Unmarshal(topicsRaw, &l.Topics); err != nil {
			return fmt.Errorf("event %d/%d has malformed topics: %w", l.BlockNumber, l.LogIndex, err)
		}
		ev, err := l.Event()
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LatestBlock returns the highest archived block, or zero.
func (a *EventArchive) LatestBlock(ctx context.Context) (uint64, error) {
	var block uint64
	if err := a.pool.QueryRow(ctx, `SELECT COALESCE(MAX(block_number), 0) FROM event_logs`).Scan(&block); err != nil {
		return 0, fmt.Errorf("failed to read latest archived block: %w", err)
	}
	return block, nil
}
