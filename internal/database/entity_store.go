package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/store"
)

var _ store.Backend = (*EntityStore)(nil)

// EntityStore keeps entity documents in the entities table as JSONB.
type EntityStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewEntityStore(db *Database) *EntityStore {
	return &EntityStore{
		pool:   db.pool,
		logger: db.logger.With().Str("component", "entity_store").Logger(),
	}
}

func (s *EntityStore) Get(ctx context.Context, kind, id string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM entities WHERE kind = $1 AND id = $2`,
		kind, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	return data, nil
}

func (s *EntityStore) IDs(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM entities WHERE kind = $1 ORDER BY id`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", kind, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s ids: %w", kind, err)
	}
	return ids, nil
}

// List mirrors the memory backend: filters compare top-level fields without
// regard to case, OrderBy sorts numerically and ties break on id.
func (s *EntityStore) List(ctx context.Context, kind string, opts store.ListOptions) ([][]byte, error) {
	query, args := buildSelect("data", kind, opts.Filter)

	if opts.OrderBy != "" {
		args = append(args, opts.OrderBy)
		dir := "ASC"
		if opts.Desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY (data->>$%d)::numeric %s NULLS LAST, id", len(args), dir)
	} else {
		query += " ORDER BY id"
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
	}
	return docs, nil
}

func (s *EntityStore) Count(ctx context.Context, kind string, filter map[string]string) (int, error) {
	query, args := buildSelect("COUNT(*)", kind, filter)
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return n, nil
}

func (s *EntityStore) Cursor(ctx context.Context) (store.Cursor, error) {
	var c store.Cursor
	var logIndex int64
	err := s.pool.QueryRow(ctx, `SELECT block_number, log_index FROM store_cursor WHERE id = 1`).Scan(&c.Block, &logIndex)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Cursor{}, nil
		}
		return store.Cursor{}, fmt.Errorf("failed to read store cursor: %w", err)
	}
	c.LogIndex = uint(logIndex)
	return c, nil
}

// Commit upserts every record and moves the cursor in one transaction.
func (s *EntityStore) Commit(ctx context.Context, cursor store.Cursor, records []store.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO entities (kind, id, data, block_number, log_index)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (kind, id) DO UPDATE
			SET data = EXCLUDED.data,
			    block_number = EXCLUDED.block_number,
			    log_index = EXCLUDED.log_index,
			    updated_at = NOW()`,
			r.Kind, r.ID, r.Data, cursor.Block, int64(cursor.LogIndex))
	}
	batch.Queue(`
		INSERT INTO store_cursor (id, block_number, log_index) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE
		SET block_number = EXCLUDED.block_number, log_index = EXCLUDED.log_index, updated_at = NOW()`,
		cursor.Block, int64(cursor.LogIndex))

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write %d entities: %w", len(records), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit entities: %w", err)
	}

	s.logger.Debug().
		Uint64("block", cursor.Block).
		Uint("log_index", cursor.LogIndex).
		Int("entities", len(records)).
		Msg("Entities committed")
	return nil
}

// buildSelect renders a SELECT over one kind with case-insensitive field
// filters. Field names travel as parameters.
func buildSelect(columns, kind string, filter map[string]string) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT " + columns + " FROM entities WHERE kind = $1")
	args := []interface{}{kind}

	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		args = append(args, f, filter[f])
		fmt.Fprintf(&b, " AND lower(data->>$%d) = lower($%d)", len(args)-1, len(args))
	}
	return b.String(), args
}
