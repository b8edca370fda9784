package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ubeswap/v3-indexer/internal/modules/core"
)

var _ core.StateStore = (*ModuleStateStore)(nil)

// ModuleStateStore keeps module progress in the module_state table.
type ModuleStateStore struct {
	pool *pgxpool.Pool
}

func NewModuleStateStore(db *Database) *ModuleStateStore {
	return &ModuleStateStore{pool: db.pool}
}

// InitModuleState creates or updates module state in database
func (s *ModuleStateStore) InitModuleState(ctx context.Context, name, version string) error {
	query := `
		INSERT INTO module_state (module_name, version, last_processed_block, status)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (module_name)
		DO UPDATE SET
			version = EXCLUDED.version,
			updated_at = CURRENT_TIMESTAMP`

	if _, err := s.pool.Exec(ctx, query, name, version, string(core.StatusActive)); err != nil {
		return fmt.Errorf("failed to initialize module state for %s: %w", name, err)
	}
	return nil
}

// GetModuleState returns the current state of a module
func (s *ModuleStateStore) GetModuleState(ctx context.Context, name string) (*core.ModuleState, error) {
	query := `
		SELECT module_name, version, last_processed_block, status,
		       backfill_from_block, backfill_to_block,
		       EXTRACT(EPOCH FROM created_at)::bigint AS created_at,
		       EXTRACT(EPOCH FROM updated_at)::bigint AS updated_at
		FROM module_state
		WHERE module_name = $1`

	var (
		state  core.ModuleState
		status string
	)
	err := s.pool.QueryRow(ctx, query, name).Scan(
		&state.ModuleName,
		&state.Version,
		&state.LastProcessedBlock,
		&status,
		&state.BackfillFromBlock,
		&state.BackfillToBlock,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("module %s has no state", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get module state for %s: %w", name, err)
	}
	state.Status = core.ModuleStatus(status)
	return &state, nil
}

// UpdateModuleBlock updates the last processed block for a module
func (s *ModuleStateStore) UpdateModuleBlock(ctx context.Context, name string, blockNumber uint64) error {
	query := `
		UPDATE module_state
		SET last_processed_block = $2, updated_at = CURRENT_TIMESTAMP
		WHERE module_name = $1`
	return s.exec(ctx, name, query, blockNumber)
}

func (s *ModuleStateStore) UpdateModuleStatus(ctx context.Context, name string, status core.ModuleStatus) error {
	query := `
		UPDATE module_state
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE module_name = $1`
	return s.exec(ctx, name, query, string(status))
}

// SetBackfillRange records the range being replayed. Nil bounds clear it.
func (s *ModuleStateStore) SetBackfillRange(ctx context.Context, name string, fromBlock, toBlock *uint64) error {
	query := `
		UPDATE module_state
		SET backfill_from_block = $2, backfill_to_block = $3, updated_at = CURRENT_TIMESTAMP
		WHERE module_name = $1`
	return s.exec(ctx, name, query, fromBlock, toBlock)
}

func (s *ModuleStateStore) exec(ctx context.Context, name, query string, args ...interface{}) error {
	tag, err := s.pool.Exec(ctx, query, append([]interface{}{name}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update module state for %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("module %s has no state", name)
	}
	return nil
}
