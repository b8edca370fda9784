// Package store is the entity store used by the mappers: a key/value space of
// JSON documents addressed by (kind, id), written through per-event sessions.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrTypeMismatch is returned when an entity is read back as a different Go type.
	ErrTypeMismatch = errors.New("entity type mismatch")
)

// Cursor identifies the last event whose writes have been committed.
type Cursor struct {
	Block    uint64 `json:"block"`
	LogIndex uint   `json:"logIndex"`
}

// After reports whether c is strictly later than other.
func (c Cursor) After(other Cursor) bool {
	if c.Block != other.Block {
		return c.Block > other.Block
	}
	return c.LogIndex > other.LogIndex
}

// Record is one entity write.
type Record struct {
	Kind string
	ID   string
	Data []byte
}

// ListOptions selects and orders entities of one kind.
// OrderBy names a top-level JSON field compared numerically.
type ListOptions struct {
	OrderBy string
	Desc    bool
	Filter  map[string]string
	Limit   int
	Offset  int
}

// Backend persists entity documents.
type Backend interface {
	Get(ctx context.Context, kind, id string) ([]byte, error)
	IDs(ctx context.Context, kind string) ([]string, error)
	List(ctx context.Context, kind string, opts ListOptions) ([][]byte, error)
	Count(ctx context.Context, kind string, filter map[string]string) (int, error)

	// Cursor returns the zero cursor and no error before the first commit.
	Cursor(ctx context.Context) (Cursor, error)

	// Commit writes all records and advances the cursor atomically.
	Commit(ctx context.Context, cursor Cursor, records []Record) error
}
