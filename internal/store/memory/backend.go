// Package memory is an in-process store.Backend used by tests and dry runs.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ubeswap/v3-indexer/internal/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend keeps entity documents in maps guarded by a RWMutex.
type Backend struct {
	mu      sync.RWMutex
	data    map[string]map[string][]byte // kind -> id -> document
	cursor  store.Cursor
	commits int
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{data: make(map[string]map[string][]byte)}
}

// Get returns a copy of the stored document.
func (b *Backend) Get(_ context.Context, kind, id string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	doc, ok := b.data[kind][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// IDs returns the ids of one kind in lexical order.
func (b *Backend) IDs(_ context.Context, kind string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.data[kind]))
	for id := range b.data[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// List filters by exact top-level field values and orders by a numeric field.
func (b *Backend) List(_ context.Context, kind string, opts store.ListOptions) ([][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	type row struct {
		id  string
		doc []byte
		key decimal.Decimal
	}

	var rows []row
	for id, doc := range b.data[kind] {
		fields := map[string]json.RawMessage{}
		if err := json.Unmarshal(doc, &fields); err != nil {
			return nil, err
		}
		if !matches(fields, opts.Filter) {
			continue
		}
		r := row{id: id, doc: doc}
		if opts.OrderBy != "" {
			r.key = numeric(fields[opts.OrderBy])
		}
		rows = append(rows, r)
	}

	sort.Slice(rows, func(i, j int) bool {
		if opts.OrderBy != "" {
			if c := rows[i].key.Cmp(rows[j].key); c != 0 {
				if opts.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return rows[i].id < rows[j].id
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return [][]byte{}, nil
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}

	out := make([][]byte, len(rows))
	for i, r := range rows {
		out[i] = append([]byte(nil), r.doc...)
	}
	return out, nil
}

// Count returns the number of documents matching filter.
func (b *Backend) Count(ctx context.Context, kind string, filter map[string]string) (int, error) {
	docs, err := b.List(ctx, kind, store.ListOptions{Filter: filter})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Cursor returns the last committed cursor.
func (b *Backend) Cursor(context.Context) (store.Cursor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursor, nil
}

// Commit stores every record and the cursor under one lock.
func (b *Backend) Commit(_ context.Context, cursor store.Cursor, records []store.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range records {
		byID, ok := b.data[r.Kind]
		if !ok {
			byID = make(map[string][]byte)
			b.data[r.Kind] = byID
		}
		byID[r.ID] = append([]byte(nil), r.Data...)
	}
	b.cursor = cursor
	b.commits++
	return nil
}

// Commits returns how many commits the backend has accepted.
func (b *Backend) Commits() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.commits
}

func matches(fields map[string]json.RawMessage, filter map[string]string) bool {
	for field, want := range filter {
		raw, ok := fields[field]
		if !ok {
			return false
		}
		if !strings.EqualFold(unquote(raw), want) {
			return false
		}
	}
	return true
}

func numeric(raw json.RawMessage) decimal.Decimal {
	d, err := decimal.NewFromString(unquote(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
