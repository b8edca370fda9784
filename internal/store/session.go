package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type entryKey struct {
	kind string
	id   string
}

type entry struct {
	value    any
	original []byte // nil for entities created in this session
}

// Session is the unit of work of one mapper invocation. Every entity loaded or
// created through it is cached, so repeated reads of the same (kind, id) hand
// back the same pointer. Commit writes the entities that are new or changed
// together with the event cursor; nothing reaches the backend before that.
type Session struct {
	backend Backend
	cursor  Cursor
	entries map[entryKey]*entry
	order   []entryKey
	written []Record
	done    bool
}

// NewSession opens a session that will commit at cursor.
func NewSession(backend Backend, cursor Cursor) *Session {
	return &Session{
		backend: backend,
		cursor:  cursor,
		entries: make(map[entryKey]*entry),
	}
}

// Cursor returns the position this session commits at.
func (s *Session) Cursor() Cursor { return s.cursor }

// Get loads an entity, returning ErrNotFound when it does not exist.
func Get[T any](ctx context.Context, s *Session, kind, id string) (*T, error) {
	key := entryKey{kind, id}
	if e, ok := s.entries[key]; ok {
		v, ok := e.value.(*T)
		if !ok {
			return nil, fmt.Errorf("%w: %s %s holds %T", ErrTypeMismatch, kind, id, e.value)
		}
		return v, nil
	}

	data, err := s.backend.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load %s %s: %w", kind, id, err)
	}

	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}
	s.track(key, &entry{value: v, original: data})
	return v, nil
}

// GetOrCreate loads an entity or, when absent, caches the value built by create.
// The boolean reports whether the entity was created.
func GetOrCreate[T any](ctx context.Context, s *Session, kind, id string, create func() *T) (*T, bool, error) {
	v, err := Get[T](ctx, s, kind, id)
	if err == nil {
		return v, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	v = create()
	s.Put(kind, id, v)
	return v, true, nil
}

// Put caches a new entity, replacing whatever the session held for the key.
// value must be a pointer.
func (s *Session) Put(kind, id string, value any) {
	key := entryKey{kind, id}
	if e, ok := s.entries[key]; ok {
		e.value = value
		return
	}
	s.track(key, &entry{value: value})
}

func (s *Session) track(key entryKey, e *entry) {
	s.entries[key] = e
	s.order = append(s.order, key)
}

// Commit writes every new or modified entity and advances the cursor.
func (s *Session) Commit(ctx context.Context) error {
	if s.done {
		return errors.New("session already closed")
	}

	records := make([]Record, 0, len(s.order))
	for _, key := range s.order {
		e := s.entries[key]
		data, err := json.Marshal(e.value)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", key.kind, key.id, err)
		}
		if e.original != nil && jsonEqual(e.original, data) {
			continue
		}
		records = append(records, Record{Kind: key.kind, ID: key.id, Data: data})
	}

	if err := s.backend.Commit(ctx, s.cursor, records); err != nil {
		return fmt.Errorf("failed to commit %d entities: %w", len(records), err)
	}
	s.written = records
	s.done = true
	return nil
}

// Discard drops every pending change.
func (s *Session) Discard() {
	s.entries = make(map[entryKey]*entry)
	s.order = nil
	s.done = true
}

// Written returns the ids of the entities of kind written by Commit.
func (s *Session) Written(kind string) []string {
	var ids []string
	for _, r := range s.written {
		if r.Kind == kind {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// jsonEqual compares documents after compaction; backends such as JSONB do
// not preserve the exact bytes they were given.
func jsonEqual(a, b []byte) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	if bytes.Equal(ca.Bytes(), cb.Bytes()) {
		return true
	}
	na, errA := canonicalJSON(a)
	nb, errB := canonicalJSON(b)
	return errA == nil && errB == nil && bytes.Equal(na, nb)
}

// canonicalJSON re-encodes a document with sorted keys, keeping numbers verbatim.
func canonicalJSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
