package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StateStore persists per-module progress and status.
type StateStore interface {
	InitModuleState(ctx context.Context, name, version string) error
	GetModuleState(ctx context.Context, name string) (*ModuleState, error)
	UpdateModuleBlock(ctx context.Context, name string, blockNumber uint64) error
	UpdateModuleStatus(ctx context.Context, name string, status ModuleStatus) error
	SetBackfillRange(ctx context.Context, name string, fromBlock, toBlock *uint64) error
}

// MemoryStateStore keeps module state in process, for tests and dry runs.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]*ModuleState
}

var _ StateStore = (*MemoryStateStore)(nil)

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*ModuleState)}
}

func (m *MemoryStateStore) InitModuleState(_ context.Context, name, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	if st, ok := m.states[name]; ok {
		st.Version = version
		st.UpdatedAt = now
		return nil
	}
	m.states[name] = &ModuleState{
		ModuleName: name,
		Version:    version,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return nil
}

func (m *MemoryStateStore) GetModuleState(_ context.Context, name string) (*ModuleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[name]
	if !ok {
		return nil, fmt.Errorf("module %s has no state", name)
	}
	cp := *st
	return &cp, nil
}

func (m *MemoryStateStore) UpdateModuleBlock(_ context.Context, name string, blockNumber uint64) error {
	return m.update(name, func(st *ModuleState) { st.LastProcessedBlock = blockNumber })
}

func (m *MemoryStateStore) UpdateModuleStatus(_ context.Context, name string, status ModuleStatus) error {
	return m.update(name, func(st *ModuleState) { st.Status = status })
}

func (m *MemoryStateStore) SetBackfillRange(_ context.Context, name string, fromBlock, toBlock *uint64) error {
	return m.update(name, func(st *ModuleState) {
		st.BackfillFromBlock = fromBlock
		st.BackfillToBlock = toBlock
	})
}

func (m *MemoryStateStore) update(name string, fn func(*ModuleState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[name]
	if !ok {
		return fmt.Errorf("module %s has no state", name)
	}
	fn(st)
	st.UpdatedAt = time.Now().Unix()
	return nil
}
