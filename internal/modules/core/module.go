package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ubeswap/v3-indexer/internal/store"
)

// Module represents a processing module that handles specific blockchain events.
// Modules follow the subgraph pattern: a manifest names the contracts and
// handlers, and each handler maps one event onto stored entities.
type Module interface {
	// Name returns the unique name of the module
	Name() string

	// Version returns the module version
	Version() string

	// Manifest returns the module's manifest configuration
	Manifest() *Manifest

	// Initialize wires the module to its entity store and data source registry
	Initialize(ctx context.Context, env Environment) error

	// HandleEvent processes a single event that matches this module's filters.
	// A returned error means the event was not applied and must be retried.
	HandleEvent(ctx context.Context, event *Event) error

	// GetEventFilters returns the event filters this module is interested in
	GetEventFilters() []EventFilter

	// GetStartBlock returns the block number from which this module should start processing
	GetStartBlock() uint64

	// Backfill replays archived events between two blocks
	Backfill(ctx context.Context, fromBlock, toBlock uint64) error

	// GetSyncState returns the last processed block for this module
	GetSyncState(ctx context.Context) (uint64, error)

	// UpdateSyncState updates the last processed block for this module
	UpdateSyncState(ctx context.Context, blockNumber uint64) error
}

// Environment carries the dependencies a module needs at initialization.
type Environment struct {
	Store       store.Backend
	State       StateStore
	Archive     EventArchive
	DataSources DataSourceCreator
}

// DataSourceCreator instantiates a manifest template for a concrete address,
// the equivalent of a subgraph `Template.create(address)`.
type DataSourceCreator interface {
	CreateDataSource(template string, address common.Address)
}

// EventArchive replays stored raw events in chain order.
type EventArchive interface {
	StreamEvents(ctx context.Context, fromBlock, toBlock uint64, topics []common.Hash, fn func(*Event) error) error
}

// EventFilter defines what events a module wants to receive
type EventFilter struct {
	// Address is the contract address to watch (optional, empty = all addresses)
	Address string `yaml:"address,omitempty"`

	// Topic0 is the event signature hash
	Topic0 string `yaml:"topic0,omitempty"`

	// Template restricts the filter to addresses created from this template
	Template string `yaml:"template,omitempty"`
}

// ModuleState represents the current processing state of a module
type ModuleState struct {
	ModuleName         string
	Version            string
	LastProcessedBlock uint64
	Status             ModuleStatus
	BackfillFromBlock  *uint64
	BackfillToBlock    *uint64
	CreatedAt          int64
	UpdatedAt          int64
}

// ModuleStatus represents the possible states of a module
type ModuleStatus string

const (
	StatusActive      ModuleStatus = "active"
	StatusBackfilling ModuleStatus = "backfilling"
	StatusPaused      ModuleStatus = "paused"
	StatusError       ModuleStatus = "error"
)
