package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/store"
)

// routedFilter is one module's interest in a topic.
type routedFilter struct {
	module   string
	address  string
	template string
}

// ModuleRegistry manages the lifecycle of indexer modules and routes events
// to them in registration order.
type ModuleRegistry struct {
	modules map[string]Module
	order   []string
	backend store.Backend
	state   StateStore
	archive EventArchive
	logger  zerolog.Logger

	// Event routing
	topicFilters   map[string][]routedFilter // topic -> filters
	addressFilters map[string][]string       // address -> module names (any topic)

	// Addresses instantiated from templates at runtime. Guarded separately
	// because handlers create data sources while an event is being routed.
	dsMu      sync.RWMutex
	templates map[string]map[string]bool

	statusMu sync.Mutex
	statuses map[string]ModuleStatus

	// Lifecycle management
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewModuleRegistry creates a new module registry
func NewModuleRegistry(backend store.Backend, state StateStore, archive EventArchive, logger zerolog.Logger) *ModuleRegistry {
	ctx, cancel := context.WithCancel(context.Background())

	return &ModuleRegistry{
		modules:        make(map[string]Module),
		backend:        backend,
		state:          state,
		archive:        archive,
		logger:         logger.With().Str("component", "module_registry").Logger(),
		topicFilters:   make(map[string][]routedFilter),
		addressFilters: make(map[string][]string),
		templates:      make(map[string]map[string]bool),
		statuses:       make(map[string]ModuleStatus),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// RegisterModule validates, initializes and registers a module
func (r *ModuleRegistry) RegisterModule(module Module) error {
	name := module.Name()

	r.mu.RLock()
	_, exists := r.modules[name]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("module %s is already registered", name)
	}

	manifest := module.Manifest()
	if manifest == nil {
		return fmt.Errorf("module %s has no manifest", name)
	}

	if err := manifest.ValidateManifest(); err != nil {
		return fmt.Errorf("module %s has invalid manifest: %w", name, err)
	}

	if err := r.state.InitModuleState(r.ctx, name, module.Version()); err != nil {
		return fmt.Errorf("failed to initialize module state for %s: %w", name, err)
	}

	st, err := r.state.GetModuleState(r.ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load module state for %s: %w", name, err)
	}

	// Initialize outside the write lock: modules re-create their data sources here
	env := Environment{Store: r.backend, State: r.state, Archive: r.archive, DataSources: r}
	if err := module.Initialize(r.ctx, env); err != nil {
		return fmt.Errorf("failed to initialize module %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	filters := module.GetEventFilters()
	for _, filter := range filters {
		if filter.Topic0 != "" {
			topic := strings.ToLower(filter.Topic0)
			r.topicFilters[topic] = append(r.topicFilters[topic], routedFilter{
				module:   name,
				address:  strings.ToLower(filter.Address),
				template: filter.Template,
			})
			r.logger.Debug().
				Str("module", name).
				Str("topic0", topic).
				Str("template", filter.Template).
				Msg("Registered topic filter")
			continue
		}
		if filter.Address != "" {
			addr := strings.ToLower(filter.Address)
			r.addressFilters[addr] = append(r.addressFilters[addr], name)
			r.logger.Debug().
				Str("module", name).
				Str("address", addr).
				Msg("Registered address filter")
		}
	}

	r.modules[name] = module
	r.order = append(r.order, name)

	r.statusMu.Lock()
	r.statuses[name] = st.Status
	r.statusMu.Unlock()

	r.logger.Info().
		Str("module", name).
		Str("version", module.Version()).
		Str("status", string(st.Status)).
		Int("filters", len(filters)).
		Msg("Module registered successfully")

	return nil
}

// CreateDataSource starts routing template events emitted by address.
func (r *ModuleRegistry) CreateDataSource(template string, address common.Address) {
	addr := strings.ToLower(address.Hex())

	r.dsMu.Lock()
	defer r.dsMu.Unlock()

	set, ok := r.templates[template]
	if !ok {
		set = make(map[string]bool)
		r.templates[template] = set
	}
	if set[addr] {
		return
	}
	set[addr] = true

	r.logger.Debug().
		Str("template", template).
		Str("address", addr).
		Msg("Created data source")
}

// DataSourceCount returns how many addresses were instantiated from template.
func (r *ModuleRegistry) DataSourceCount(template string) int {
	r.dsMu.RLock()
	defer r.dsMu.RUnlock()
	return len(r.templates[template])
}

// Topics returns every topic0 some module listens to, in a stable order.
func (r *ModuleRegistry) Topics() []common.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]common.Hash, 0, len(r.topicFilters))
	for topic := range r.topicFilters {
		topics = append(topics, common.HexToHash(topic))
	}
	sort.Slice(topics, func(i, j int) bool {
		return topics[i].Hex() < topics[j].Hex()
	})
	return topics
}

// ProcessEvent routes an event to interested modules. The first module error
// stops routing and is returned so the caller can retry the event.
func (r *ModuleRegistry) ProcessEvent(ctx context.Context, ev *Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return nil
	}

	log := &ev.Log
	interested := r.findInterestedModules(log.Address, log.Topics)
	if len(interested) == 0 {
		return nil
	}

	for _, moduleName := range interested {
		module := r.modules[moduleName]

		status := r.moduleStatus(moduleName)
		if status == StatusPaused {
			r.logger.Debug().
				Str("module", moduleName).
				Str("status", string(status)).
				Msg("Skipping event for paused module")
			continue
		}

		if err := module.HandleEvent(ctx, ev); err != nil {
			r.logger.Error().
				Err(err).
				Str("module", moduleName).
				Uint64("block", log.BlockNumber).
				Uint("log_index", log.Index).
				Str("tx_hash", log.TxHash.Hex()).
				Msg("Module failed to process event")

			r.setModuleStatus(ctx, moduleName, StatusError)
			return fmt.Errorf("module %s failed at block %d log %d: %w", moduleName, log.BlockNumber, log.Index, err)
		}

		if status == StatusError {
			r.setModuleStatus(ctx, moduleName, StatusActive)
		}
	}

	return nil
}

// findInterestedModules finds modules that should process a log, in
// registration order.
func (r *ModuleRegistry) findInterestedModules(address common.Address, topics []common.Hash) []string {
	seen := make(map[string]bool)
	addr := strings.ToLower(address.Hex())

	if len(topics) > 0 {
		topic0 := strings.ToLower(topics[0].Hex())
		for _, f := range r.topicFilters[topic0] {
			if seen[f.module] || !r.matches(f, addr) {
				continue
			}
			seen[f.module] = true
		}
	}

	for _, name := range r.addressFilters[addr] {
		seen[name] = true
	}

	var interested []string
	for _, name := range r.order {
		if seen[name] {
			interested = append(interested, name)
		}
	}
	return interested
}

func (r *ModuleRegistry) matches(f routedFilter, addr string) bool {
	if f.address != "" && f.address != addr {
		return false
	}
	if f.template != "" {
		r.dsMu.RLock()
		defer r.dsMu.RUnlock()
		return r.templates[f.template][addr]
	}
	return true
}

// Start begins the module registry lifecycle
func (r *ModuleRegistry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("module registry is already running")
	}

	r.running = true
	r.logger.Info().Int("modules", len(r.modules)).Msg("Module registry started")

	return nil
}

// Stop gracefully stops the module registry
func (r *ModuleRegistry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	r.running = false
	r.cancel()

	r.logger.Info().Msg("Module registry stopped")
	return nil
}

// GetModule returns a registered module by name
func (r *ModuleRegistry) GetModule(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	module, exists := r.modules[name]
	return module, exists
}

// ListModules returns all registered module names in registration order
func (r *ModuleRegistry) ListModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// GetModuleState returns the current state of a module
func (r *ModuleRegistry) GetModuleState(ctx context.Context, name string) (*ModuleState, error) {
	st, err := r.state.GetModuleState(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get module state for %s: %w", name, err)
	}
	return st, nil
}

// UpdateModuleBlock records the last processed block for every module
func (r *ModuleRegistry) UpdateModuleBlock(ctx context.Context, blockNumber uint64) error {
	for _, name := range r.ListModules() {
		if err := r.state.UpdateModuleBlock(ctx, name, blockNumber); err != nil {
			return fmt.Errorf("failed to update module block for %s: %w", name, err)
		}
	}
	return nil
}

func (r *ModuleRegistry) moduleStatus(name string) ModuleStatus {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	return r.statuses[name]
}

func (r *ModuleRegistry) setModuleStatus(ctx context.Context, name string, status ModuleStatus) {
	r.statusMu.Lock()
	r.statuses[name] = status
	r.statusMu.Unlock()

	if err := r.state.UpdateModuleStatus(ctx, name, status); err != nil {
		r.logger.Error().Err(err).Str("module", name).Str("status", string(status)).Msg("Failed to update module status")
	}
}

// RunBackfill replays archived events for a module and returns when done. The
// module is marked backfilling for the duration and error if the replay fails.
func (r *ModuleRegistry) RunBackfill(ctx context.Context, name string, fromBlock, toBlock uint64) error {
	module, exists := r.GetModule(name)
	if !exists {
		return fmt.Errorf("module %s not found", name)
	}

	if err := r.state.SetBackfillRange(ctx, name, &fromBlock, &toBlock); err != nil {
		return fmt.Errorf("failed to update module state for backfill: %w", err)
	}
	r.setModuleStatus(ctx, name, StatusBackfilling)

	r.logger.Info().
		Str("module", name).
		Uint64("from", fromBlock).
		Uint64("to", toBlock).
		Msg("Starting module backfill")

	start := time.Now()
	if err := module.Backfill(ctx, fromBlock, toBlock); err != nil {
		r.logger.Error().
			Err(err).
			Str("module", name).
			Dur("duration", time.Since(start)).
			Msg("Module backfill failed")

		r.setModuleStatus(ctx, name, StatusError)
		return err
	}

	r.logger.Info().
		Str("module", name).
		Uint64("blocks", toBlock-fromBlock+1).
		Dur("duration", time.Since(start)).
		Msg("Module backfill completed")

	r.setModuleStatus(ctx, name, StatusActive)
	if err := r.state.SetBackfillRange(ctx, name, nil, nil); err != nil {
		r.logger.Error().Err(err).Str("module", name).Msg("Failed to clear backfill range")
	}
	return nil
}
