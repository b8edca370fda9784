package uniswapv3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ubeswap/v3-indexer/internal/modules/core"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/calculator/liquiditymath"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/calculator/tickmath"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
	"github.com/ubeswap/v3-indexer/internal/prices"
	"github.com/ubeswap/v3-indexer/internal/store"
)

// PoolTemplate is the manifest template instantiated for every created pool.
const PoolTemplate = "Pool"

var (
	// ErrEntityNotFound marks an event whose required Pool, Token, Factory or
	// Bundle does not exist. Such events are skipped without writing anything.
	ErrEntityNotFound = store.ErrNotFound

	// ErrUnknownDecimals aborts pool creation when a token's decimals cannot
	// be read from the contract or the static definitions.
	ErrUnknownDecimals = errors.New("token decimals unknown")
)

// Skip reasons reported to the Observer.
const (
	SkipReplayed        = "replayed"
	SkipDecode          = "decode"
	SkipMissingEntity   = "missing_entity"
	SkipUnknownDecimals = "unknown_decimals"
	SkipLiquidityBounds = "liquidity_bounds"
	SkipInvalidTick     = "invalid_tick"
)

// Config is the module section of the manifest context.
type Config struct {
	WrappedNativeAddress               string                  `yaml:"wrappedNativeAddress"`
	StablecoinWrappedNativePoolAddress string                  `yaml:"stablecoinWrappedNativePoolAddress"`
	StablecoinIsToken0                 bool                    `yaml:"stablecoinIsToken0"`
	MinimumEthLocked                   string                  `yaml:"minimumEthLocked"`
	WhitelistTokens                    []string                `yaml:"whitelistTokens"`
	StablecoinAddresses                []string                `yaml:"stablecoinAddresses"`
	StaticTokenDefinitions             []StaticTokenDefinition `yaml:"staticTokenDefinitions"`
}

// Observer receives per-event outcomes, typically to feed metrics.
type Observer interface {
	EventProcessed(event string, duration time.Duration)
	EventSkipped(event, reason string)
}

// Notifier is told about pools written by a committed event.
type Notifier interface {
	PoolUpdated(ctx context.Context, pool *schema.Pool)
}

// EventHandler maps one decoded event onto the entities of its scope.
type EventHandler func(ctx context.Context, m *UniswapV3Module, sc *scope) error

// scope is everything a single handler invocation works with: the event and
// the unit of work its writes go to.
type scope struct {
	event    *core.ParsedEvent
	entities *schema.Entities
}

// UniswapV3Module implements the Module interface for Uniswap V3 indexing
type UniswapV3Module struct {
	manifest *core.Manifest
	config   Config
	logger   zerolog.Logger
	parser   *core.EventParser
	abis     map[string]*abi.ABI

	factoryAddress common.Address
	router         *prices.Router
	staticTokens   map[string]StaticTokenDefinition

	handlers map[common.Hash]EventHandler
	names    map[common.Hash]string

	backend     store.Backend
	state       core.StateStore
	archive     core.EventArchive
	dataSources core.DataSourceCreator

	fetcher       TokenMetadataFetcher
	chainID       uint64
	minuteRollups bool
	observer      Observer
	notifier      Notifier

	cursor    store.Cursor
	hasCursor bool
}

// Option configures optional collaborators.
type Option func(*UniswapV3Module)

// WithTokenFetcher sets how metadata of new tokens is read.
func WithTokenFetcher(f TokenMetadataFetcher) Option {
	return func(m *UniswapV3Module) { m.fetcher = f }
}

// WithChainID selects the built-in static token definitions.
func WithChainID(id uint64) Option {
	return func(m *UniswapV3Module) { m.chainID = id }
}

// WithMinuteRollups enables PoolMinuteData and TokenMinuteData.
func WithMinuteRollups(enabled bool) Option {
	return func(m *UniswapV3Module) { m.minuteRollups = enabled }
}

func WithObserver(o Observer) Option {
	return func(m *UniswapV3Module) { m.observer = o }
}

func WithNotifier(n Notifier) Option {
	return func(m *UniswapV3Module) { m.notifier = n }
}

// NewUniswapV3Module creates the module from its manifest
func NewUniswapV3Module(manifest *core.Manifest, logger zerolog.Logger, opts ...Option) (*UniswapV3Module, error) {
	var config Config
	if manifest.Context != nil {
		contextBytes, err := yaml.Marshal(manifest.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to encode v3 module context: %w", err)
		}
		if err := yaml.Unmarshal(contextBytes, &config); err != nil {
			return nil, fmt.Errorf("failed to parse v3 module config: %w", err)
		}
	}
	if !common.IsHexAddress(config.WrappedNativeAddress) {
		return nil, fmt.Errorf("wrappedNativeAddress %q is not an address", config.WrappedNativeAddress)
	}
	if !common.IsHexAddress(config.StablecoinWrappedNativePoolAddress) {
		return nil, fmt.Errorf("stablecoinWrappedNativePoolAddress %q is not an address", config.StablecoinWrappedNativePoolAddress)
	}

	minimumEthLocked := decimal.Zero
	if config.MinimumEthLocked != "" {
		var err error
		minimumEthLocked, err = decimal.NewFromString(config.MinimumEthLocked)
		if err != nil {
			return nil, fmt.Errorf("invalid minimumEthLocked: %w", err)
		}
	}

	abis, err := parseABIs()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize v3 ABIs: %w", err)
	}

	m := &UniswapV3Module{
		manifest: manifest,
		config:   config,
		logger:   logger.With().Str("module", "uniswap-v3").Logger(),
		parser:   core.NewEventParser(),
		abis:     abis,
		router: prices.NewRouter(prices.Config{
			WrappedNative:      config.WrappedNativeAddress,
			StablecoinPool:     config.StablecoinWrappedNativePoolAddress,
			StablecoinIsToken0: config.StablecoinIsToken0,
			Whitelist:          config.WhitelistTokens,
			Stablecoins:        config.StablecoinAddresses,
			MinimumEthLocked:   minimumEthLocked,
		}),
		handlers: make(map[common.Hash]EventHandler),
		names:    make(map[common.Hash]string),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.staticTokens = staticTokens(m.chainID, config.StaticTokenDefinitions)

	m.parser.AddABI(abis[FactoryABIName])
	m.parser.AddABI(abis[PoolABIName])

	if err := m.registerEventHandlers(); err != nil {
		return nil, fmt.Errorf("failed to register v3 handlers: %w", err)
	}

	return m, nil
}

// Name returns the module name
func (m *UniswapV3Module) Name() string { return m.manifest.Name }

// Version returns the module version
func (m *UniswapV3Module) Version() string { return m.manifest.Version }

// Manifest returns the module manifest
func (m *UniswapV3Module) Manifest() *core.Manifest { return m.manifest }

// Router exposes the pricing configuration, used by the API.
func (m *UniswapV3Module) Router() *prices.Router { return m.router }

// FactoryID is the entity id of the indexed factory.
func (m *UniswapV3Module) FactoryID() string { return schema.ID(m.factoryAddress) }

// Initialize wires the module to its store and re-creates the pool data
// sources of pools indexed in earlier runs.
func (m *UniswapV3Module) Initialize(ctx context.Context, env core.Environment) error {
	m.backend = env.Store
	m.state = env.State
	m.archive = env.Archive
	m.dataSources = env.DataSources

	cursor, err := m.backend.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store cursor: %w", err)
	}
	m.cursor = cursor
	m.hasCursor = cursor != (store.Cursor{})

	pools, err := m.backend.IDs(ctx, schema.KindPool)
	if err != nil {
		return fmt.Errorf("failed to list pools: %w", err)
	}
	if m.dataSources != nil {
		for _, id := range pools {
			m.dataSources.CreateDataSource(PoolTemplate, common.HexToAddress(id))
		}
	}

	m.logger.Info().
		Str("factory", m.factoryAddress.Hex()).
		Int("pools", len(pools)).
		Uint64("cursor_block", cursor.Block).
		Uint("cursor_log", cursor.LogIndex).
		Msg("UniswapV3 module initialized")
	return nil
}

// HandleEvent decodes one log, runs its handler in a fresh session and commits
// the session at the log's position. Events whose effects cannot be applied
// under the skip policy are dropped and logged; only infrastructure failures
// are returned.
func (m *UniswapV3Module) HandleEvent(ctx context.Context, ev *core.Event) error {
	log := &ev.Log
	if len(log.Topics) == 0 {
		return nil
	}
	topic := log.Topics[0]
	handler, exists := m.handlers[topic]
	if !exists {
		return nil
	}
	name := m.names[topic]

	cursor := store.Cursor{Block: log.BlockNumber, LogIndex: log.Index}
	if m.hasCursor && !cursor.After(m.cursor) {
		m.logger.Debug().
			Str("event", name).
			Uint64("block", log.BlockNumber).
			Uint("log_index", log.Index).
			Msg("Skipping event at or before the store cursor")
		m.observer.EventSkipped(name, SkipReplayed)
		return nil
	}

	parsed, err := m.parser.ParseEvent(ev)
	if err != nil {
		m.logger.Warn().Err(err).Str("event", name).Str("address", log.Address.Hex()).Uint64("block", log.BlockNumber).Msg("V3: failed to parse event")
		m.observer.EventSkipped(name, SkipDecode)
		return nil
	}

	start := time.Now()
	session := store.NewSession(m.backend, cursor)
	sc := &scope{event: parsed, entities: schema.New(session)}

	if err := handler(ctx, m, sc); err != nil {
		session.Discard()
		if reason, ok := skipReason(err); ok {
			evt := m.logger.Warn()
			if reason == SkipLiquidityBounds {
				evt = m.logger.Error()
			}
			evt.Err(err).
				Str("event", name).
				Str("reason", reason).
				Str("address", log.Address.Hex()).
				Uint64("block", log.BlockNumber).
				Str("tx_hash", log.TxHash.Hex()).
				Msg("V3: event skipped")
			m.observer.EventSkipped(name, reason)
			return nil
		}
		return fmt.Errorf("failed to handle %s at block %d: %w", name, log.BlockNumber, err)
	}

	if err := session.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s at block %d: %w", name, log.BlockNumber, err)
	}
	m.cursor = cursor
	m.hasCursor = true
	m.observer.EventProcessed(name, time.Since(start))

	if m.notifier != nil {
		for _, id := range session.Written(schema.KindPool) {
			if pool, err := sc.entities.Pool(ctx, id); err == nil {
				m.notifier.PoolUpdated(ctx, pool)
			}
		}
	}
	return nil
}

// skipReason classifies errors that drop an event instead of failing the sync.
func skipReason(err error) (string, bool) {
	var missingArg core.ErrMissingArg
	switch {
	case errors.Is(err, ErrUnknownDecimals):
		return SkipUnknownDecimals, true
	case errors.Is(err, ErrEntityNotFound):
		return SkipMissingEntity, true
	case errors.Is(err, liquiditymath.ErrLiquidityUnderflow), errors.Is(err, liquiditymath.ErrLiquidityOverflow):
		return SkipLiquidityBounds, true
	case errors.Is(err, tickmath.ErrTickOutOfBounds):
		return SkipInvalidTick, true
	case errors.As(err, &missingArg):
		return SkipDecode, true
	}
	return "", false
}

// GetEventFilters returns the event filters this module is interested in
func (m *UniswapV3Module) GetEventFilters() []core.EventFilter {
	var filters []core.EventFilter
	for _, ds := range m.manifest.DataSources {
		for _, h := range ds.Mapping.EventHandlers {
			topic, ok := m.topicFor(ds.Source.ABI, h.Event)
			if !ok {
				continue
			}
			filters = append(filters, core.EventFilter{Address: *ds.Source.Address, Topic0: topic.Hex()})
		}
	}
	for _, ds := range m.manifest.Templates {
		for _, h := range ds.Mapping.EventHandlers {
			topic, ok := m.topicFor(ds.Source.ABI, h.Event)
			if !ok {
				continue
			}
			filters = append(filters, core.EventFilter{Topic0: topic.Hex(), Template: ds.Name})
		}
	}
	return filters
}

// Topics returns every topic0 the module handles.
func (m *UniswapV3Module) Topics() []common.Hash {
	topics := make([]common.Hash, 0, len(m.handlers))
	for _, f := range m.GetEventFilters() {
		topics = append(topics, common.HexToHash(f.Topic0))
	}
	return topics
}

// GetStartBlock returns the block number to start indexing from
func (m *UniswapV3Module) GetStartBlock() uint64 {
	if len(m.manifest.DataSources) > 0 && m.manifest.DataSources[0].Source.StartBlock != nil {
		return *m.manifest.DataSources[0].Source.StartBlock
	}
	return 0
}

// Backfill replays archived events through the same handlers. Events already
// behind the store cursor are skipped, so overlapping ranges are harmless.
func (m *UniswapV3Module) Backfill(ctx context.Context, fromBlock, toBlock uint64) error {
	if m.archive == nil {
		return errors.New("no event archive configured")
	}
	m.logger.Info().Uint64("from", fromBlock).Uint64("to", toBlock).Msg("Starting UniswapV3 backfill")

	processed := 0
	err := m.archive.StreamEvents(ctx, fromBlock, toBlock, m.Topics(), func(ev *core.Event) error {
		if err := m.HandleEvent(ctx, ev); err != nil {
			return err
		}
		processed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("v3 backfill failed after %d events: %w", processed, err)
	}

	m.logger.Info().Uint64("from", fromBlock).Uint64("to", toBlock).Int("processed", processed).Msg("Completed UniswapV3 backfill")
	return nil
}

// GetSyncState returns the last processed block for this module
func (m *UniswapV3Module) GetSyncState(ctx context.Context) (uint64, error) {
	st, err := m.state.GetModuleState(ctx, m.Name())
	if err != nil {
		return 0, fmt.Errorf("failed to get v3 sync state: %w", err)
	}
	return st.LastProcessedBlock, nil
}

// UpdateSyncState updates the last processed block for this module
func (m *UniswapV3Module) UpdateSyncState(ctx context.Context, blockNumber uint64) error {
	return m.state.UpdateModuleBlock(ctx, m.Name(), blockNumber)
}

// topicFor resolves a manifest event signature against the named ABI.
func (m *UniswapV3Module) topicFor(abiName, signature string) (common.Hash, bool) {
	contractABI, ok := m.abis[abiName]
	if !ok {
		return common.Hash{}, false
	}
	sig := core.NormalizeEventSignature(signature)
	for _, ev := range contractABI.Events {
		if ev.Sig == sig {
			return ev.ID, true
		}
	}
	return common.Hash{}, false
}

type nopObserver struct{}

func (nopObserver) EventProcessed(string, time.Duration) {}
func (nopObserver) EventSkipped(string, string)          {}
