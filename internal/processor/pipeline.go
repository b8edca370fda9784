package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/config"
	"github.com/ubeswap/v3-indexer/internal/modules/core"
	"github.com/ubeswap/v3-indexer/internal/modules/loader"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3"
	"github.com/ubeswap/v3-indexer/internal/store"
	"github.com/ubeswap/v3-indexer/internal/sync"
)

// Archive stores routed logs during sync and replays them for backfills.
type Archive interface {
	core.EventArchive
	sync.Archiver
}

// Deps are the stores and chain reader a pipeline runs on. Archive and
// Observer are optional.
type Deps struct {
	Backend  store.Backend
	State    core.StateStore
	Archive  Archive
	Chain    sync.ChainReader
	Observer sync.Observer
}

// Pipeline is the v3 module registered on a registry, fed by a sync manager.
type Pipeline struct {
	Registry *core.ModuleRegistry
	Module   *uniswapv3.UniswapV3Module
	Sync     *sync.Manager
}

// LoadManifest reads every manifest in the configured directory and returns
// the one named by the config.
func LoadManifest(cfg config.SubgraphConfig, logger zerolog.Logger) (*core.Manifest, error) {
	manifests, err := loader.NewManifestLoader(logger).LoadFromDirectory(cfg.ManifestDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifests: %w", err)
	}
	for _, m := range manifests {
		if m.Name == cfg.Module {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no manifest named %q in %s", cfg.Module, cfg.ManifestDir)
}

// NewPipeline builds and registers the module and positions the sync after the
// module's last processed block. opts are applied after the chain id and
// rollup settings taken from cfg.
func NewPipeline(ctx context.Context, cfg *config.Config, manifest *core.Manifest, deps Deps, logger zerolog.Logger, opts ...uniswapv3.Option) (*Pipeline, error) {
	moduleOpts := append([]uniswapv3.Option{
		uniswapv3.WithChainID(cfg.Chain.ChainID),
		uniswapv3.WithMinuteRollups(cfg.Subgraph.MinuteRollups),
	}, opts...)
	module, err := uniswapv3.NewUniswapV3Module(manifest, logger, moduleOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create module: %w", err)
	}

	var archive core.EventArchive
	if deps.Archive != nil {
		archive = deps.Archive
	}
	registry := core.NewModuleRegistry(deps.Backend, deps.State, archive, logger)
	if err := registry.RegisterModule(module); err != nil {
		return nil, err
	}

	state, err := registry.GetModuleState(ctx, module.Name())
	if err != nil {
		return nil, err
	}

	startBlock := module.GetStartBlock()
	if cfg.Chain.StartBlock > 0 {
		startBlock = cfg.Chain.StartBlock
	}

	var syncOpts []sync.Option
	if deps.Archive != nil && cfg.Processor.ArchiveEvents {
		syncOpts = append(syncOpts, sync.WithArchive(deps.Archive))
	}
	if deps.Observer != nil {
		syncOpts = append(syncOpts, sync.WithObserver(deps.Observer))
	}
	manager := sync.NewManager(deps.Chain, registry, sync.Config{
		BatchSize:     cfg.Processor.BatchSize,
		Confirmations: cfg.Processor.Confirmations,
		StartBlock:    startBlock,
		RetryDelay:    2 * time.Second,
	}, logger, syncOpts...)
	manager.Init(state.LastProcessedBlock)

	if err := registry.Start(); err != nil {
		return nil, err
	}

	return &Pipeline{
		Registry: registry,
		Module:   module,
		Sync:     manager,
	}, nil
}

// Close stops the registry, cancelling any running backfill.
func (p *Pipeline) Close() error {
	return p.Registry.Stop()
}
