package processor

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ubeswap/v3-indexer/internal/api"
	"github.com/ubeswap/v3-indexer/internal/config"
	"github.com/ubeswap/v3-indexer/internal/database"
	"github.com/ubeswap/v3-indexer/internal/metrics"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3"
	"github.com/ubeswap/v3-indexer/internal/realtime"
	"github.com/ubeswap/v3-indexer/internal/rpc"
	"github.com/ubeswap/v3-indexer/internal/scheduler"
)

// maxBehind is the sync lag past which /health reports degraded.
const maxBehind = 100

// Indexer wires the Postgres stores, the node client and the v3 pipeline, and
// drives the sync from a scheduler.
type Indexer struct {
	config    *config.Config
	db        *database.Database
	rpcClient *rpc.Client
	metrics   *metrics.Metrics
	publisher *realtime.Publisher

	pipeline  *Pipeline
	scheduler *scheduler.SyncScheduler
	health    *api.HealthServer

	logger zerolog.Logger
}

// NewIndexer migrates the database, connects to it and to the node, and
// registers the module. Nothing runs until Start.
func NewIndexer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Indexer, error) {
	applied, err := database.RunMigrations(ctx, cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info().Strs("versions", applied).Msg("Applied migrations")
	}

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rpcClient, err := rpc.NewClient(ctx, cfg.Chain.RPCEndpoint, cfg.Chain.ChainID, rpc.Options{
		LogRange: cfg.Processor.LogRange,
		Workers:  cfg.Processor.Workers,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	i := &Indexer{
		config:    cfg,
		db:        db,
		rpcClient: rpcClient,
		metrics:   metrics.New("", nil),
		logger:    logger,
	}
	if err := i.build(ctx); err != nil {
		i.close()
		return nil, err
	}
	return i, nil
}

func (i *Indexer) build(ctx context.Context) error {
	cfg := i.config

	manifest, err := LoadManifest(cfg.Subgraph, i.logger)
	if err != nil {
		return err
	}

	fetcher, err := uniswapv3.NewERC20Fetcher(i.rpcClient.Eth(), i.logger)
	if err != nil {
		return fmt.Errorf("failed to create token fetcher: %w", err)
	}
	opts := []uniswapv3.Option{
		uniswapv3.WithTokenFetcher(fetcher),
		uniswapv3.WithObserver(i.metrics),
	}
	if cfg.Realtime.Enabled {
		i.publisher = realtime.NewPublisher(realtime.PublishConfig{
			APIURL:  cfg.Realtime.Endpoint,
			APIKey:  cfg.Realtime.APIKey,
			Channel: cfg.Realtime.Channel,
		}, i.logger, i.metrics)
		opts = append(opts, uniswapv3.WithNotifier(i.publisher))
	}

	deps := Deps{
		Backend:  database.NewEntityStore(i.db),
		State:    database.NewModuleStateStore(i.db),
		Archive:  database.NewEventArchive(i.db),
		Chain:    i.rpcClient,
		Observer: i.metrics,
	}
	i.pipeline, err = NewPipeline(ctx, cfg, manifest, deps, i.logger, opts...)
	if err != nil {
		return err
	}

	i.scheduler, err = scheduler.NewSyncScheduler(i.pipeline.Sync, cfg.Chain.BlockTime, i.logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	i.health = api.NewHealthServer(i.db, i.rpcClient, i.pipeline.Sync, i.metrics.Handler(), maxBehind, i.logger)
	return nil
}

// Start runs until ctx is cancelled or the process receives SIGINT or SIGTERM.
func (i *Indexer) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	i.logger.Info().
		Str("module", i.pipeline.Module.Name()).
		Uint64("chain_id", i.config.Chain.ChainID).
		Uint64("from_block", i.pipeline.Sync.LastSyncedBlock()+1).
		Msg("Starting indexer")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return i.health.Start(gctx, ":"+strconv.Itoa(i.config.Server.MetricsPort))
	})
	g.Go(func() error {
		if err := i.scheduler.Start(gctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	i.Stop()
	return err
}

// Stop shuts the scheduler down and releases every connection.
func (i *Indexer) Stop() {
	i.logger.Info().Msg("Stopping indexer")
	if i.scheduler != nil {
		i.scheduler.Stop()
	}
	i.close()
	i.logger.Info().Msg("Indexer stopped")
}

func (i *Indexer) close() {
	if i.pipeline != nil {
		if err := i.pipeline.Close(); err != nil {
			i.logger.Error().Err(err).Msg("Failed to stop module registry")
		}
	}
	if i.publisher != nil {
		if err := i.publisher.Close(); err != nil {
			i.logger.Error().Err(err).Msg("Failed to close publisher")
		}
	}
	i.rpcClient.Close()
	i.db.Close()
}
