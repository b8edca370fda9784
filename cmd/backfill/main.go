package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/config"
	"github.com/ubeswap/v3-indexer/internal/database"
	"github.com/ubeswap/v3-indexer/internal/modules/core"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
	"github.com/ubeswap/v3-indexer/internal/processor"
	"github.com/ubeswap/v3-indexer/internal/rpc"
	"github.com/ubeswap/v3-indexer/internal/store"
	"github.com/ubeswap/v3-indexer/internal/store/memory"
)

// backfill replays archived event logs through the v3 mappers. With -dry-run
// the entities are rebuilt in memory and only summarised, leaving Postgres
// untouched apart from the reads.
func main() {
	var (
		configPath string
		fromBlock  uint64
		toBlock    uint64
		dryRun     bool
	)

	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Uint64Var(&fromBlock, "from", 0, "Starting block (default: module start block)")
	flag.Uint64Var(&toBlock, "to", 0, "Ending block (default: latest archived block)")
	flag.BoolVar(&dryRun, "dry-run", false, "Replay into an in-memory store and print a summary")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logging.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fromBlock, toBlock, dryRun, logger); err != nil {
		logger.Fatal().Err(err).Msg("Backfill failed")
	}
}

func run(ctx context.Context, cfg *config.Config, fromBlock, toBlock uint64, dryRun bool, logger zerolog.Logger) error {
	if _, err := database.RunMigrations(ctx, cfg.Database.ConnectionString(), logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	rpcClient, err := rpc.NewClient(ctx, cfg.Chain.RPCEndpoint, cfg.Chain.ChainID, rpc.Options{
		LogRange: cfg.Processor.LogRange,
		Workers:  cfg.Processor.Workers,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer rpcClient.Close()

	manifest, err := processor.LoadManifest(cfg.Subgraph, logger)
	if err != nil {
		return err
	}
	fetcher, err := uniswapv3.NewERC20Fetcher(rpcClient.Eth(), logger)
	if err != nil {
		return err
	}

	archive := database.NewEventArchive(db)
	deps := processor.Deps{
		Backend: database.NewEntityStore(db),
		State:   database.NewModuleStateStore(db),
		Archive: archive,
		Chain:   rpcClient,
	}
	if dryRun {
		deps.Backend = memory.New()
		deps.State = core.NewMemoryStateStore()
	}

	pipeline, err := processor.NewPipeline(ctx, cfg, manifest, deps, logger, uniswapv3.WithTokenFetcher(fetcher))
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if fromBlock == 0 {
		fromBlock = pipeline.Module.GetStartBlock()
	}
	if toBlock == 0 {
		toBlock, err = archive.LatestBlock(ctx)
		if err != nil {
			return err
		}
	}
	if toBlock < fromBlock {
		return fmt.Errorf("nothing archived between %d and %d", fromBlock, toBlock)
	}

	logger.Info().
		Str("module", manifest.Name).
		Uint64("from", fromBlock).
		Uint64("to", toBlock).
		Bool("dry_run", dryRun).
		Msg("Starting backfill")

	if err := pipeline.Registry.RunBackfill(ctx, manifest.Name, fromBlock, toBlock); err != nil {
		return err
	}
	return summarise(ctx, deps.Backend, logger)
}

func summarise(ctx context.Context, backend store.Backend, logger zerolog.Logger) error {
	event := logger.Info()
	for _, kind := range []string{schema.KindPool, schema.KindToken, schema.KindPosition, schema.KindSwap, schema.KindTransaction} {
		n, err := backend.Count(ctx, kind, nil)
		if err != nil {
			return err
		}
		event = event.Int(kind, n)
	}
	cursor, err := backend.Cursor(ctx)
	if err != nil {
		return err
	}
	event.Uint64("cursor_block", cursor.Block).Uint("cursor_log", cursor.LogIndex).Msg("Backfill completed")
	return nil
}
