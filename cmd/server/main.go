package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/api"
	"github.com/ubeswap/v3-indexer/internal/config"
	"github.com/ubeswap/v3-indexer/internal/database"
	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3"
	"github.com/ubeswap/v3-indexer/internal/processor"
)

func main() {
	var configPath string
	var role string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&role, "role", "api", "Role to run: api | worker | both")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger()
	logger.Info().Str("version", "0.1.0").Str("config", configPath).Str("role", role).Msg("Starting Ubeswap V3 server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch role {
	case "api":
		startAPI(ctx, cfg, logger)
	case "worker":
		startWorker(ctx, cfg, logger)
	case "both":
		go startWorker(ctx, cfg, logger)
		startAPI(ctx, cfg, logger)
	default:
		logger.Fatal().Str("role", role).Msg("invalid role, use api|worker|both")
	}
}

func startAPI(ctx context.Context, cfg *config.Config, logger zerolog.Logger) {
	manifest, err := processor.LoadManifest(cfg.Subgraph, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load manifest")
	}
	module, err := uniswapv3.NewUniswapV3Module(manifest, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid manifest")
	}

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect database")
	}
	defer db.Close()

	s := api.NewAPIServer(database.NewEntityStore(db), module.FactoryID(), module.Router(), logger)
	if err := s.Start(ctx, fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		logger.Fatal().Err(err).Msg("API server failed")
	}
}

func startWorker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) {
	indexer, err := processor.NewIndexer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create indexer")
	}
	if err := indexer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Indexer failed")
	}
}
