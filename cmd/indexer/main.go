package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ubeswap/v3-indexer/internal/config"
	"github.com/ubeswap/v3-indexer/internal/processor"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger()
	logger.Info().
		Str("version", "0.1.0").
		Str("config", configPath).
		Msg("Starting Ubeswap V3 indexer")

	ctx := context.Background()
	indexer, err := processor.NewIndexer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create indexer")
	}

	// blocks until shutdown
	if err := indexer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Indexer failed")
	}

	logger.Info().Msg("Indexer shutdown complete")
}
