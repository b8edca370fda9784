package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Subgraph  SubgraphConfig  `mapstructure:"subgraph"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type ChainConfig struct {
	Name        string        `mapstructure:"name"`
	ChainID     uint64        `mapstructure:"chain_id"`
	RPCEndpoint string        `mapstructure:"rpc_endpoint"`
	BlockTime   time.Duration `mapstructure:"block_time"`
	// StartBlock overrides the manifest start block when non-zero.
	StartBlock uint64 `mapstructure:"start_block"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type ProcessorConfig struct {
	// BatchSize is the number of blocks covered by one sync step.
	BatchSize uint64 `mapstructure:"batch_size"`
	// LogRange is the block span of a single eth_getLogs request.
	LogRange      uint64 `mapstructure:"log_range"`
	Workers       int    `mapstructure:"workers"`
	Confirmations uint64 `mapstructure:"confirmations"`
	// ArchiveEvents stores every routed log in event_logs for backfills.
	ArchiveEvents bool `mapstructure:"archive_events"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SubgraphConfig struct {
	ManifestDir   string `mapstructure:"manifest_dir"`
	Module        string `mapstructure:"module"`
	MinuteRollups bool   `mapstructure:"minute_rollups"`
}

type RealtimeConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Channel  string `mapstructure:"channel"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("chain.name", "mainnet")
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.block_time", "12s")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("processor.batch_size", 2000)
	v.SetDefault("processor.log_range", 500)
	v.SetDefault("processor.workers", 4)
	v.SetDefault("processor.confirmations", 5)
	v.SetDefault("processor.archive_events", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("subgraph.manifest_dir", "manifests")
	v.SetDefault("subgraph.module", "uniswap-v3")
	v.SetDefault("subgraph.minute_rollups", false)
	v.SetDefault("realtime.channel", "pools")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings the indexer cannot run without.
func (c *Config) Validate() error {
	if c.Chain.RPCEndpoint == "" {
		return errors.New("chain.rpc_endpoint is required")
	}
	if c.Processor.BatchSize == 0 || c.Processor.LogRange == 0 {
		return errors.New("processor.batch_size and processor.log_range must be positive")
	}
	if c.Processor.Workers < 1 {
		return fmt.Errorf("processor.workers must be at least 1, got %d", c.Processor.Workers)
	}
	if c.Realtime.Enabled && c.Realtime.Endpoint == "" {
		return errors.New("realtime.endpoint is required when realtime is enabled")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}
