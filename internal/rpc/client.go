package rpc

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

// Options tune how logs are fetched.
type Options struct {
	// LogRange is the block span of one eth_getLogs request.
	LogRange uint64
	// Workers bounds the concurrent requests of one fetch.
	Workers int
	// BatchSize bounds the calls sent in one JSON-RPC batch.
	BatchSize int
}

func (o *Options) applyDefaults() {
	if o.LogRange == 0 {
		o.LogRange = 500
	}
	if o.Workers < 1 {
		o.Workers = 4
	}
	if o.BatchSize < 1 {
		o.BatchSize = 100
	}
}

// Client wraps an Ethereum client and its raw RPC connection.
type Client struct {
	eth      *ethclient.Client
	raw      *rpc.Client
	endpoint string
	chainID  *big.Int
	opts     Options
	logger   zerolog.Logger
}

// NewClient creates a new RPC client. A chain ID mismatch is logged, not fatal.
func NewClient(ctx context.Context, endpoint string, chainID uint64, opts Options, logger zerolog.Logger) (*Client, error) {
	httpClient := &http.Client{
		Timeout: defaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	rawClient, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	opts.applyDefaults()
	c := &Client{
		eth:      ethclient.NewClient(rawClient),
		raw:      rawClient,
		endpoint: endpoint,
		chainID:  new(big.Int).SetUint64(chainID),
		opts:     opts,
		logger:   logger.With().Str("component", "rpc").Logger(),
	}

	verifyCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	networkID, err := c.eth.ChainID(verifyCtx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to verify chain ID, continuing anyway")
	} else if networkID.Uint64() != chainID {
		c.logger.Warn().
			Uint64("expected", chainID).
			Uint64("got", networkID.Uint64()).
			Msg("Chain ID mismatch, continuing anyway")
	}

	c.logger.Info().
		Str("endpoint", endpoint).
		Uint64("chain_id", chainID).
		Uint64("log_range", opts.LogRange).
		Int("workers", opts.Workers).
		Msg("Connected to RPC endpoint")

	return c, nil
}

// Close closes the RPC client connection
func (c *Client) Close() {
	c.eth.Close()
	c.logger.Info().Msg("RPC client connection closed")
}

// Eth exposes the underlying client, which also serves as a contract backend.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

func (c *Client) ChainID() uint64 {
	return c.chainID.Uint64()
}

// GetEndpoint returns the RPC endpoint URL
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

// GetLatestBlockNumber returns the latest block number
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return blockNumber, nil
}

// IsConnected checks if the client is connected to the RPC endpoint
func (c *Client) IsConnected(ctx context.Context) bool {
	_, err := c.eth.BlockNumber(ctx)
	return err == nil
}

// Retry wraps a function with retry logic
func (c *Client) Retry(ctx context.Context, fn func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}

		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * time.Second
			c.logger.Warn().
				Err(err).
				Int("attempt", i+1).
				Dur("wait", waitTime).
				Msg("Retrying RPC call")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
				continue
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", err)
}

// withTimeout adds the default timeout when ctx has no deadline.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}
