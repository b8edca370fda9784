package uniswapv3

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI names as referenced by manifest data sources.
const (
	FactoryABIName = "Factory"
	PoolABIName    = "Pool"
	ERC20ABIName   = "ERC20"
)

// parseABIs parses every ABI the module decodes with, keyed by manifest name.
func parseABIs() (map[string]*abi.ABI, error) {
	sources := map[string]string{
		FactoryABIName: UniswapV3FactoryABI,
		PoolABIName:    UniswapV3PoolABI,
		ERC20ABIName:   ERC20ABI,
	}
	abis := make(map[string]*abi.ABI, len(sources))
	for name, src := range sources {
		parsed, err := abi.JSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s ABI: %w", name, err)
		}
		abis[name] = &parsed
	}
	return abis, nil
}

// Event-only ABIs of the factory and pool contracts

const UniswapV3FactoryABI = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "token0",      "type": "address"},
      {"indexed": true,  "internalType": "address", "name": "token1",      "type": "address"},
      {"indexed": true,  "internalType": "uint24",  "name": "fee",         "type": "uint24"},
      {"indexed": false, "internalType": "int24",   "name": "tickSpacing", "type": "int24"},
      {"indexed": false, "internalType": "address", "name": "pool",        "type": "address"}
    ],
    "name": "PoolCreated",
    "type": "event"
  }
]`

const UniswapV3PoolABI = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"indexed": false, "internalType": "int24",  "name": "tick",          "type": "int24"}
    ],
    "name": "Initialize",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "sender",      "type": "address"},
      {"indexed": true,  "internalType": "address", "name": "recipient",   "type": "address"},
      {"indexed": false, "internalType": "int256",  "name": "amount0",     "type": "int256"},
      {"indexed": false, "internalType": "int256",  "name": "amount1",     "type": "int256"},
      {"indexed": false, "internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"indexed": false, "internalType": "uint128", "name": "liquidity",    "type": "uint128"},
      {"indexed": false, "internalType": "int24",   "name": "tick",         "type": "int24"}
    ],
    "name": "Swap",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "sender",     "type": "address"},
      {"indexed": true,  "internalType": "address", "name": "owner",      "type": "address"},
      {"indexed": true,  "internalType": "int24",   "name": "tickLower",  "type": "int24"},
      {"indexed": true,  "internalType": "int24",   "name": "tickUpper",  "type": "int24"},
      {"indexed": false, "internalType": "uint128", "name": "amount",     "type": "uint128"},
      {"indexed": false, "internalType": "uint256", "name": "amount0",    "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1",    "type": "uint256"}
    ],
    "name": "Mint",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "owner",      "type": "address"},
      {"indexed": true,  "internalType": "int24",   "name": "tickLower",  "type": "int24"},
      {"indexed": true,  "internalType": "int24",   "name": "tickUpper",  "type": "int24"},
      {"indexed": false, "internalType": "uint128", "name": "amount",     "type": "uint128"},
      {"indexed": false, "internalType": "uint256", "name": "amount0",    "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1",    "type": "uint256"}
    ],
    "name": "Burn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "owner",      "type": "address"},
      {"indexed": false, "internalType": "address", "name": "recipient",  "type": "address"},
      {"indexed": true,  "internalType": "int24",   "name": "tickLower",  "type": "int24"},
      {"indexed": true,  "internalType": "int24",   "name": "tickUpper",  "type": "int24"},
      {"indexed": false, "internalType": "uint128", "name": "amount0",    "type": "uint128"},
      {"indexed": false, "internalType": "uint128", "name": "amount1",    "type": "uint128"}
    ],
    "name": "Collect",
    "type": "event"
  }
]`

// ERC20ABI covers the metadata calls made when a token is first seen,
// including the bytes32 variants some early tokens expose.
const ERC20ABI = `[
  {"constant": true, "inputs": [], "name": "name",        "outputs": [{"name": "", "type": "string"}],  "type": "function"},
  {"constant": true, "inputs": [], "name": "symbol",      "outputs": [{"name": "", "type": "string"}],  "type": "function"},
  {"constant": true, "inputs": [], "name": "decimals",    "outputs": [{"name": "", "type": "uint8"}],   "type": "function"},
  {"constant": true, "inputs": [], "name": "totalSupply", "outputs": [{"name": "", "type": "uint256"}], "type": "function"},
  {"constant": true, "inputs": [], "name": "NAME",        "outputs": [{"name": "", "type": "bytes32"}], "type": "function"},
  {"constant": true, "inputs": [], "name": "SYMBOL",      "outputs": [{"name": "", "type": "bytes32"}], "type": "function"}
]`
