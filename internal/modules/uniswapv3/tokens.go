package uniswapv3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3/schema"
	"github.com/ubeswap/v3-indexer/internal/store"
)

const unknownTokenField = "unknown"

// TokenMetadata is what could be read from a token contract. Empty strings and
// nil pointers mark values the contract did not return.
type TokenMetadata struct {
	Name        string
	Symbol      string
	Decimals    *uint8
	TotalSupply *big.Int
}

// TokenMetadataFetcher reads ERC-20 metadata. An error means the node could not
// be reached; calls the contract rejects come back as empty fields instead.
type TokenMetadataFetcher interface {
	FetchTokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error)
}

// StaticTokenDefinition supplies metadata for tokens whose contracts do not
// answer the standard calls.
type StaticTokenDefinition struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// builtinStaticTokens holds known nonstandard tokens per chain ID.
var builtinStaticTokens = map[uint64][]StaticTokenDefinition{
	1: {
		{Address: "0xe0b7927c4af23765cb51314a0e0521a9645f0e2a", Symbol: "DGD", Name: "DGD", Decimals: 9},
		{Address: "0x7fc66500c84a76ad7e9c93437bfc5ac33e2ddae9", Symbol: "AAVE", Name: "Aave Token", Decimals: 18},
		{Address: "0xeb9951021698b42e4399f9cbb6267aa35f82d59d", Symbol: "LIF", Name: "Lif", Decimals: 18},
		{Address: "0xbdeb4b83251fb146687fa19d1c660f99411eefe3", Symbol: "SVD", Name: "savedroid", Decimals: 18},
		{Address: "0xbb9bc244d798123fde783fcc1c72d3bb8c189413", Symbol: "TheDAO", Name: "TheDAO", Decimals: 16},
		{Address: "0x38c6a68304cdefb9bec48bbfaaba5c5b47818bb2", Symbol: "HPB", Name: "HPBCoin", Decimals: 18},
	},
}

// staticTokens indexes the built-in definitions for chainID, extended and
// overridden by extra.
func staticTokens(chainID uint64, extra []StaticTokenDefinition) map[string]StaticTokenDefinition {
	defs := make(map[string]StaticTokenDefinition)
	for _, d := range builtinStaticTokens[chainID] {
		defs[strings.ToLower(d.Address)] = d
	}
	for _, d := range extra {
		defs[strings.ToLower(d.Address)] = d
	}
	return defs
}

// ERC20Fetcher reads token metadata through contract calls.
type ERC20Fetcher struct {
	backend bind.ContractBackend
	abi     abi.ABI
	logger  zerolog.Logger
}

// NewERC20Fetcher creates a fetcher calling through backend.
func NewERC20Fetcher(backend bind.ContractBackend, logger zerolog.Logger) (*ERC20Fetcher, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	return &ERC20Fetcher{
		backend: backend,
		abi:     parsed,
		logger:  logger.With().Str("component", "erc20_fetcher").Logger(),
	}, nil
}

// FetchTokenMetadata calls name, symbol, decimals and totalSupply, falling
// back to the bytes32 NAME and SYMBOL getters.
func (f *ERC20Fetcher) FetchTokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error) {
	contract := bind.NewBoundContract(token, f.abi, f.backend, f.backend, f.backend)
	opts := &bind.CallOpts{Context: ctx}
	meta := &TokenMetadata{}

	call := func(method string, out interface{}) (bool, error) {
		results := []interface{}{out}
		err := contract.Call(opts, &results, method)
		if err == nil {
			return true, nil
		}
		if isContractFailure(err) {
			f.logger.Debug().Err(err).Str("token", token.Hex()).Str("method", method).Msg("Token call reverted")
			return false, nil
		}
		return false, fmt.Errorf("failed to call %s on %s: %w", method, token.Hex(), err)
	}

	name := new(string)
	if ok, err := call("name", name); err != nil {
		return nil, err
	} else if ok {
		meta.Name = *name
	}
	if meta.Name == "" {
		b32 := new([32]byte)
		if ok, err := call("NAME", b32); err != nil {
			return nil, err
		} else if ok {
			meta.Name = bytes32String(*b32)
		}
	}

	symbol := new(string)
	if ok, err := call("symbol", symbol); err != nil {
		return nil, err
	} else if ok {
		meta.Symbol = *symbol
	}
	if meta.Symbol == "" {
		b32 := new([32]byte)
		if ok, err := call("SYMBOL", b32); err != nil {
			return nil, err
		} else if ok {
			meta.Symbol = bytes32String(*b32)
		}
	}

	decimals := new(uint8)
	if ok, err := call("decimals", decimals); err != nil {
		return nil, err
	} else if ok {
		meta.Decimals = decimals
	}

	supply := new(*big.Int)
	if ok, err := call("totalSupply", supply); err != nil {
		return nil, err
	} else if ok {
		meta.TotalSupply = *supply
	}

	return meta, nil
}

// revertErrorCode is the JSON-RPC code nodes attach to execution reverts.
const revertErrorCode = 3

// isContractFailure tells a call the contract rejected (revert, missing
// method, undecodable return) from a node or transport failure. Only the
// former may fall back to static metadata; anything else is retried.
func isContractFailure(err error) bool {
	if errors.Is(err, bind.ErrNoCode) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return true
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "abi:") || strings.Contains(msg, "execution reverted")
}

func bytes32String(b [32]byte) string {
	return strings.TrimRight(string(b[:]), "\x00")
}

// bootstrapToken loads a token, creating it from on-chain metadata when it
// has never been seen. Unknown decimals abort with ErrUnknownDecimals.
func (m *UniswapV3Module) bootstrapToken(ctx context.Context, e *schema.Entities, address common.Address) (*schema.Token, error) {
	id := schema.ID(address)
	token, err := e.Token(ctx, id)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	meta := &TokenMetadata{}
	if m.fetcher != nil {
		meta, err = m.fetcher.FetchTokenMetadata(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch metadata of token %s: %w", id, err)
		}
	}

	static, hasStatic := m.staticTokens[id]
	if meta.Symbol == "" {
		meta.Symbol = unknownTokenField
		if hasStatic {
			meta.Symbol = static.Symbol
		}
	}
	if meta.Name == "" {
		meta.Name = unknownTokenField
		if hasStatic {
			meta.Name = static.Name
		}
	}
	if meta.Decimals == nil && hasStatic {
		decimals := static.Decimals
		meta.Decimals = &decimals
	}
	if meta.Decimals == nil {
		return nil, fmt.Errorf("%w: token %s", ErrUnknownDecimals, id)
	}

	token = schema.NewToken(id, meta.Symbol, meta.Name, *meta.Decimals, meta.TotalSupply)
	e.PutToken(token)

	m.logger.Info().
		Str("token", id).
		Str("symbol", token.Symbol).
		Uint8("decimals", token.Decimals).
		Msg("Token created")
	return token, nil
}
