// Package schema defines the entities produced by the Uniswap V3 mappers.
// JSON field names follow the subgraph schema so stored documents and API
// payloads read the same as subgraph query results.
package schema

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Entity kinds as stored in the backend.
const (
	KindFactory          = "Factory"
	KindBundle           = "Bundle"
	KindToken            = "Token"
	KindPool             = "Pool"
	KindTick             = "Tick"
	KindPosition         = "Position"
	KindPositionSnapshot = "PositionSnapshot"
	KindTransaction      = "Transaction"
	KindMint             = "Mint"
	KindBurn             = "Burn"
	KindSwap             = "Swap"
	KindCollect          = "Collect"
	KindUniswapDayData   = "UniswapDayData"
	KindPoolDayData      = "PoolDayData"
	KindPoolHourData     = "PoolHourData"
	KindPoolMinuteData   = "PoolMinuteData"
	KindTokenDayData     = "TokenDayData"
	KindTokenHourData    = "TokenHourData"
	KindTokenMinuteData  = "TokenMinuteData"
)

// BundleID is the id of the singleton Bundle.
const BundleID = "1"

// ID renders an address the way entity ids are keyed: lower-case hex.
func ID(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

type Factory struct {
	ID                           string          `json:"id"`
	PoolCount                    uint64          `json:"poolCount"`
	TxCount                      uint64          `json:"txCount"`
	TotalVolumeUSD               decimal.Decimal `json:"totalVolumeUSD"`
	TotalVolumeETH               decimal.Decimal `json:"totalVolumeETH"`
	TotalFeesUSD                 decimal.Decimal `json:"totalFeesUSD"`
	TotalFeesETH                 decimal.Decimal `json:"totalFeesETH"`
	UntrackedVolumeUSD           decimal.Decimal `json:"untrackedVolumeUSD"`
	TotalValueLockedUSD          decimal.Decimal `json:"totalValueLockedUSD"`
	TotalValueLockedETH          decimal.Decimal `json:"totalValueLockedETH"`
	TotalValueLockedUSDUntracked decimal.Decimal `json:"totalValueLockedUSDUntracked"`
	TotalValueLockedETHUntracked decimal.Decimal `json:"totalValueLockedETHUntracked"`
	Owner                        string          `json:"owner"`
}

// NewFactory returns a factory with every aggregate at zero.
func NewFactory(id string) *Factory {
	return &Factory{ID: id, Owner: ID(common.Address{})}
}

// Bundle holds the reference price of the wrapped native token in USD.
type Bundle struct {
	ID          string          `json:"id"`
	EthPriceUSD decimal.Decimal `json:"ethPriceUSD"`
}

type Token struct {
	ID                           string          `json:"id"`
	Symbol                       string          `json:"symbol"`
	Name                         string          `json:"name"`
	Decimals                     uint8           `json:"decimals"`
	TotalSupply                  *big.Int        `json:"totalSupply"`
	Volume                       decimal.Decimal `json:"volume"`
	VolumeUSD                    decimal.Decimal `json:"volumeUSD"`
	UntrackedVolumeUSD           decimal.Decimal `json:"untrackedVolumeUSD"`
	FeesUSD                      decimal.Decimal `json:"feesUSD"`
	TxCount                      uint64          `json:"txCount"`
	PoolCount                    uint64          `json:"poolCount"`
	TotalValueLocked             decimal.Decimal `json:"totalValueLocked"`
	TotalValueLockedUSD          decimal.Decimal `json:"totalValueLockedUSD"`
	TotalValueLockedUSDUntracked decimal.Decimal `json:"totalValueLockedUSDUntracked"`
	DerivedETH                   decimal.Decimal `json:"derivedETH"`
	WhitelistPools               []string        `json:"whitelistPools"`
}

// NewToken returns a token with zeroed aggregates.
func NewToken(id, symbol, name string, decimals uint8, totalSupply *big.Int) *Token {
	if totalSupply == nil {
		totalSupply = new(big.Int)
	}
	return &Token{
		ID:             id,
		Symbol:         symbol,
		Name:           name,
		Decimals:       decimals,
		TotalSupply:    totalSupply,
		WhitelistPools: []string{},
	}
}

type Pool struct {
	ID                           string          `json:"id"`
	CreatedAtTimestamp           uint64          `json:"createdAtTimestamp"`
	CreatedAtBlockNumber         uint64          `json:"createdAtBlockNumber"`
	Token0                       string          `json:"token0"`
	Token1                       string          `json:"token1"`
	FeeTier                      uint32          `json:"feeTier"`
	TickSpacing                  int32           `json:"tickSpacing"`
	Liquidity                    *big.Int        `json:"liquidity"`
	SqrtPrice                    *big.Int        `json:"sqrtPrice"`
	FeeGrowthGlobal0X128         *big.Int        `json:"feeGrowthGlobal0X128"`
	FeeGrowthGlobal1X128         *big.Int        `json:"feeGrowthGlobal1X128"`
	Token0Price                  decimal.Decimal `json:"token0Price"`
	Token1Price                  decimal.Decimal `json:"token1Price"`
	Tick                         *int32          `json:"tick"`
	ObservationIndex             uint64          `json:"observationIndex"`
	VolumeToken0                 decimal.Decimal `json:"volumeToken0"`
	VolumeToken1                 decimal.Decimal `json:"volumeToken1"`
	VolumeUSD                    decimal.Decimal `json:"volumeUSD"`
	UntrackedVolumeUSD           decimal.Decimal `json:"untrackedVolumeUSD"`
	FeesUSD                      decimal.Decimal `json:"feesUSD"`
	TxCount                      uint64          `json:"txCount"`
	CollectedFeesToken0          decimal.Decimal `json:"collectedFeesToken0"`
	CollectedFeesToken1          decimal.Decimal `json:"collectedFeesToken1"`
	CollectedFeesUSD             decimal.Decimal `json:"collectedFeesUSD"`
	TotalValueLockedToken0       decimal.Decimal `json:"totalValueLockedToken0"`
	TotalValueLockedToken1       decimal.Decimal `json:"totalValueLockedToken1"`
	TotalValueLockedETH          decimal.Decimal `json:"totalValueLockedETH"`
	TotalValueLockedUSD          decimal.Decimal `json:"totalValueLockedUSD"`
	TotalValueLockedUSDUntracked decimal.Decimal `json:"totalValueLockedUSDUntracked"`
	LiquidityProviderCount       uint64          `json:"liquidityProviderCount"`
}

// NewPool returns an uninitialised pool: no tick, zero price and liquidity.
func NewPool(id, token0, token1 string, feeTier uint32, tickSpacing int32, timestamp, block uint64) *Pool {
	return &Pool{
		ID:                   id,
		CreatedAtTimestamp:   timestamp,
		CreatedAtBlockNumber: block,
		Token0:               token0,
		Token1:               token1,
		FeeTier:              feeTier,
		TickSpacing:          tickSpacing,
		Liquidity:            new(big.Int),
		SqrtPrice:            new(big.Int),
		FeeGrowthGlobal0X128: new(big.Int),
		FeeGrowthGlobal1X128: new(big.Int),
	}
}

// InRange reports whether a position over [tickLower, tickUpper) is active
// at the pool's current tick. Uninitialised pools have no active range.
func (p *Pool) InRange(tickLower, tickUpper int32) bool {
	return p.Tick != nil && tickLower <= *p.Tick && *p.Tick < tickUpper
}

type Tick struct {
	ID                     string          `json:"id"`
	PoolAddress            string          `json:"poolAddress"`
	TickIdx                int32           `json:"tickIdx"`
	Pool                   string          `json:"pool"`
	LiquidityGross         *big.Int        `json:"liquidityGross"`
	LiquidityNet           *big.Int        `json:"liquidityNet"`
	Price0                 decimal.Decimal `json:"price0"`
	Price1                 decimal.Decimal `json:"price1"`
	VolumeToken0           decimal.Decimal `json:"volumeToken0"`
	VolumeToken1           decimal.Decimal `json:"volumeToken1"`
	VolumeUSD              decimal.Decimal `json:"volumeUSD"`
	UntrackedVolumeUSD     decimal.Decimal `json:"untrackedVolumeUSD"`
	FeesUSD                decimal.Decimal `json:"feesUSD"`
	CollectedFeesToken0    decimal.Decimal `json:"collectedFeesToken0"`
	CollectedFeesToken1    decimal.Decimal `json:"collectedFeesToken1"`
	CollectedFeesUSD       decimal.Decimal `json:"collectedFeesUSD"`
	CreatedAtTimestamp     uint64          `json:"createdAtTimestamp"`
	CreatedAtBlockNumber   uint64          `json:"createdAtBlockNumber"`
	LiquidityProviderCount uint64          `json:"liquidityProviderCount"`
	FeeGrowthOutside0X128  *big.Int        `json:"feeGrowthOutside0X128"`
	FeeGrowthOutside1X128  *big.Int        `json:"feeGrowthOutside1X128"`
}

// TickID keys a tick by pool and index.
func TickID(pool string, tickIdx int32) string {
	return pool + "#" + itoa(int64(tickIdx))
}

type Position struct {
	ID                  string          `json:"id"`
	Owner               string          `json:"owner"`
	Pool                string          `json:"pool"`
	Token0              string          `json:"token0"`
	Token1              string          `json:"token1"`
	TickLower           string          `json:"tickLower"`
	TickUpper           string          `json:"tickUpper"`
	TickLowerIdx        int32           `json:"tickLowerIdx"`
	TickUpperIdx        int32           `json:"tickUpperIdx"`
	Liquidity           *big.Int        `json:"liquidity"`
	DepositedToken0     decimal.Decimal `json:"depositedToken0"`
	DepositedToken1     decimal.Decimal `json:"depositedToken1"`
	WithdrawnToken0     decimal.Decimal `json:"withdrawnToken0"`
	WithdrawnToken1     decimal.Decimal `json:"withdrawnToken1"`
	CollectedToken0     decimal.Decimal `json:"collectedToken0"`
	CollectedToken1     decimal.Decimal `json:"collectedToken1"`
	CollectedFeesToken0 decimal.Decimal `json:"collectedFeesToken0"`
	CollectedFeesToken1 decimal.Decimal `json:"collectedFeesToken1"`
	AmountDepositedUSD  decimal.Decimal `json:"amountDepositedUSD"`
	AmountWithdrawnUSD  decimal.Decimal `json:"amountWithdrawnUSD"`
	AmountCollectedUSD  decimal.Decimal `json:"amountCollectedUSD"`
	Transaction         string          `json:"transaction"`
	Closed              bool            `json:"closed"`
}

// PositionID keys a position by owner, pool and tick range.
func PositionID(owner, pool string, tickLower, tickUpper int32) string {
	return owner + "#" + pool + "#" + itoa(int64(tickLower)) + "#" + itoa(int64(tickUpper))
}

// PrincipalOwed returns burned liquidity amounts not yet collected.
func (p *Position) PrincipalOwed() (decimal.Decimal, decimal.Decimal) {
	owed0 := p.WithdrawnToken0.Sub(p.CollectedToken0.Sub(p.CollectedFeesToken0))
	owed1 := p.WithdrawnToken1.Sub(p.CollectedToken1.Sub(p.CollectedFeesToken1))
	return decimal.Max(owed0, decimal.Zero), decimal.Max(owed1, decimal.Zero)
}

type PositionSnapshot struct {
	ID                  string          `json:"id"`
	Owner               string          `json:"owner"`
	Pool                string          `json:"pool"`
	Position            string          `json:"position"`
	BlockNumber         uint64          `json:"blockNumber"`
	Timestamp           uint64          `json:"timestamp"`
	Liquidity           *big.Int        `json:"liquidity"`
	DepositedToken0     decimal.Decimal `json:"depositedToken0"`
	DepositedToken1     decimal.Decimal `json:"depositedToken1"`
	WithdrawnToken0     decimal.Decimal `json:"withdrawnToken0"`
	WithdrawnToken1     decimal.Decimal `json:"withdrawnToken1"`
	CollectedFeesToken0 decimal.Decimal `json:"collectedFeesToken0"`
	CollectedFeesToken1 decimal.Decimal `json:"collectedFeesToken1"`
	Transaction         string          `json:"transaction"`
}

type Transaction struct {
	ID          string `json:"id"`
	BlockNumber uint64 `json:"blockNumber"`
	Timestamp   uint64 `json:"timestamp"`
	Origin      string `json:"origin"`
}

type Mint struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Timestamp   uint64          `json:"timestamp"`
	Pool        string          `json:"pool"`
	Token0      string          `json:"token0"`
	Token1      string          `json:"token1"`
	Owner       string          `json:"owner"`
	Sender      string          `json:"sender"`
	Origin      string          `json:"origin"`
	Amount      *big.Int        `json:"amount"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	AmountUSD   decimal.Decimal `json:"amountUSD"`
	TickLower   int32           `json:"tickLower"`
	TickUpper   int32           `json:"tickUpper"`
	LogIndex    uint            `json:"logIndex"`
}

type Burn struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Timestamp   uint64          `json:"timestamp"`
	Pool        string          `json:"pool"`
	Token0      string          `json:"token0"`
	Token1      string          `json:"token1"`
	Owner       string          `json:"owner"`
	Origin      string          `json:"origin"`
	Amount      *big.Int        `json:"amount"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	AmountUSD   decimal.Decimal `json:"amountUSD"`
	TickLower   int32           `json:"tickLower"`
	TickUpper   int32           `json:"tickUpper"`
	LogIndex    uint            `json:"logIndex"`
}

type Swap struct {
	ID           string          `json:"id"`
	Transaction  string          `json:"transaction"`
	Timestamp    uint64          `json:"timestamp"`
	Pool         string          `json:"pool"`
	Token0       string          `json:"token0"`
	Token1       string          `json:"token1"`
	Sender       string          `json:"sender"`
	Recipient    string          `json:"recipient"`
	Origin       string          `json:"origin"`
	Amount0      decimal.Decimal `json:"amount0"`
	Amount1      decimal.Decimal `json:"amount1"`
	AmountUSD    decimal.Decimal `json:"amountUSD"`
	SqrtPriceX96 *big.Int        `json:"sqrtPriceX96"`
	Tick         int32           `json:"tick"`
	LogIndex     uint            `json:"logIndex"`
}

type Collect struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Timestamp   uint64          `json:"timestamp"`
	Pool        string          `json:"pool"`
	Owner       string          `json:"owner"`
	Recipient   string          `json:"recipient"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	AmountUSD   decimal.Decimal `json:"amountUSD"`
	TickLower   int32           `json:"tickLower"`
	TickUpper   int32           `json:"tickUpper"`
	LogIndex    uint            `json:"logIndex"`
}

// UniswapDayData aggregates the whole factory per UTC day.
type UniswapDayData struct {
	ID                 string          `json:"id"`
	Date               int64           `json:"date"`
	VolumeETH          decimal.Decimal `json:"volumeETH"`
	VolumeUSD          decimal.Decimal `json:"volumeUSD"`
	VolumeUSDUntracked decimal.Decimal `json:"volumeUSDUntracked"`
	FeesUSD            decimal.Decimal `json:"feesUSD"`
	TxCount            uint64          `json:"txCount"`
	TvlUSD             decimal.Decimal `json:"tvlUSD"`
}

// PoolIntervalData is a pool snapshot for one day, hour or minute. Prices
// tracked by open/high/low/close are token0Price.
type PoolIntervalData struct {
	ID                   string          `json:"id"`
	Pool                 string          `json:"pool"`
	PeriodStartUnix      int64           `json:"periodStartUnix"`
	Liquidity            *big.Int        `json:"liquidity"`
	SqrtPrice            *big.Int        `json:"sqrtPrice"`
	Token0Price          decimal.Decimal `json:"token0Price"`
	Token1Price          decimal.Decimal `json:"token1Price"`
	Tick                 *int32          `json:"tick"`
	FeeGrowthGlobal0X128 *big.Int        `json:"feeGrowthGlobal0X128"`
	FeeGrowthGlobal1X128 *big.Int        `json:"feeGrowthGlobal1X128"`
	TvlUSD               decimal.Decimal `json:"tvlUSD"`
	VolumeToken0         decimal.Decimal `json:"volumeToken0"`
	VolumeToken1         decimal.Decimal `json:"volumeToken1"`
	VolumeUSD            decimal.Decimal `json:"volumeUSD"`
	FeesUSD              decimal.Decimal `json:"feesUSD"`
	TxCount              uint64          `json:"txCount"`
	Open                 decimal.Decimal `json:"open"`
	High                 decimal.Decimal `json:"high"`
	Low                  decimal.Decimal `json:"low"`
	Close                decimal.Decimal `json:"close"`
}

// TokenIntervalData is a token snapshot for one day, hour or minute. Prices
// tracked by open/high/low/close are in USD.
type TokenIntervalData struct {
	ID                  string          `json:"id"`
	Token               string          `json:"token"`
	PeriodStartUnix     int64           `json:"periodStartUnix"`
	Volume              decimal.Decimal `json:"volume"`
	VolumeUSD           decimal.Decimal `json:"volumeUSD"`
	UntrackedVolumeUSD  decimal.Decimal `json:"untrackedVolumeUSD"`
	TotalValueLocked    decimal.Decimal `json:"totalValueLocked"`
	TotalValueLockedUSD decimal.Decimal `json:"totalValueLockedUSD"`
	PriceUSD            decimal.Decimal `json:"priceUSD"`
	FeesUSD             decimal.Decimal `json:"feesUSD"`
	Open                decimal.Decimal `json:"open"`
	High                decimal.Decimal `json:"high"`
	Low                 decimal.Decimal `json:"low"`
	Close               decimal.Decimal `json:"close"`
}
