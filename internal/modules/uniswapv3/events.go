package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ubeswap/v3-indexer/internal/modules/core"
)

type poolCreatedEvent struct {
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickSpacing int32
	Pool        common.Address
}

type initializeEvent struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

// positionEvent carries the fields Mint and Burn share.
type positionEvent struct {
	Sender    common.Address // Mint only
	Owner     common.Address
	TickLower int32
	TickUpper int32
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

type swapEvent struct {
	Sender       common.Address
	Recipient    common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
}

type collectEvent struct {
	Owner     common.Address
	Recipient common.Address
	TickLower int32
	TickUpper int32
	Amount0   *big.Int
	Amount1   *big.Int
}

// argReader collects the first decode error so decoders read linearly.
type argReader struct {
	ev  *core.ParsedEvent
	err error
}

func (r *argReader) address(name string) common.Address {
	if r.err != nil {
		return common.Address{}
	}
	v, err := r.ev.AddressArg(name)
	r.err = err
	return v
}

func (r *argReader) bigInt(name string) *big.Int {
	if r.err != nil {
		return nil
	}
	v, err := r.ev.BigInt(name)
	r.err = err
	return v
}

func (r *argReader) int32(name string) int32 {
	if r.err != nil {
		return 0
	}
	v, err := r.ev.Int32(name)
	r.err = err
	return v
}

func (r *argReader) uint32(name string) uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.ev.Uint32(name)
	r.err = err
	return v
}

func decodePoolCreated(ev *core.ParsedEvent) (*poolCreatedEvent, error) {
	r := &argReader{ev: ev}
	out := &poolCreatedEvent{
		Token0:      r.address("token0"),
		Token1:      r.address("token1"),
		Fee:         r.uint32("fee"),
		TickSpacing: r.int32("tickSpacing"),
		Pool:        r.address("pool"),
	}
	return out, r.err
}

func decodeInitialize(ev *core.ParsedEvent) (*initializeEvent, error) {
	r := &argReader{ev: ev}
	out := &initializeEvent{
		SqrtPriceX96: r.bigInt("sqrtPriceX96"),
		Tick:         r.int32("tick"),
	}
	return out, r.err
}

func decodeMint(ev *core.ParsedEvent) (*positionEvent, error) {
	r := &argReader{ev: ev}
	out := &positionEvent{
		Sender:    r.address("sender"),
		Owner:     r.address("owner"),
		TickLower: r.int32("tickLower"),
		TickUpper: r.int32("tickUpper"),
		Amount:    r.bigInt("amount"),
		Amount0:   r.bigInt("amount0"),
		Amount1:   r.bigInt("amount1"),
	}
	return out, r.err
}

func decodeBurn(ev *core.ParsedEvent) (*positionEvent, error) {
	r := &argReader{ev: ev}
	out := &positionEvent{
		Owner:     r.address("owner"),
		TickLower: r.int32("tickLower"),
		TickUpper: r.int32("tickUpper"),
		Amount:    r.bigInt("amount"),
		Amount0:   r.bigInt("amount0"),
		Amount1:   r.bigInt("amount1"),
	}
	return out, r.err
}

func decodeSwap(ev *core.ParsedEvent) (*swapEvent, error) {
	r := &argReader{ev: ev}
	out := &swapEvent{
		Sender:       r.address("sender"),
		Recipient:    r.address("recipient"),
		Amount0:      r.bigInt("amount0"),
		Amount1:      r.bigInt("amount1"),
		SqrtPriceX96: r.bigInt("sqrtPriceX96"),
		Liquidity:    r.bigInt("liquidity"),
		Tick:         r.int32("tick"),
	}
	return out, r.err
}

func decodeCollect(ev *core.ParsedEvent) (*collectEvent, error) {
	r := &argReader{ev: ev}
	out := &collectEvent{
		Owner:     r.address("owner"),
		Recipient: r.address("recipient"),
		TickLower: r.int32("tickLower"),
		TickUpper: r.int32("tickUpper"),
		Amount0:   r.bigInt("amount0"),
		Amount1:   r.bigInt("amount1"),
	}
	return out, r.err
}
