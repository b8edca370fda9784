package core

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event is a raw log plus the block and transaction context handlers need.
type Event struct {
	Log       types.Log
	Timestamp uint64
	Origin    common.Address
}

// ParsedEvent represents a decoded event log
type ParsedEvent struct {
	// Raw log data
	Log *types.Log

	// Event information
	EventName string
	Address   common.Address

	// Parsed event data
	Args map[string]interface{}

	// Transaction context
	TransactionHash  common.Hash
	TransactionIndex uint
	BlockNumber      uint64
	BlockHash        common.Hash
	LogIndex         uint
	Timestamp        uint64
	Origin           common.Address
}

// EventParser handles parsing of event logs using ABI definitions
type EventParser struct {
	events map[common.Hash]*abi.Event // topic0 -> event
}

// NewEventParser creates a new event parser
func NewEventParser() *EventParser {
	return &EventParser{
		events: make(map[common.Hash]*abi.Event),
	}
}

// AddABI indexes every event of contractABI by its topic hash
func (p *EventParser) AddABI(contractABI *abi.ABI) {
	for _, event := range contractABI.Events {
		event := event
		p.events[event.ID] = &event
	}
}

// Event returns the ABI event for a topic0
func (p *EventParser) Event(topic common.Hash) (*abi.Event, bool) {
	ev, ok := p.events[topic]
	return ev, ok
}

// ParseEvent decodes an event envelope
func (p *EventParser) ParseEvent(ev *Event) (*ParsedEvent, error) {
	log := &ev.Log
	if len(log.Topics) == 0 {
		return nil, ErrInvalidEvent{Reason: "no topics in log"}
	}

	eventABI, exists := p.events[log.Topics[0]]
	if !exists {
		return nil, ErrUnknownEvent{Topic: log.Topics[0].Hex()}
	}

	args := make(map[string]interface{})

	topicIndex := 1
	for _, input := range eventABI.Inputs {
		if !input.Indexed {
			continue
		}
		if topicIndex >= len(log.Topics) {
			return nil, ErrInvalidEvent{Reason: fmt.Sprintf("%s has %d topics, missing %s", eventABI.Name, len(log.Topics), input.Name)}
		}
		args[input.Name] = parseIndexedArg(log.Topics[topicIndex], input.Type)
		topicIndex++
	}

	nonIndexedInputs := eventABI.Inputs.NonIndexed()
	if len(nonIndexedInputs) > 0 {
		values, err := nonIndexedInputs.Unpack(log.Data)
		if err != nil {
			return nil, ErrEventParsing{Event: eventABI.Name, Err: err}
		}
		for i, input := range nonIndexedInputs {
			if i < len(values) {
				args[input.Name] = values[i]
			}
		}
	}

	return &ParsedEvent{
		Log:              log,
		EventName:        eventABI.Name,
		Address:          log.Address,
		Args:             args,
		TransactionHash:  log.TxHash,
		TransactionIndex: log.TxIndex,
		BlockNumber:      log.BlockNumber,
		BlockHash:        log.BlockHash,
		LogIndex:         log.Index,
		Timestamp:        ev.Timestamp,
		Origin:           ev.Origin,
	}, nil
}

// parseIndexedArg converts a topic to the Go type the ABI decoder would produce
// for that argument. Small integer widths come back as *big.Int.
func parseIndexedArg(topic common.Hash, argType abi.Type) interface{} {
	switch argType.T {
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes())
	case abi.UintTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.IntTy:
		// topics hold the value sign-extended to 256 bits
		return gmath.S256(new(big.Int).SetBytes(topic.Bytes()))
	case abi.BoolTy:
		return topic.Big().Sign() != 0
	case abi.FixedBytesTy:
		return topic.Bytes()
	default:
		return topic.Hex()
	}
}

// NormalizeEventSignature strips `indexed` markers and spaces so a manifest
// signature compares equal to abi.Event.Sig.
func NormalizeEventSignature(sig string) string {
	sig = strings.ReplaceAll(sig, "indexed ", "")
	return strings.ReplaceAll(sig, " ", "")
}

// Arg accessors. Handlers use these instead of raw type assertions so a
// malformed log surfaces as an error instead of a panic.

func (e *ParsedEvent) AddressArg(name string) (common.Address, error) {
	v, ok := e.Args[name].(common.Address)
	if !ok {
		return common.Address{}, ErrMissingArg{Event: e.EventName, Arg: name}
	}
	return v, nil
}

func (e *ParsedEvent) BigInt(name string) (*big.Int, error) {
	switch v := e.Args[name].(type) {
	case *big.Int:
		return v, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	}
	return nil, ErrMissingArg{Event: e.EventName, Arg: name}
}

func (e *ParsedEvent) Int32(name string) (int32, error) {
	v, err := e.BigInt(name)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() || v.Int64() < math.MinInt32 || v.Int64() > math.MaxInt32 {
		return 0, ErrMissingArg{Event: e.EventName, Arg: name}
	}
	return int32(v.Int64()), nil
}

func (e *ParsedEvent) Uint32(name string) (uint32, error) {
	v, err := e.BigInt(name)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > math.MaxUint32 {
		return 0, ErrMissingArg{Event: e.EventName, Arg: name}
	}
	return uint32(v.Uint64()), nil
}

// Error types
type ErrInvalidEvent struct {
	Reason string
}

func (e ErrInvalidEvent) Error() string {
	return "invalid event: " + e.Reason
}

type ErrUnknownEvent struct {
	Topic string
}

func (e ErrUnknownEvent) Error() string {
	return "unknown event topic: " + e.Topic
}

type ErrEventParsing struct {
	Event string
	Err   error
}

func (e ErrEventParsing) Error() string {
	return "failed to parse event " + e.Event + ": " + e.Err.Error()
}

func (e ErrEventParsing) Unwrap() error { return e.Err }

type ErrMissingArg struct {
	Event string
	Arg   string
}

func (e ErrMissingArg) Error() string {
	return "event " + e.Event + " has no valid argument " + e.Arg
}
