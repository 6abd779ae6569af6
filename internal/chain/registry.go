package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// IsccEvent is a decoded ISCC declaration log.
type IsccEvent struct {
	Actor   common.Address
	Iscc    []byte
	Tophash []byte
}

// DecodeIsccEvent unpacks an ISCC(address indexed actor, bytes iscc, bytes tophash) log.
func DecodeIsccEvent(log types.Log) (IsccEvent, error) {
	registry, err := RegistryABI()
	if err != nil {
		return IsccEvent{}, fmt.Errorf("parse registry abi: %w", err)
	}
	event := registry.Events["ISCC"]

	if len(log.Topics) != 2 {
		return IsccEvent{}, fmt.Errorf("expected 2 topics, got %d", len(log.Topics))
	}
	if log.Topics[0] != event.ID {
		return IsccEvent{}, fmt.Errorf("unexpected topic0: %s", log.Topics[0].Hex())
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return IsccEvent{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != 2 {
		return IsccEvent{}, fmt.Errorf("unexpected iscc values: %d", len(values))
	}
	code, ok := values[0].([]byte)
	if !ok {
		return IsccEvent{}, fmt.Errorf("iscc: unexpected type %T", values[0])
	}
	tophash, ok := values[1].([]byte)
	if !ok {
		return IsccEvent{}, fmt.Errorf("tophash: unexpected type %T", values[1])
	}

	return IsccEvent{
		Actor:   common.BytesToAddress(log.Topics[1].Bytes()),
		Iscc:    code,
		Tophash: tophash,
	}, nil
}

// IsccEventTopic returns topic0 of the ISCC event.
func IsccEventTopic() (common.Hash, error) {
	registry, err := RegistryABI()
	if err != nil {
		return common.Hash{}, err
	}
	return registry.Events["ISCC"].ID, nil
}
