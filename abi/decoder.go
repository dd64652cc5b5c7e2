package abi

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventDecoder decodes logs of a single event
type EventDecoder struct {
	event      abi.Event
	indexed    abi.Arguments
	nonIndexed abi.Arguments
}

// NewEventDecoder parses abiJSON and builds a decoder for eventName.
// An empty eventName selects the only event of the ABI.
func NewEventDecoder(abiJSON string, eventName string) (*EventDecoder, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	var event abi.Event
	if eventName == "" {
		if len(parsed.Events) != 1 {
			return nil, fmt.Errorf("ABI declares %d events, event name required", len(parsed.Events))
		}
		for _, e := range parsed.Events {
			event = e
		}
	} else {
		e, ok := parsed.Events[eventName]
		if !ok {
			return nil, fmt.Errorf("event %s not found in ABI", eventName)
		}
		event = e
	}

	if event.Anonymous {
		return nil, fmt.Errorf("anonymous event %s has no topic", event.RawName)
	}

	d := &EventDecoder{event: event}
	for _, input := range event.Inputs {
		if input.Indexed {
			d.indexed = append(d.indexed, input)
		} else {
			d.nonIndexed = append(d.nonIndexed, input)
		}
	}
	return d, nil
}

// ID returns the event signature hash (topic0)
func (d *EventDecoder) ID() common.Hash {
	return d.event.ID
}

// Name returns the event name
func (d *EventDecoder) Name() string {
	return d.event.RawName
}

// Signature returns the canonical event signature, e.g. Transfer(address,address,uint256)
func (d *EventDecoder) Signature() string {
	return d.event.Sig
}

// Matches reports whether the log was emitted by this event
func (d *EventDecoder) Matches(log *types.Log) bool {
	return log != nil && len(log.Topics) > 0 && log.Topics[0] == d.event.ID
}

// Decode decodes the arguments of a log into their string form.
// Indexed arguments come from topics, the rest from data.
func (d *EventDecoder) Decode(log *types.Log) (map[string]string, error) {
	if log == nil {
		return nil, fmt.Errorf("log cannot be nil")
	}
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}
	if log.Topics[0] != d.event.ID {
		return nil, fmt.Errorf("topic %s does not match event %s", log.Topics[0].Hex(), d.event.Sig)
	}

	args := make(map[string]interface{})

	// Topics[1:] contain indexed parameters
	if len(d.indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, d.indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to parse indexed parameters: %w", err)
		}
	}

	if len(d.nonIndexed) > 0 {
		if err := d.nonIndexed.UnpackIntoMap(args, log.Data); err != nil {
			return nil, fmt.Errorf("failed to parse non-indexed parameters: %w", err)
		}
	}

	result := make(map[string]string, len(args))
	for key, value := range args {
		result[key] = stringifyValue(serializeValue(value))
	}
	return result, nil
}

// serializeValue converts ABI types to JSON-serializable types
func serializeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case *big.Int:
		return v.String()
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = serializeValue(item)
		}
		return result
	}

	// Fixed-size byte arrays such as bytes32
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		buf := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(buf), rv)
		return hexutil.Encode(buf)
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		result := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			result[i] = serializeValue(rv.Index(i).Interface())
		}
		return result
	}
	return value
}

func stringifyValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

// ValidateABI reports whether abiJSON parses and yields a decodable event.
// An empty eventName requires the ABI to declare exactly one event.
func ValidateABI(abiJSON, eventName string) error {
	if _, err := NewEventDecoder(abiJSON, eventName); err != nil {
		return fmt.Errorf("invalid ABI: %w", err)
	}
	return nil
}
