package abi

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventInput represents an input parameter of an event
type EventInput struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed"`
}

// KnownEvent represents a well-known event signature
type KnownEvent struct {
	Name      string       `json:"name"`
	Signature string       `json:"signature"`
	Inputs    []EventInput `json:"inputs"`
}

// Topic returns the keccak256 hash of the signature
func (e KnownEvent) Topic() common.Hash {
	return crypto.Keccak256Hash([]byte(e.Signature))
}

// ABIJSON renders the event as a single-entry ABI JSON array
func (e KnownEvent) ABIJSON() (string, error) {
	entry := struct {
		Type      string       `json:"type"`
		Name      string       `json:"name"`
		Anonymous bool         `json:"anonymous"`
		Inputs    []EventInput `json:"inputs"`
	}{
		Type:   "event",
		Name:   e.Name,
		Inputs: e.Inputs,
	}

	data, err := json.Marshal([]interface{}{entry})
	if err != nil {
		return "", fmt.Errorf("failed to encode ABI for %s: %w", e.Name, err)
	}
	return string(data), nil
}

// Decoder builds an EventDecoder for the event
func (e KnownEvent) Decoder() (*EventDecoder, error) {
	abiJSON, err := e.ABIJSON()
	if err != nil {
		return nil, err
	}
	return NewEventDecoder(abiJSON, e.Name)
}

// KnownEvents is the catalog of events that can be decoded without a configured ABI.
// Names are unique and so are signatures.
var KnownEvents = []KnownEvent{
	// ERC20 Transfer - 3 topics (from, to indexed), value in data
	{
		Name:      "Transfer",
		Signature: "Transfer(address,address,uint256)",
		Inputs: []EventInput{
			{Name: "from", Type: "address", Indexed: true},
			{Name: "to", Type: "address", Indexed: true},
			{Name: "value", Type: "uint256", Indexed: false},
		},
	},
	// ERC20 Approval
	{
		Name:      "Approval",
		Signature: "Approval(address,address,uint256)",
		Inputs: []EventInput{
			{Name: "owner", Type: "address", Indexed: true},
			{Name: "spender", Type: "address", Indexed: true},
			{Name: "value", Type: "uint256", Indexed: false},
		},
	},
	// ERC721 ApprovalForAll
	{
		Name:      "ApprovalForAll",
		Signature: "ApprovalForAll(address,address,bool)",
		Inputs: []EventInput{
			{Name: "owner", Type: "address", Indexed: true},
			{Name: "operator", Type: "address", Indexed: true},
			{Name: "approved", Type: "bool", Indexed: false},
		},
	},
	// WETH Deposit
	{
		Name:      "Deposit",
		Signature: "Deposit(address,uint256)",
		Inputs: []EventInput{
			{Name: "dst", Type: "address", Indexed: true},
			{Name: "wad", Type: "uint256", Indexed: false},
		},
	},
	// WETH Withdrawal
	{
		Name:      "Withdrawal",
		Signature: "Withdrawal(address,uint256)",
		Inputs: []EventInput{
			{Name: "src", Type: "address", Indexed: true},
			{Name: "wad", Type: "uint256", Indexed: false},
		},
	},
	// OwnershipTransferred (Ownable)
	{
		Name:      "OwnershipTransferred",
		Signature: "OwnershipTransferred(address,address)",
		Inputs: []EventInput{
			{Name: "previousOwner", Type: "address", Indexed: true},
			{Name: "newOwner", Type: "address", Indexed: true},
		},
	},
	// Paused
	{
		Name:      "Paused",
		Signature: "Paused(address)",
		Inputs: []EventInput{
			{Name: "account", Type: "address", Indexed: false},
		},
	},
	// Unpaused
	{
		Name:      "Unpaused",
		Signature: "Unpaused(address)",
		Inputs: []EventInput{
			{Name: "account", Type: "address", Indexed: false},
		},
	},
	// ENS registrar controller
	{
		Name:      "NameRegistered",
		Signature: "NameRegistered(string,bytes32,address,uint256,uint256)",
		Inputs: []EventInput{
			{Name: "name", Type: "string", Indexed: false},
			{Name: "label", Type: "bytes32", Indexed: true},
			{Name: "owner", Type: "address", Indexed: true},
			{Name: "cost", Type: "uint256", Indexed: false},
			{Name: "expires", Type: "uint256", Indexed: false},
		},
	},
	// ENS reverse registrar
	{
		Name:      "ReverseClaimed",
		Signature: "ReverseClaimed(address,bytes32)",
		Inputs: []EventInput{
			{Name: "addr", Type: "address", Indexed: true},
			{Name: "node", Type: "bytes32", Indexed: true},
		},
	},
}

// GetKnownEventByName looks up a catalog event by name
func GetKnownEventByName(name string) (KnownEvent, bool) {
	for _, event := range KnownEvents {
		if event.Name == name {
			return event, true
		}
	}
	return KnownEvent{}, false
}

// GetKnownEventByTopic looks up a catalog event by signature hash
func GetKnownEventByTopic(topic common.Hash) (KnownEvent, bool) {
	for _, event := range KnownEvents {
		if event.Topic() == topic {
			return event, true
		}
	}
	return KnownEvent{}, false
}

// KnownEventNames returns the names of all catalog events
func KnownEventNames() []string {
	names := make([]string, 0, len(KnownEvents))
	for _, event := range KnownEvents {
		names = append(names, event.Name)
	}
	return names
}
