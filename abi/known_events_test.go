package abi

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownEventTopics(t *testing.T) {
	tests := []struct {
		name  string
		topic string
	}{
		{"Transfer", "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"},
		{"Approval", "0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"},
		{"ApprovalForAll", "0x17307eab39ab6107e8899845ad3d59bd9653f200f220920489ca2b5937696c31"},
		{"Deposit", "0xe1fffcc4923d04b559f4d29a8bfc6cda04eb5b0d3c460751c2402c5c5cc9109c"},
		{"Withdrawal", "0x7fcf532c15f0a6db0bd6d0e038bea71d30d808c7d98cb3bf7268a95bf5081b65"},
		{"OwnershipTransferred", "0x8be0079c531659141344cd1fd0a4f28419497f9722a3daafe3b4186f6b6457e0"},
		{"Paused", "0x62e78cea01bee320cd4e420270b5ea74000d11b0c9f74754ebdbfc544b05a258"},
		{"Unpaused", "0x5db9ee0a495bf2e6ff9c91a7834c1ba4fdd244a5e8aa4e537bd38aeae4b073aa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, ok := GetKnownEventByName(tt.name)
			require.True(t, ok)
			assert.Equal(t, common.HexToHash(tt.topic), event.Topic())

			byTopic, ok := GetKnownEventByTopic(common.HexToHash(tt.topic))
			require.True(t, ok)
			assert.Equal(t, tt.name, byTopic.Name)
		})
	}
}

func TestKnownEventsAreUnique(t *testing.T) {
	names := make(map[string]bool)
	topics := make(map[common.Hash]bool)

	for _, event := range KnownEvents {
		assert.False(t, names[event.Name], "duplicate name %s", event.Name)
		assert.False(t, topics[event.Topic()], "duplicate topic for %s", event.Name)
		names[event.Name] = true
		topics[event.Topic()] = true
	}
	assert.Len(t, KnownEventNames(), len(KnownEvents))
}

func TestKnownEventDecoders(t *testing.T) {
	for _, event := range KnownEvents {
		t.Run(event.Name, func(t *testing.T) {
			decoder, err := event.Decoder()
			require.NoError(t, err)

			// The ABI rendering must reproduce the catalog signature
			assert.Equal(t, event.Signature, decoder.Signature())
			assert.Equal(t, event.Topic(), decoder.ID())
			assert.Equal(t, event.Name, decoder.Name())
		})
	}
}

func TestGetKnownEventUnknown(t *testing.T) {
	_, ok := GetKnownEventByName("NoSuchEvent")
	assert.False(t, ok)

	_, ok = GetKnownEventByTopic(common.Hash{})
	assert.False(t, ok)
}
