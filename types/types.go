// Package types holds the chain data model shared by the client, the sync loop
// and the event decoders.
package types

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Transaction is the subset of a block transaction the sync loop needs
type Transaction struct {
	Hash common.Hash
	// To is the recipient as sent by the node, or "" for contract creations,
	// missing fields and non-string values.
	To string
}

type rpcTransaction struct {
	Hash common.Hash     `json:"hash"`
	To   json.RawMessage `json:"to"`
}

// UnmarshalJSON decodes a transaction object from eth_getBlockByNumber
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var raw rpcTransaction
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	tx.Hash = raw.Hash
	tx.To = ""
	if len(raw.To) > 0 {
		var to string
		if err := json.Unmarshal(raw.To, &to); err == nil {
			tx.To = to
		}
	}
	return nil
}

// Receipt is a transaction receipt as returned by eth_getTransactionReceipt
type Receipt struct {
	TxHash      common.Hash      `json:"transactionHash"`
	BlockNumber hexutil.Uint64   `json:"blockNumber"`
	Status      hexutil.Uint64   `json:"status"`
	To          *common.Address  `json:"to"`
	Logs        []*gethtypes.Log `json:"logs"`
}

// EventTopic returns topic0 of the first log, which selects the decoder.
// ok is false when the receipt has no logs or the first log has no topics.
func (r *Receipt) EventTopic() (topic common.Hash, ok bool) {
	if r == nil || len(r.Logs) == 0 || r.Logs[0] == nil || len(r.Logs[0].Topics) == 0 {
		return common.Hash{}, false
	}
	return r.Logs[0].Topics[0], true
}

// AddressSet is a set of lowercase hex addresses
type AddressSet map[string]struct{}

// NewAddressSet builds a set from addresses, normalizing case and dropping blanks
func NewAddressSet(addresses ...string) AddressSet {
	set := make(AddressSet, len(addresses))
	for _, addr := range addresses {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}
		set[addr] = struct{}{}
	}
	return set
}

// Contains reports whether addr is in the set, ignoring case
func (s AddressSet) Contains(addr string) bool {
	_, ok := s[strings.ToLower(addr)]
	return ok
}

// Len returns the number of addresses
func (s AddressSet) Len() int {
	return len(s)
}
