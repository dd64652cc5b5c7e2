package storage

import (
	"encoding/json"
	"fmt"
)

// EventRecord is a decoded contract event
type EventRecord struct {
	Contract    string            `json:"contract"`
	Event       string            `json:"event"`
	Signature   string            `json:"signature"`
	BlockNumber uint64            `json:"blockNumber"`
	TxHash      string            `json:"txHash"`
	TxIndex     uint64            `json:"txIndex"`
	LogIndex    uint              `json:"logIndex"`
	Args        map[string]string `json:"args"`
}

// Key returns the storage key of the record
func (r *EventRecord) Key() []byte {
	return EventKey(r.BlockNumber, r.TxIndex, r.LogIndex)
}

// EncodeEventRecord encodes an event record to bytes
func EncodeEventRecord(record *EventRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("record cannot be nil")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event record: %w", err)
	}
	return data, nil
}

// DecodeEventRecord decodes bytes to an event record
func DecodeEventRecord(data []byte) (*EventRecord, error) {
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	var record EventRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return &record, nil
}
