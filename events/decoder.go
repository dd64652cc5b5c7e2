package events

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/eventsync-go/abi"
	"github.com/0xmhha/eventsync-go/storage"
	"github.com/0xmhha/eventsync-go/types"
)

// ABIDecoder decodes every log of a receipt emitted by one ABI event and
// persists the results in a single write
type ABIDecoder struct {
	name    string
	decoder *abi.EventDecoder
	store   storage.EventWriter
	logger  *zap.Logger
}

// NewABIDecoder creates a receipt decoder backed by an ABI event
func NewABIDecoder(name string, decoder *abi.EventDecoder, store storage.EventWriter, logger *zap.Logger) *ABIDecoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ABIDecoder{
		name:    name,
		decoder: decoder,
		store:   store,
		logger:  logger.With(zap.String("decoder", name)),
	}
}

// Name returns the decoder name
func (d *ABIDecoder) Name() string {
	return d.name
}

// Topic returns the event signature hash
func (d *ABIDecoder) Topic() common.Hash {
	return d.decoder.ID()
}

// HandleReceipt decodes the matching logs of receipt and stores them
func (d *ABIDecoder) HandleReceipt(ctx context.Context, receipt *types.Receipt) error {
	var records []*storage.EventRecord
	for _, log := range receipt.Logs {
		if !d.decoder.Matches(log) {
			continue
		}

		args, err := d.decoder.Decode(log)
		if err != nil {
			return fmt.Errorf("%w: %s log %d of %s: %v", ErrDecode, d.name, log.Index, receipt.TxHash.Hex(), err)
		}

		blockNumber := log.BlockNumber
		if blockNumber == 0 {
			blockNumber = uint64(receipt.BlockNumber)
		}

		records = append(records, &storage.EventRecord{
			Contract:    log.Address.Hex(),
			Event:       d.decoder.Name(),
			Signature:   d.decoder.Signature(),
			BlockNumber: blockNumber,
			TxHash:      receipt.TxHash.Hex(),
			TxIndex:     uint64(log.TxIndex),
			LogIndex:    log.Index,
			Args:        args,
		})
	}

	if len(records) == 0 {
		return nil
	}

	if d.store != nil {
		if err := d.store.SaveEvents(ctx, records); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPersist, d.name, err)
		}
	}

	d.logger.Debug("decoded receipt",
		zap.String("tx", receipt.TxHash.Hex()),
		zap.Int("events", len(records)))
	return nil
}
