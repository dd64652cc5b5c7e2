package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/eventsync-go/types"
)

// DispatchResult counts what happened to the receipts of one Dispatch call
type DispatchResult struct {
	Handled int
	Skipped int
	Failed  int
}

// Dispatcher routes receipts to decoders by the topic0 of their first log
type Dispatcher struct {
	registry *Registry
	metrics  *Metrics
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(registry *Registry, metrics *Metrics, logger *zap.Logger) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Dispatch hands every receipt with a registered topic to its decoder.
// Receipts without logs or without a decoder are skipped. A failing decoder
// is logged and does not stop the remaining receipts.
func (d *Dispatcher) Dispatch(ctx context.Context, receipts []*types.Receipt) DispatchResult {
	var result DispatchResult

	for _, receipt := range receipts {
		if ctx.Err() != nil {
			break
		}

		topic, ok := receipt.EventTopic()
		if !ok {
			result.Skipped++
			d.metrics.recordReceipt("", OutcomeSkipped)
			continue
		}

		decoder, ok := d.registry.Get(topic)
		if !ok {
			result.Skipped++
			d.metrics.recordReceipt("", OutcomeSkipped)
			continue
		}

		start := time.Now()
		err := decoder.HandleReceipt(ctx, receipt)
		d.metrics.observeHandle(decoder.Name(), time.Since(start).Seconds())

		if err != nil {
			result.Failed++
			d.metrics.recordReceipt(decoder.Name(), OutcomeFailed)
			d.logger.Error("failed to handle receipt",
				zap.String("decoder", decoder.Name()),
				zap.String("tx", receipt.TxHash.Hex()),
				zap.Uint64("block", uint64(receipt.BlockNumber)),
				zap.Error(err))
			continue
		}

		result.Handled++
		d.metrics.recordReceipt(decoder.Name(), OutcomeHandled)
	}

	return result
}
