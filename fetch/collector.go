package fetch

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/eventsync-go/client"
	"github.com/0xmhha/eventsync-go/types"
)

// ReceiptClient fetches transaction receipts
type ReceiptClient interface {
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// ReceiptCollector fetches the receipts of filtered transactions one by one
type ReceiptCollector struct {
	client  ReceiptClient
	metrics *Metrics
	logger  *zap.Logger
}

// NewReceiptCollector creates a collector. metrics may be nil.
func NewReceiptCollector(client ReceiptClient, metrics *Metrics, logger *zap.Logger) *ReceiptCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptCollector{
		client:  client,
		metrics: metrics,
		logger:  logger,
	}
}

// Collect returns the receipts of txs in input order. Receipts that are
// missing or fail to load are logged and left out.
func (c *ReceiptCollector) Collect(ctx context.Context, txs []types.Transaction) []*types.Receipt {
	receipts := make([]*types.Receipt, 0, len(txs))

	for _, tx := range txs {
		if ctx.Err() != nil {
			break
		}

		receipt, err := c.client.GetTransactionReceipt(ctx, tx.Hash)
		if err != nil {
			reason := receiptErrorReason(err)
			c.metrics.recordReceiptError(reason)
			c.logger.Warn("dropping transaction without receipt",
				zap.String("tx", tx.Hash.Hex()),
				zap.String("reason", reason),
				zap.Error(err))
			continue
		}
		if receipt == nil {
			c.metrics.recordReceiptError(reasonMissing)
			c.logger.Warn("dropping transaction without receipt",
				zap.String("tx", tx.Hash.Hex()),
				zap.String("reason", reasonMissing))
			continue
		}

		receipts = append(receipts, receipt)
	}

	return receipts
}

const (
	reasonMissing   = "missing"
	reasonInvalid   = "invalid"
	reasonTransport = "transport"
)

func receiptErrorReason(err error) string {
	switch {
	case errors.Is(err, client.ErrReceiptNotFound):
		return reasonMissing
	case errors.Is(err, client.ErrInvalidResponse):
		return reasonInvalid
	default:
		return reasonTransport
	}
}
