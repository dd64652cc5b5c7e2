package fetch

import (
	"github.com/0xmhha/eventsync-go/types"
)

// FilterByRecipient keeps the transactions sent to a monitored address.
// Transactions without a recipient are dropped. Order is preserved and the
// input slice is not modified. An empty address set keeps everything.
func FilterByRecipient(txs []types.Transaction, monitored types.AddressSet) []types.Transaction {
	if len(txs) == 0 {
		return []types.Transaction{}
	}
	if monitored.Len() == 0 {
		return txs
	}

	filtered := make([]types.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.To == "" || !monitored.Contains(tx.To) {
			continue
		}
		filtered = append(filtered, tx)
	}
	return filtered
}
