package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/0xmhha/eventsync-go/types"
)

// NewTestLogger creates a logger that writes through t.Log
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// HashFromInt returns a deterministic hash for test fixtures
func HashFromInt(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n))
}

// NewTestTransaction creates a transaction sent to to
func NewTestTransaction(n uint64, to string) types.Transaction {
	return types.Transaction{Hash: HashFromInt(n), To: to}
}

// NewTestReceipt creates a successful receipt with one log per topic0
func NewTestReceipt(txHash common.Hash, blockNumber uint64, topics ...common.Hash) *types.Receipt {
	logs := make([]*gethtypes.Log, 0, len(topics))
	for i, topic := range topics {
		logs = append(logs, &gethtypes.Log{
			Topics:      []common.Hash{topic},
			BlockNumber: blockNumber,
			TxHash:      txHash,
			Index:       uint(i),
		})
	}
	return &types.Receipt{
		TxHash:      txHash,
		BlockNumber: hexutil.Uint64(blockNumber),
		Status:      hexutil.Uint64(gethtypes.ReceiptStatusSuccessful),
		Logs:        logs,
	}
}

// RPCRequest is a decoded JSON-RPC request
type RPCRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// RPCHandler answers one JSON-RPC request with an HTTP status and a raw response body
type RPCHandler func(req RPCRequest) (status int, body string)

// RPCServer is a fake chain node serving JSON-RPC over HTTP
type RPCServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]RPCHandler
	calls    map[string]int
}

// NewRPCServer starts a fake node. Unknown methods get a -32601 error.
func NewRPCServer(t *testing.T, handlers map[string]RPCHandler) *RPCServer {
	t.Helper()

	s := &RPCServer{
		handlers: make(map[string]RPCHandler),
		calls:    make(map[string]int),
	}
	for method, h := range handlers {
		s.handlers[method] = h
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

// Handle replaces the handler of method
func (s *RPCServer) Handle(method string, h RPCHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Calls returns how many times method was requested
func (s *RPCServer) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *RPCServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "batch requests are not supported", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	status, resp := http.StatusOK, RPCErrorBody(req.ID, -32601, "method not found")
	if ok {
		status, resp = h(req)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, resp)
}

// RPCResult answers with a result value
func RPCResult(result interface{}) RPCHandler {
	return func(req RPCRequest) (int, string) {
		return http.StatusOK, RPCResultBody(req.ID, result)
	}
}

// RPCStatus answers with a bare HTTP status
func RPCStatus(status int) RPCHandler {
	return func(req RPCRequest) (int, string) {
		return status, http.StatusText(status)
	}
}

// RPCResultBody renders a JSON-RPC success response
func RPCResultBody(id json.RawMessage, result interface{}) string {
	data, err := json.Marshal(result)
	if err != nil {
		panic(fmt.Sprintf("testutil: cannot encode result: %v", err))
	}
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%s}`, idOrNull(id), data)
}

// RPCErrorBody renders a JSON-RPC error response
func RPCErrorBody(id json.RawMessage, code int, message string) string {
	msg, _ := json.Marshal(message)
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%s}}`, idOrNull(id), code, msg)
}

func idOrNull(id json.RawMessage) string {
	if len(id) == 0 {
		return "null"
	}
	return string(id)
}

// BlockJSON renders an eth_getBlockByNumber result with full transaction objects
func BlockJSON(height uint64, txs ...types.Transaction) map[string]interface{} {
	list := make([]map[string]interface{}, 0, len(txs))
	for _, tx := range txs {
		entry := map[string]interface{}{"hash": tx.Hash.Hex(), "to": nil}
		if tx.To != "" {
			entry["to"] = tx.To
		}
		list = append(list, entry)
	}
	return map[string]interface{}{
		"number":       hexutil.EncodeUint64(height),
		"transactions": list,
	}
}

// ReceiptJSON renders an eth_getTransactionReceipt result
func ReceiptJSON(r *types.Receipt) map[string]interface{} {
	logs := make([]map[string]interface{}, 0, len(r.Logs))
	for _, l := range r.Logs {
		topics := make([]string, 0, len(l.Topics))
		for _, topic := range l.Topics {
			topics = append(topics, topic.Hex())
		}
		logs = append(logs, map[string]interface{}{
			"address":          l.Address.Hex(),
			"topics":           topics,
			"data":             hexutil.Encode(l.Data),
			"blockNumber":      hexutil.EncodeUint64(l.BlockNumber),
			"transactionHash":  l.TxHash.Hex(),
			"transactionIndex": hexutil.EncodeUint64(uint64(l.TxIndex)),
			"blockHash":        l.BlockHash.Hex(),
			"logIndex":         hexutil.EncodeUint64(uint64(l.Index)),
			"removed":          false,
		})
	}
	return map[string]interface{}{
		"transactionHash": r.TxHash.Hex(),
		"blockNumber":     r.BlockNumber.String(),
		"status":          r.Status.String(),
		"logs":            logs,
	}
}
