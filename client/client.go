package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/eventsync-go/types"
)

var (
	// ErrBlockNotFound is returned when the node answers null for a block
	ErrBlockNotFound = errors.New("block not found")

	// ErrReceiptNotFound is returned when the node has no receipt for a transaction
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrInvalidResponse is returned when a result cannot be parsed
	ErrInvalidResponse = errors.New("invalid response")
)

// Client is a JSON-RPC client for the three chain calls the sync loop makes
type Client struct {
	rpcClient *rpc.Client
	endpoint  string
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// Config holds client configuration
type Config struct {
	Endpoint string
	// Timeout bounds every call. Zero means no per-call timeout.
	Timeout time.Duration
	// RateLimit is the maximum number of calls per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
	Logger    *zap.Logger
}

// NewClient creates a new chain client. No request is sent until the first call.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialOptions(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	logger.Info("chain client ready",
		zap.String("endpoint", cfg.Endpoint),
		zap.Duration("timeout", cfg.Timeout),
		zap.Float64("rate_limit", cfg.RateLimit))

	return &Client{
		rpcClient: rpcClient,
		endpoint:  cfg.Endpoint,
		timeout:   cfg.Timeout,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// Close closes the client connection
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Endpoint returns the node URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// call waits for the rate limiter, applies the call timeout and returns the raw result
func (c *Client) call(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var raw json.RawMessage
	if err := c.rpcClient.CallContext(ctx, &raw, method, args...); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetLatestBlockNumber returns the chain head from eth_blockNumber
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}

	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("%w: block number %s", ErrInvalidResponse, raw)
	}

	height, err := ParseQuantity(result)
	if err != nil {
		return 0, fmt.Errorf("%w: block number %q", ErrInvalidResponse, result)
	}
	return height, nil
}

type rpcBlock struct {
	Transactions []types.Transaction `json:"transactions"`
}

// GetBlockTransactions returns the transactions of the block at height
func (c *Client) GetBlockTransactions(ctx context.Context, height uint64) ([]types.Transaction, error) {
	raw, err := c.call(ctx, "eth_getBlockByNumber", hexutil.EncodeUint64(height), true)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", height, err)
	}
	if isNull(raw) {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, height)
	}

	var block rpcBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("%w: block %d: %v", ErrInvalidResponse, height, err)
	}
	return block.Transactions, nil
}

// GetTransactionReceipt returns the receipt of a transaction
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	raw, err := c.call(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
	}
	if isNull(raw) {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, hash.Hex())
	}

	var receipt types.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("%w: receipt %s: %v", ErrInvalidResponse, hash.Hex(), err)
	}
	return &receipt, nil
}

// GetChainID returns the chain ID
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	raw, err := c.call(ctx, "eth_chainId")
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	var id hexutil.Big
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("%w: chain ID %s", ErrInvalidResponse, raw)
	}
	return id.ToInt(), nil
}

// ParseQuantity parses a 0x-prefixed base-16 quantity. Leading zeros are accepted.
func ParseQuantity(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("missing 0x prefix: %q", s)
	}
	digits := s[2:]
	if digits == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	return strconv.ParseUint(digits, 16, 64)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
