package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/eventsync-go/events"
	"github.com/0xmhha/eventsync-go/internal/constants"
	"github.com/0xmhha/eventsync-go/storage"
	"github.com/0xmhha/eventsync-go/types"
)

// Client defines the chain calls the sync loop makes
type Client interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	GetBlockTransactions(ctx context.Context, height uint64) ([]types.Transaction, error)
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// ProgressStore holds the cursor, the finality threshold and the monitored contracts.
// Absent values are reported with storage.ErrNotFound.
type ProgressStore interface {
	GetBlockHeight(ctx context.Context) (uint64, error)
	SetBlockHeight(ctx context.Context, height uint64) error
	GetThreshold(ctx context.Context) (int64, error)
	GetMonitoredAddresses(ctx context.Context) (types.AddressSet, error)
}

// Dispatcher hands receipts to event decoders
type Dispatcher interface {
	Dispatch(ctx context.Context, receipts []*types.Receipt) events.DispatchResult
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds fetcher configuration
type Config struct {
	// StartHeight is the cursor used when none has been persisted
	StartHeight uint64

	// IdleInterval is the sleep after a cycle with no monitored contract
	IdleInterval time.Duration

	// PollInterval is the sleep after every other cycle
	PollInterval time.Duration
}

// Validate validates the fetcher configuration
func (c *Config) Validate() error {
	if c.IdleInterval <= 0 {
		return fmt.Errorf("idle interval must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// State is the sync loop state
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateAdvancing State = "advancing"
)

// CycleResult describes one polling cycle
type CycleResult struct {
	// Idle is set when no contract is monitored and nothing was read from the chain
	Idle bool
	// Head is the chain head captured at the start of the cycle
	Head uint64
	// Cursor is the next block height to process after the cycle
	Cursor uint64
	// Threshold is the finality threshold in effect
	Threshold uint64
	// Processed is the number of blocks processed
	Processed uint64
}

// Status is a snapshot of the sync loop for the admin API
type Status struct {
	State       State     `json:"state"`
	Cursor      uint64    `json:"cursor"`
	Head        uint64    `json:"head"`
	Threshold   uint64    `json:"threshold"`
	Contracts   int       `json:"contracts"`
	LastCycleAt time.Time `json:"lastCycleAt"`
	LastError   string    `json:"lastError,omitempty"`
}

// Fetcher is the sync loop. It owns the cursor: no other writer may advance it.
type Fetcher struct {
	client     Client
	store      ProgressStore
	dispatcher Dispatcher
	collector  *ReceiptCollector
	config     *Config
	metrics    *Metrics
	logger     *zap.Logger
	sleep      SleepFunc

	mu     sync.RWMutex
	status Status
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client Client, store ProgressStore, dispatcher Dispatcher, config *Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:     client,
		store:      store,
		dispatcher: dispatcher,
		collector:  NewReceiptCollector(client, nil, logger),
		config:     config,
		logger:     logger,
		sleep:      sleepContext,
		status:     Status{State: StateIdle},
	}
}

// SetMetrics enables Prometheus metrics
func (f *Fetcher) SetMetrics(metrics *Metrics) {
	f.metrics = metrics
	f.collector.metrics = metrics
}

// SetSleepFunc replaces the function used to wait between cycles
func (f *Fetcher) SetSleepFunc(sleep SleepFunc) {
	if sleep != nil {
		f.sleep = sleep
	}
}

// State returns the current loop state
func (f *Fetcher) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status.State
}

// Status returns a snapshot of the loop
func (f *Fetcher) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

func (f *Fetcher) setState(state State) {
	f.mu.Lock()
	f.status.State = state
	f.mu.Unlock()
}

func (f *Fetcher) setCursor(cursor uint64) {
	f.mu.Lock()
	f.status.Cursor = cursor
	f.mu.Unlock()
}

func (f *Fetcher) finishCycle(result CycleResult, contracts int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.status.LastCycleAt = time.Now()
	f.status.LastError = ""
	if err != nil {
		f.status.LastError = err.Error()
	}
	if result.Idle {
		f.status.State = StateIdle
		f.status.Contracts = 0
		return
	}
	f.status.State = StatePolling
	f.status.Contracts = contracts
	if err == nil {
		f.status.Head = result.Head
		f.status.Cursor = result.Cursor
		f.status.Threshold = result.Threshold
	}
}

// Run polls the chain until ctx is cancelled and returns ctx.Err()
func (f *Fetcher) Run(ctx context.Context) error {
	f.logger.Info("Starting fetcher",
		zap.Uint64("start_height", f.config.StartHeight),
		zap.Duration("poll_interval", f.config.PollInterval),
		zap.Duration("idle_interval", f.config.IdleInterval),
	)

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Fetcher stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		default:
		}

		result, err := f.RunCycle(ctx)
		if err != nil {
			f.logger.Error("Sync cycle made no progress", zap.Error(err))
		}

		wait := f.config.PollInterval
		if result.Idle {
			wait = f.config.IdleInterval
		}

		if err := f.sleep(ctx, wait); err != nil {
			f.logger.Info("Fetcher stopped", zap.Error(err))
			return err
		}
	}
}

// RunCycle reads the sync settings and the chain head, then processes every
// block at or below head-threshold. Block and cursor write failures end the
// drain early without an error; the error return is for cycles that could not
// start.
func (f *Fetcher) RunCycle(ctx context.Context) (result CycleResult, err error) {
	start := time.Now()
	f.setState(StatePolling)

	var contracts int
	defer func() {
		f.metrics.observeCycle(time.Since(start).Seconds())
		f.finishCycle(result, contracts, err)
	}()

	cursor, err := f.loadCursor(ctx)
	if err != nil {
		f.metrics.recordCycleError("cursor")
		return result, err
	}
	result.Cursor = cursor

	threshold, err := f.loadThreshold(ctx)
	if err != nil {
		f.metrics.recordCycleError("threshold")
		return result, err
	}
	result.Threshold = threshold

	head, headErr := f.client.GetLatestBlockNumber(ctx)

	monitored, err := f.store.GetMonitoredAddresses(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrInvalidSetting) {
		f.metrics.recordCycleError("contracts")
		return result, fmt.Errorf("failed to load monitored contracts: %w", err)
	}
	if err != nil || monitored.Len() == 0 {
		f.logger.Warn("No contract is monitored, idling",
			zap.Duration("idle_interval", f.config.IdleInterval),
			zap.Error(err))
		f.metrics.recordIdle()
		result.Idle = true
		return result, nil
	}
	contracts = monitored.Len()

	if headErr != nil {
		f.metrics.recordCycleError("head")
		return result, fmt.Errorf("failed to get chain head: %w", headErr)
	}
	result.Head = head
	f.metrics.recordProgress(head, cursor, threshold, contracts)

	// head-threshold is only evaluated when it cannot underflow
	for threshold <= head && cursor <= head-threshold {
		if ctx.Err() != nil {
			break
		}

		f.setState(StateAdvancing)
		if err := f.processBlock(ctx, cursor, head, monitored); err != nil {
			if ctx.Err() != nil {
				break
			}
			f.metrics.recordCycleError("block")
			f.logger.Error("Failed to process block, will retry next cycle",
				zap.Uint64("height", cursor),
				zap.Error(err))
			break
		}

		if err := f.store.SetBlockHeight(ctx, cursor+1); err != nil {
			f.metrics.recordCycleError("persist")
			f.logger.Error("Failed to persist cursor, block will be reprocessed",
				zap.Uint64("height", cursor),
				zap.Error(err))
			break
		}

		cursor++
		result.Cursor = cursor
		result.Processed++
		f.setCursor(cursor)
	}

	if result.Processed > 0 {
		f.logger.Info("Synced blocks",
			zap.Uint64("processed", result.Processed),
			zap.Uint64("cursor", cursor),
			zap.Uint64("head", head),
			zap.Uint64("threshold", threshold),
		)
	}

	return result, nil
}

// processBlock runs fetch, filter, collect and dispatch for one block
func (f *Fetcher) processBlock(ctx context.Context, height, head uint64, monitored types.AddressSet) error {
	start := time.Now()

	txs, err := f.client.GetBlockTransactions(ctx, height)
	if err != nil {
		return err
	}

	matched := FilterByRecipient(txs, monitored)
	receipts := f.collector.Collect(ctx, matched)

	var result events.DispatchResult
	if len(receipts) > 0 {
		result = f.dispatcher.Dispatch(ctx, receipts)
	}

	// A cancelled block may be incomplete and must not advance the cursor
	if err := ctx.Err(); err != nil {
		return err
	}

	f.metrics.recordBlock(height+1, head, len(matched), result, time.Since(start).Seconds())

	if len(matched) > 0 {
		f.logger.Debug("Processed block",
			zap.Uint64("height", height),
			zap.Int("transactions", len(txs)),
			zap.Int("matched", len(matched)),
			zap.Int("receipts", len(receipts)),
			zap.Int("handled", result.Handled),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	return nil
}

func (f *Fetcher) loadCursor(ctx context.Context) (uint64, error) {
	cursor, err := f.store.GetBlockHeight(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return f.config.StartHeight, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load cursor: %w", err)
	}
	return cursor, nil
}

func (f *Fetcher) loadThreshold(ctx context.Context) (uint64, error) {
	threshold, err := f.store.GetThreshold(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return constants.DefaultThreshold, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load threshold: %w", err)
	}
	if threshold < 0 {
		f.logger.Warn("Negative finality threshold, using 0", zap.Int64("threshold", threshold))
		return 0, nil
	}
	return uint64(threshold), nil
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
