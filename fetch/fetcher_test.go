package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/eventsync-go/client"
	"github.com/0xmhha/eventsync-go/events"
	"github.com/0xmhha/eventsync-go/internal/testutil"
	"github.com/0xmhha/eventsync-go/storage"
	"github.com/0xmhha/eventsync-go/types"
)

// mockClient is a mock implementation of the chain client
type mockClient struct {
	mu        sync.Mutex
	head      uint64
	headErr   error
	blocks    map[uint64][]types.Transaction
	blockErrs map[uint64]error
	receipts  map[common.Hash]*types.Receipt
	fetched   []uint64
	headCalls int
	// nextHead replaces head after the first head query when non-zero
	nextHead uint64
}

func newMockClient(head uint64) *mockClient {
	return &mockClient{
		head:      head,
		blocks:    make(map[uint64][]types.Transaction),
		blockErrs: make(map[uint64]error),
		receipts:  make(map[common.Hash]*types.Receipt),
	}
}

func (m *mockClient) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headCalls++
	head := m.head
	if m.nextHead != 0 {
		m.head = m.nextHead
	}
	return head, m.headErr
}

func (m *mockClient) GetBlockTransactions(ctx context.Context, height uint64) ([]types.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.blockErrs[height]; err != nil {
		return nil, err
	}
	m.fetched = append(m.fetched, height)
	return m.blocks[height], nil
}

func (m *mockClient) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	receipt, ok := m.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", client.ErrReceiptNotFound, hash.Hex())
	}
	return receipt, nil
}

func (m *mockClient) fetchedHeights() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.fetched...)
}

// mockStore is an in-memory ProgressStore
type mockStore struct {
	mu           sync.Mutex
	height       *uint64
	threshold    *int64
	addresses    types.AddressSet
	addressesErr error
	setErrAt     map[uint64]error
	writes       []uint64
}

func newMockStore(threshold int64, addresses ...string) *mockStore {
	return &mockStore{
		threshold: &threshold,
		addresses: types.NewAddressSet(addresses...),
		setErrAt:  make(map[uint64]error),
	}
}

func (m *mockStore) GetBlockHeight(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.height == nil {
		return 0, storage.ErrNotFound
	}
	return *m.height, nil
}

func (m *mockStore) SetBlockHeight(ctx context.Context, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setErrAt[height]; err != nil {
		return err
	}
	m.height = &height
	m.writes = append(m.writes, height)
	return nil
}

func (m *mockStore) GetThreshold(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.threshold == nil {
		return 0, storage.ErrNotFound
	}
	return *m.threshold, nil
}

func (m *mockStore) GetMonitoredAddresses(ctx context.Context) (types.AddressSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addressesErr != nil {
		return nil, m.addressesErr
	}
	if m.addresses == nil {
		return nil, storage.ErrNotFound
	}
	return m.addresses, nil
}

func (m *mockStore) cursor() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.height == nil {
		return 0, false
	}
	return *m.height, true
}

func (m *mockStore) setCursor(h uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = &h
}

// mockDispatcher records the receipts it is given
type mockDispatcher struct {
	mu       sync.Mutex
	received []*types.Receipt
}

func (m *mockDispatcher) Dispatch(ctx context.Context, receipts []*types.Receipt) events.DispatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, receipts...)
	return events.DispatchResult{Handled: len(receipts)}
}

func (m *mockDispatcher) txHashes() []common.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	hashes := make([]common.Hash, 0, len(m.received))
	for _, r := range m.received {
		hashes = append(hashes, r.TxHash)
	}
	return hashes
}

const monitoredAddr = "0x00000000000000000000000000000000000000aa"

func newTestFetcher(t *testing.T, c Client, s ProgressStore, d Dispatcher) *Fetcher {
	t.Helper()
	return NewFetcher(c, s, d, &Config{
		StartHeight:  0,
		IdleInterval: time.Minute,
		PollInterval: 3 * time.Second,
	}, testutil.NewTestLogger(t))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{IdleInterval: time.Minute, PollInterval: time.Second}, false},
		{"zero idle", Config{PollInterval: time.Second}, true},
		{"zero poll", Config{IdleInterval: time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunCycle_DrainsUpToThreshold(t *testing.T) {
	c := newMockClient(100)
	s := newMockStore(10, monitoredAddr)
	s.setCursor(0)
	f := newTestFetcher(t, c, s, &mockDispatcher{})

	result, err := f.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(91), result.Processed)
	assert.Equal(t, uint64(91), result.Cursor)
	assert.Equal(t, uint64(100), result.Head)

	fetched := c.fetchedHeights()
	require.Len(t, fetched, 91)
	for i, h := range fetched {
		assert.Equal(t, uint64(i), h, "blocks must be processed in order without gaps")
	}

	cursor, ok := s.cursor()
	require.True(t, ok)
	assert.Equal(t, uint64(91), cursor)

	// Every processed block persisted exactly cursor+1
	for i, w := range s.writes {
		assert.Equal(t, uint64(i+1), w)
	}

	// Nothing left until the head moves
	result, err = f.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), result.Processed)
	assert.Len(t, c.fetchedHeights(), 91)
	assert.Equal(t, StatePolling, f.State())
}

func TestRunCycle_HeadCapturedOncePerCycle(t *testing.T) {
	c := newMockClient(100)
	c.nextHead = 200
	s := newMockStore(10, monitoredAddr)
	s.setCursor(0)
	f := newTestFetcher(t, c, s, &mockDispatcher{})

	result, err := f.RunCycle(context.Background())
	require.NoError(t, err)

	// The head moving mid-cycle must not extend the drain
	assert.Equal(t, 1, c.headCalls)
	assert.Equal(t, uint64(100), result.Head)
	assert.Equal(t, uint64(91), result.Cursor)
	assert.Len(t, c.fetchedHeights(), 91)

	cursor, ok := s.cursor()
	require.True(t, ok)
	assert.Equal(t, uint64(91), cursor)
}

func TestRunCycle_ThresholdAboveHead(t *testing.T) {
	c := newMockClient(5)
	s := newMockStore(10, monitoredAddr)
	f := newTestFetcher(t, c, s, &mockDispatcher{})

	result, err := f.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), result.Processed)
	assert.Empty(t, c.fetchedHeights())
}

func TestRunCycle_StartHeightAndDefaults(t *testing.T) {
	c := newMockClient(12)
	s := newMockStore(0, monitoredAddr)
	s.threshold = nil // absent threshold means 0

	f := NewFetcher(c, s, &mockDispatcher{}, &Config{
		StartHeight:  10,
		IdleInterval: time.Minute,
		PollInterval: time.Second,
	}, nil)

	result, err := f.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 11, 12}, c.fetchedHeights())
	assert.Equal(t, uint64(13), result.Cursor)
}

func TestRunCycle_NegativeThresholdClamped(t *testing.T) {
	c := newMockClient(3)
	s := newMockStore(-5, monitoredAddr)
	s.setCursor(3)
	f := newTestFetcher(t, c, s, &mockDispatcher{})

	result, err := f.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), result.Threshold)
	assert.Equal(t, []uint64{3}, c.fetchedHeights())
	assert.Equal(t, uint64(4), result.Cursor)
}

func TestRunCycle_MixedCaseRecipientMatches(t *testing.T) {
	c := newMockClient(1)
	s := newMockStore(0, "0xabcdef0000000000000000000000000000000001")
	s.setCursor(1)

	tx := testutil.NewTestTransaction(7, "0xABCDEF0000000000000000000000000000000001")
	other := testutil.NewTestTransaction(8, "0x0000000000000000000000000000000000000002")
	creation := testutil.NewTestTransaction(9, "")
	c.blocks[1] = []types.Transaction{tx, other, creation}
	c.receipts[tx.Hash] = testutil.NewTestReceipt(tx.Hash, 1)
	c.receipts[other.Hash] = testutil.NewTestReceipt(other.Hash, 1)

	d := &mockDispatcher{}
	f := newTestFetcher(t, c, s, d)

	_, err := f.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{tx.Hash}, d.txHashes())
}

func TestRunCycle_Idle(t *testing.T) {
	tests := []struct {
		name  string
		store func() *mockStore
	}{
		{"absent", func() *mockStore { s := newMockStore(0); s.addresses = nil; return s }},
		{"empty", func() *mockStore { return newMockStore(0) }},
		{"malformed", func() *mockStore {
			s := newMockStore(0)
			s.addressesErr = fmt.Errorf("%w: bad json", storage.ErrInvalidSetting)
			return s
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockClient(100)
			s := tt.store()
			f := newTestFetcher(t, c, s, &mockDispatcher{})

			result, err := f.RunCycle(context.Background())
			require.NoError(t, err)
			assert.True(t, result.Idle)
			assert.Empty(t, c.fetchedHeights())
			assert.Equal(t, StateIdle, f.State())
			_, persisted := s.cursor()
			assert.False(t, persisted)
		})
	}
}

func TestRunCycle_HeadFailure(t *testing.T) {
	c := newMockClient(100)
	c.headErr = errors.New("connection refused")
	s := newMockStore(0, monitoredAddr)
	f := newTestFetcher(t, c, s, &mockDispatcher{})

	_, err := f.RunCycle(context.Background())
	assert.Error(t, err)
	assert.Empty(t, c.fetchedHeights())
	assert.Contains(t, f.Status().LastError, "connection refused")
}

func TestRunCycle_StoreFailures(t *testing.T) {
	t.Run("malformed threshold", func(t *testing.T) {
		c := newMockClient(100)
		s := &errStore{mockStore: newMockStore(0, monitoredAddr), thresholdErr: storage.ErrInvalidSetting}
		_, err := newTestFetcher(t, c, s, &mockDispatcher{}).RunCycle(context.Background())
		assert.ErrorIs(t, err, storage.ErrInvalidSetting)
		assert.Empty(t, c.fetchedHeights())
	})

	t.Run("cursor unreadable", func(t *testing.T) {
		c := newMockClient(100)
		s := &errStore{mockStore: newMockStore(0, monitoredAddr), heightErr: storage.ErrClosed}
		_, err := newTestFetcher(t, c, s, &mockDispatcher{}).RunCycle(context.Background())
		assert.ErrorIs(t, err, storage.ErrClosed)
	})

	t.Run("contracts unreadable", func(t *testing.T) {
		c := newMockClient(100)
		s := newMockStore(0, monitoredAddr)
		s.addressesErr = storage.ErrClosed
		result, err := newTestFetcher(t, c, s, &mockDispatcher{}).RunCycle(context.Background())
		assert.ErrorIs(t, err, storage.ErrClosed)
		assert.False(t, result.Idle)
	})
}

// errStore fails selected reads
type errStore struct {
	*mockStore
	heightErr    error
	thresholdErr error
}

func (e *errStore) GetBlockHeight(ctx context.Context) (uint64, error) {
	if e.heightErr != nil {
		return 0, e.heightErr
	}
	return e.mockStore.GetBlockHeight(ctx)
}

func (e *errStore) GetThreshold(ctx context.Context) (int64, error) {
	if e.thresholdErr != nil {
		return 0, e.thresholdErr
	}
	return e.mockStore.GetThreshold(ctx)
}

func TestRunCycle_BlockFailureStopsDrain(t *testing.T) {
	c := newMockClient(10)
	c.blockErrs[3] = errors.New("timeout")
	s := newMockStore(0, monitoredAddr)
	s.setCursor(0)
	f := newTestFetcher(t, c, s, &mockDispatcher{})

	result, err := f.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), result.Processed)
	assert.Equal(t, []uint64{0, 1, 2}, c.fetchedHeights())

	cursor, _ := s.cursor()
	assert.Equal(t, uint64(3), cursor, "failed block must not advance the cursor")

	// The failing block is retried first on the next cycle
	delete(c.blockErrs, 3)
	result, err = f.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), c.fetchedHeights()[3])
	assert.Equal(t, uint64(11), result.Cursor)
}

func TestRunCycle_CursorWriteFailure(t *testing.T) {
	c := newMockClient(10)
	s := newMockStore(0, monitoredAddr)
	s.setCursor(0)
	s.setErrAt[2] = errors.New("disk full")
	f := newTestFetcher(t, c, s, &mockDispatcher{})

	result, err := f.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Processed)
	assert.Equal(t, []uint64{0, 1}, c.fetchedHeights())

	// Block 1 is reprocessed once the store recovers
	delete(s.setErrAt, 2)
	_, err = f.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.fetchedHeights()[2])
}

func TestRunCycle_ZeroMatchesStillAdvance(t *testing.T) {
	c := newMockClient(2)
	c.blocks[1] = []types.Transaction{testutil.NewTestTransaction(1, "0x0000000000000000000000000000000000000bad")}
	s := newMockStore(0, monitoredAddr)
	d := &mockDispatcher{}
	f := newTestFetcher(t, c, s, d)

	result, err := f.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), result.Cursor)
	assert.Empty(t, d.txHashes())
}

func TestRunCycle_Metrics(t *testing.T) {
	c := newMockClient(100)
	s := newMockStore(10, monitoredAddr)
	s.setCursor(0)
	f := newTestFetcher(t, c, s, &mockDispatcher{})

	metrics := NewMetrics(prometheus.NewRegistry(), "test")
	f.SetMetrics(metrics)

	_, err := f.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 91.0, promtestutil.ToFloat64(metrics.BlocksProcessed))
	assert.Equal(t, 91.0, promtestutil.ToFloat64(metrics.Cursor))
	assert.Equal(t, 100.0, promtestutil.ToFloat64(metrics.ChainHead))
	assert.Equal(t, 9.0, promtestutil.ToFloat64(metrics.Lag))
	assert.Equal(t, 1, promtestutil.CollectAndCount(metrics.CycleDuration))
}

func TestRun_SleepsAndStops(t *testing.T) {
	c := newMockClient(100)
	s := newMockStore(10, monitoredAddr)
	s.setCursor(0)
	f := newTestFetcher(t, c, s, &mockDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps []time.Duration
	f.SetSleepFunc(func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	})

	err := f.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, sleeps)

	cursor, _ := s.cursor()
	assert.Equal(t, uint64(91), cursor)
	assert.Len(t, c.fetchedHeights(), 91)
}

func TestRun_IdleInterval(t *testing.T) {
	c := newMockClient(100)
	s := newMockStore(0)
	f := newTestFetcher(t, c, s, &mockDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var slept time.Duration
	f.SetSleepFunc(func(ctx context.Context, d time.Duration) error {
		slept = d
		cancel()
		return ctx.Err()
	})

	assert.ErrorIs(t, f.Run(ctx), context.Canceled)
	assert.Equal(t, time.Minute, slept)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	c := newMockClient(100)
	f := newTestFetcher(t, c, newMockStore(0, monitoredAddr), &mockDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.Run(ctx), context.Canceled)
	assert.Equal(t, 0, c.headCalls)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
