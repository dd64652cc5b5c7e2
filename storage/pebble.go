package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// PebbleStorage stores sync settings and decoded events in PebbleDB
type PebbleStorage struct {
	db     *pebble.DB
	config *Config
	logger *zap.Logger
	closed atomic.Bool
}

// NewPebbleStorage creates a new PebbleDB storage
func NewPebbleStorage(cfg *Config) (*PebbleStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := &pebble.Options{
		Cache:                    pebble.NewCache(int64(cfg.Cache) << 20), // Convert MB to bytes
		MaxOpenFiles:             cfg.MaxOpenFiles,
		MemTableSize:             uint64(cfg.WriteBuffer) << 20,
		DisableWAL:               cfg.DisableWAL,
		MaxConcurrentCompactions: func() int { return cfg.CompactionConcurrency },
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStorage{
		db:     db,
		config: cfg,
		logger: zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for the storage
func (s *PebbleStorage) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *PebbleStorage) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close closes the storage and releases resources
func (s *PebbleStorage) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the value of a setting
func (s *PebbleStorage) Get(ctx context.Context, key string) (string, error) {
	if err := s.ensureNotClosed(); err != nil {
		return "", err
	}

	value, closer, err := s.db.Get(ConfigKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	defer closer.Close()

	return string(value), nil
}

// Set durably writes the value of a setting
func (s *PebbleStorage) Set(ctx context.Context, key, value string) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.db.Set(ConfigKey(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// SaveEvents writes all records in a single batch
func (s *PebbleStorage) SaveEvents(ctx context.Context, records []*EventRecord) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, record := range records {
		data, err := EncodeEventRecord(record)
		if err != nil {
			return err
		}
		if err := batch.Set(record.Key(), data, nil); err != nil {
			return fmt.Errorf("failed to stage event: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}

	s.logger.Debug("saved events", zap.Int("count", len(records)))
	return nil
}

// GetEvent returns a single event by its location
func (s *PebbleStorage) GetEvent(ctx context.Context, blockNumber, txIndex uint64, logIndex uint) (*EventRecord, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, closer, err := s.db.Get(EventKey(blockNumber, txIndex, logIndex))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	defer closer.Close()

	return DecodeEventRecord(value)
}

// GetEventsByBlock returns all events of a block ordered by tx and log index
func (s *PebbleStorage) GetEventsByBlock(ctx context.Context, blockNumber uint64) ([]*EventRecord, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := EventBlockPrefix(blockNumber)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var records []*EventRecord
	for iter.First(); iter.Valid(); iter.Next() {
		record, err := DecodeEventRecord(iter.Value())
		if err != nil {
			s.logger.Warn("skipping undecodable event",
				zap.ByteString("key", iter.Key()),
				zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}
	return records, nil
}
