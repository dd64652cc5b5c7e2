package storage

import (
	"context"
	"errors"

	"github.com/0xmhha/eventsync-go/internal/constants"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when data cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrInvalidSetting is returned when a setting value cannot be parsed or is rejected
	ErrInvalidSetting = errors.New("invalid setting")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")
)

// KVStore is the string key-value store backing the sync settings.
// Get returns ErrNotFound for absent keys.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// EventWriter persists decoded events
type EventWriter interface {
	// SaveEvents writes all records atomically
	SaveEvents(ctx context.Context, records []*EventRecord) error
}

// EventReader reads decoded events back
type EventReader interface {
	// GetEvent returns a single event by its location
	GetEvent(ctx context.Context, blockNumber, txIndex uint64, logIndex uint) (*EventRecord, error)

	// GetEventsByBlock returns all events of a block ordered by tx and log index
	GetEventsByBlock(ctx context.Context, blockNumber uint64) ([]*EventRecord, error)
}

// Config holds storage configuration
type Config struct {
	// Path to the database directory
	Path string

	// Cache size in MB (default: 128)
	Cache int

	// MaxOpenFiles is the maximum number of open files (default: 1000)
	MaxOpenFiles int

	// WriteBuffer size in MB (default: 64)
	WriteBuffer int

	// DisableWAL disables write-ahead log (not recommended)
	DisableWAL bool

	// CompactionConcurrency for background compaction (default: 1)
	CompactionConcurrency int
}

// DefaultConfig returns a default configuration
func DefaultConfig(path string) *Config {
	return &Config{
		Path:                  path,
		Cache:                 constants.DefaultCacheSize,
		MaxOpenFiles:          constants.DefaultMaxOpenFiles,
		WriteBuffer:           constants.DefaultWriteBuffer,
		DisableWAL:            false,
		CompactionConcurrency: constants.DefaultCompactionConcurrency,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	if c.WriteBuffer < 0 {
		return errors.New("write buffer size cannot be negative")
	}
	if c.CompactionConcurrency < 1 {
		return errors.New("compaction concurrency must be at least 1")
	}
	return nil
}
