package constants

import "time"

// Settings Keys
const (
	// SettingBlockHeight holds the next block height to process. Owned by the sync loop.
	SettingBlockHeight = "monitor_block_height"

	// SettingBlockThreshold holds the finality threshold in blocks
	SettingBlockThreshold = "monitor_block_threshold"

	// SettingContractAddress holds the monitored contract addresses as a JSON array of strings
	SettingContractAddress = "monitor_contract_address"
)

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum size of request headers
	DefaultMaxHeaderBytes = 1 << 20 // 1 MB

	// DefaultGraphQLPath is the default path of the event query endpoint
	DefaultGraphQLPath = "/graphql"

	// MaxSettingBodyBytes caps the body of a settings update
	MaxSettingBodyBytes = 64 << 10 // 64 KB

	// DefaultRateLimitPerSecond is the default number of admin requests allowed per second per client
	DefaultRateLimitPerSecond = 10

	// DefaultRateLimitBurst is the default burst size for the admin rate limiter
	DefaultRateLimitBurst = 20
)

// RPC Client Constants
const (
	// DefaultRPCEndpoint is the default chain node endpoint
	DefaultRPCEndpoint = "http://localhost:8545"

	// DefaultRPCTimeout is the default timeout for a single RPC call
	DefaultRPCTimeout = 30 * time.Second

	// DefaultRPCRateBurst is the burst used when an RPC rate limit is set without one
	DefaultRPCRateBurst = 1
)

// Sync Loop Constants
const (
	// DefaultIdleInterval is how long the loop sleeps when no contract is monitored
	DefaultIdleInterval = time.Minute

	// DefaultPollInterval is how long the loop sleeps after each cycle
	DefaultPollInterval = 3 * time.Second

	// DefaultThreshold is the finality threshold used when none has been persisted
	DefaultThreshold = 0
)

// Storage Constants
const (
	// DefaultDatabasePath is the default pebble directory
	DefaultDatabasePath = "./data"

	// DefaultCacheSize is the default cache size in MB for PebbleDB
	DefaultCacheSize = 128 // MB

	// DefaultMaxOpenFiles is the default maximum number of open files for PebbleDB
	DefaultMaxOpenFiles = 1000

	// DefaultWriteBuffer is the default write buffer size in MB for PebbleDB
	DefaultWriteBuffer = 64 // MB

	// DefaultCompactionConcurrency is the default number of concurrent compactions
	DefaultCompactionConcurrency = 1

	// DefaultRedisKeyPrefix namespaces settings keys in redis
	DefaultRedisKeyPrefix = "eventsync:config:"
)

// Metrics Constants
const (
	// MetricsNamespace is the prometheus namespace for all service metrics
	MetricsNamespace = "eventsync"
)
