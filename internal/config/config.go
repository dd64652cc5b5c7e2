package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xmhha/eventsync-go/abi"
	"github.com/0xmhha/eventsync-go/internal/constants"
	"gopkg.in/yaml.v3"
)

// Database backends for the settings store
const (
	BackendPebble = "pebble"
	BackendRedis  = "redis"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "EVENTSYNC_"

// Config holds all configuration for the event sync service
type Config struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Sync     SyncConfig     `yaml:"sync"`
	API      APIConfig      `yaml:"api"`
}

// RPCConfig holds chain client configuration
type RPCConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	// RateLimit is requests per second; 0 disables limiting
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// DatabaseConfig holds storage configuration. Events always live in pebble at
// Path; Backend selects where the sync settings are kept.
type DatabaseConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds redis settings store configuration
type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SyncConfig holds sync loop configuration
type SyncConfig struct {
	StartHeight  uint64        `yaml:"start_height"`
	IdleInterval time.Duration `yaml:"idle_interval"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// Threshold and Contracts seed the settings store when their keys are absent
	Threshold *int64   `yaml:"threshold"`
	Contracts []string `yaml:"contracts"`

	// Events enables decoders from the built-in catalog by name
	Events       []string            `yaml:"events"`
	CustomEvents []CustomEventConfig `yaml:"custom_events"`
}

// CustomEventConfig registers a decoder from an ABI fragment
type CustomEventConfig struct {
	Name  string `yaml:"name"`
	ABI   string `yaml:"abi"`
	Event string `yaml:"event"`
}

// APIConfig holds admin API configuration
type APIConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	EnableCORS         bool     `yaml:"enable_cors"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	EnableRateLimit    bool     `yaml:"enable_rate_limit"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	GraphQLPath        string   `yaml:"graphql_path"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.API.EnableRateLimit = true
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills in every zero value that has a default
func (c *Config) SetDefaults() {
	// RPC defaults
	if c.RPC.Endpoint == "" {
		c.RPC.Endpoint = constants.DefaultRPCEndpoint
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}
	if c.RPC.RateLimit > 0 && c.RPC.RateBurst == 0 {
		c.RPC.RateBurst = constants.DefaultRPCRateBurst
	}

	// Database defaults
	if c.Database.Backend == "" {
		c.Database.Backend = BackendPebble
	}
	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if c.Database.Redis.KeyPrefix == "" {
		c.Database.Redis.KeyPrefix = constants.DefaultRedisKeyPrefix
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Sync defaults
	if c.Sync.IdleInterval == 0 {
		c.Sync.IdleInterval = constants.DefaultIdleInterval
	}
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = constants.DefaultPollInterval
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.AllowedOrigins == nil {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}
	if c.API.GraphQLPath == "" {
		c.API.GraphQLPath = constants.DefaultGraphQLPath
	}
}

// LoadFromEnv overrides configuration from EVENTSYNC_* environment variables
func (c *Config) LoadFromEnv() error {
	// RPC configuration
	if endpoint := os.Getenv(EnvPrefix + "RPC_ENDPOINT"); endpoint != "" {
		c.RPC.Endpoint = endpoint
	}
	if err := envDuration("RPC_TIMEOUT", &c.RPC.Timeout); err != nil {
		return err
	}
	if v := os.Getenv(EnvPrefix + "RPC_RATE_LIMIT"); v != "" {
		val, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sRPC_RATE_LIMIT: %w", EnvPrefix, err)
		}
		c.RPC.RateLimit = val
	}
	if err := envInt("RPC_RATE_BURST", &c.RPC.RateBurst); err != nil {
		return err
	}

	// Database configuration
	if backend := os.Getenv(EnvPrefix + "DB_BACKEND"); backend != "" {
		c.Database.Backend = backend
	}
	if path := os.Getenv(EnvPrefix + "DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if addrs := os.Getenv(EnvPrefix + "REDIS_ADDRESSES"); addrs != "" {
		c.Database.Redis.Addresses = splitList(addrs)
	}
	if password := os.Getenv(EnvPrefix + "REDIS_PASSWORD"); password != "" {
		c.Database.Redis.Password = password
	}
	if err := envInt("REDIS_DB", &c.Database.Redis.DB); err != nil {
		return err
	}

	// Log configuration
	if level := os.Getenv(EnvPrefix + "LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv(EnvPrefix + "LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	// Sync configuration
	if v := os.Getenv(EnvPrefix + "START_HEIGHT"); v != "" {
		val, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sSTART_HEIGHT: %w", EnvPrefix, err)
		}
		c.Sync.StartHeight = val
	}
	if err := envDuration("IDLE_INTERVAL", &c.Sync.IdleInterval); err != nil {
		return err
	}
	if err := envDuration("POLL_INTERVAL", &c.Sync.PollInterval); err != nil {
		return err
	}
	if v := os.Getenv(EnvPrefix + "THRESHOLD"); v != "" {
		val, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sTHRESHOLD: %w", EnvPrefix, err)
		}
		c.Sync.Threshold = &val
	}
	if contracts := os.Getenv(EnvPrefix + "CONTRACTS"); contracts != "" {
		c.Sync.Contracts = splitList(contracts)
	}
	if events := os.Getenv(EnvPrefix + "EVENTS"); events != "" {
		c.Sync.Events = splitList(events)
	}

	// API configuration
	if err := envBool("API_ENABLED", &c.API.Enabled); err != nil {
		return err
	}
	if host := os.Getenv(EnvPrefix + "API_HOST"); host != "" {
		c.API.Host = host
	}
	if err := envInt("API_PORT", &c.API.Port); err != nil {
		return err
	}
	if err := envBool("API_RATE_LIMIT", &c.API.EnableRateLimit); err != nil {
		return err
	}

	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*dst = d
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*dst = b
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	// Validate RPC configuration
	if c.RPC.Endpoint == "" {
		return errors.New("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return errors.New("RPC timeout must be positive")
	}
	if c.RPC.RateLimit < 0 {
		return errors.New("RPC rate limit cannot be negative")
	}

	// Validate database configuration
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	switch c.Database.Backend {
	case BackendPebble:
	case BackendRedis:
		if len(c.Database.Redis.Addresses) == 0 {
			return errors.New("redis backend selected but no addresses configured")
		}
	default:
		return fmt.Errorf("invalid database backend %q, must be one of: pebble, redis", c.Database.Backend)
	}

	// Validate log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	// Validate sync configuration
	if c.Sync.IdleInterval <= 0 {
		return errors.New("idle interval must be positive")
	}
	if c.Sync.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.Sync.Threshold != nil && *c.Sync.Threshold < 0 {
		return errors.New("threshold cannot be negative")
	}
	for i, ev := range c.Sync.CustomEvents {
		if ev.Name == "" || ev.ABI == "" {
			return fmt.Errorf("custom event %d requires name and abi", i)
		}
		if err := abi.ValidateABI(ev.ABI, ev.Event); err != nil {
			return fmt.Errorf("custom event %s: %w", ev.Name, err)
		}
	}

	// Validate API configuration
	if c.API.Enabled && (c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort) {
		return fmt.Errorf("API port must be between %d and %d", constants.MinPort, constants.MaxPort)
	}

	return nil
}

// Load is a convenience method that loads configuration in the following order:
// 1. Load from file (if provided)
// 2. Load from environment variables (override file)
// 3. Fill defaults and validate
func Load(configFile string) (*Config, error) {
	cfg := &Config{}
	cfg.API.EnableRateLimit = true

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
