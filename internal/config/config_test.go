package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func int64Ptr(v int64) *int64 { return &v }

func validConfig() *Config {
	cfg := NewConfig()
	cfg.Database.Path = "/tmp/eventsync-test"
	return cfg
}

// TestNewConfig tests creating a config with defaults
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	if cfg == nil {
		t.Fatal("NewConfig() returned nil")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected default log format 'json', got %q", cfg.Log.Format)
	}
	if cfg.Database.Backend != BackendPebble {
		t.Errorf("Expected default backend pebble, got %q", cfg.Database.Backend)
	}
	if cfg.Sync.IdleInterval != time.Minute {
		t.Errorf("Expected default idle interval 1m, got %v", cfg.Sync.IdleInterval)
	}
	if cfg.Sync.PollInterval != 3*time.Second {
		t.Errorf("Expected default poll interval 3s, got %v", cfg.Sync.PollInterval)
	}
	if cfg.Sync.Threshold != nil {
		t.Errorf("Expected no threshold seed by default, got %d", *cfg.Sync.Threshold)
	}
	if !cfg.API.EnableRateLimit {
		t.Error("Expected API rate limiting to be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.RPC.Endpoint = "" },
			wantErr: true,
			errMsg:  "RPC endpoint is required",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.RPC.Timeout = 0 },
			wantErr: true,
			errMsg:  "RPC timeout must be positive",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.RPC.RateLimit = -1 },
			wantErr: true,
			errMsg:  "rate limit",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
			errMsg:  "database path is required",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Database.Backend = "mysql" },
			wantErr: true,
			errMsg:  "invalid database backend",
		},
		{
			name:    "redis without addresses",
			mutate:  func(c *Config) { c.Database.Backend = BackendRedis },
			wantErr: true,
			errMsg:  "no addresses",
		},
		{
			name: "redis with addresses",
			mutate: func(c *Config) {
				c.Database.Backend = BackendRedis
				c.Database.Redis.Addresses = []string{"localhost:6379"}
			},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
			errMsg:  "invalid log format",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Sync.PollInterval = 0 },
			wantErr: true,
			errMsg:  "poll interval",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.Sync.Threshold = int64Ptr(-3) },
			wantErr: true,
			errMsg:  "threshold cannot be negative",
		},
		{
			name:    "custom event without abi",
			mutate:  func(c *Config) { c.Sync.CustomEvents = []CustomEventConfig{{Name: "x"}} },
			wantErr: true,
			errMsg:  "requires name and abi",
		},
		{
			name: "custom event with invalid abi",
			mutate: func(c *Config) {
				c.Sync.CustomEvents = []CustomEventConfig{{Name: "x", ABI: "not json"}}
			},
			wantErr: true,
			errMsg:  "invalid ABI",
		},
		{
			name: "custom event missing from abi",
			mutate: func(c *Config) {
				c.Sync.CustomEvents = []CustomEventConfig{{Name: "x", Event: "Pong", ABI: `[{"type":"event","name":"Ping","inputs":[]}]`}}
			},
			wantErr: true,
			errMsg:  "custom event x",
		},
		{
			name: "valid custom event",
			mutate: func(c *Config) {
				c.Sync.CustomEvents = []CustomEventConfig{{Name: "x", Event: "Ping", ABI: `[{"type":"event","name":"Ping","inputs":[]}]`}}
			},
		},
		{
			name: "api port out of range",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: true,
			errMsg:  "API port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

// TestLoadFromEnv tests loading configuration from environment variables
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EVENTSYNC_RPC_ENDPOINT", "http://node:8545")
	t.Setenv("EVENTSYNC_RPC_TIMEOUT", "5s")
	t.Setenv("EVENTSYNC_RPC_RATE_LIMIT", "2.5")
	t.Setenv("EVENTSYNC_DB_BACKEND", "redis")
	t.Setenv("EVENTSYNC_REDIS_ADDRESSES", "r1:6379, r2:6379")
	t.Setenv("EVENTSYNC_LOG_LEVEL", "debug")
	t.Setenv("EVENTSYNC_START_HEIGHT", "1000")
	t.Setenv("EVENTSYNC_THRESHOLD", "12")
	t.Setenv("EVENTSYNC_CONTRACTS", "0xAAA,0xbbb")
	t.Setenv("EVENTSYNC_POLL_INTERVAL", "500ms")
	t.Setenv("EVENTSYNC_API_ENABLED", "true")
	t.Setenv("EVENTSYNC_API_PORT", "9090")

	cfg := NewConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.RPC.Endpoint != "http://node:8545" {
		t.Errorf("RPC.Endpoint = %q", cfg.RPC.Endpoint)
	}
	if cfg.RPC.Timeout != 5*time.Second {
		t.Errorf("RPC.Timeout = %v", cfg.RPC.Timeout)
	}
	if cfg.RPC.RateLimit != 2.5 {
		t.Errorf("RPC.RateLimit = %v", cfg.RPC.RateLimit)
	}
	if cfg.Database.Backend != BackendRedis {
		t.Errorf("Database.Backend = %q", cfg.Database.Backend)
	}
	if !reflect.DeepEqual(cfg.Database.Redis.Addresses, []string{"r1:6379", "r2:6379"}) {
		t.Errorf("Redis.Addresses = %v", cfg.Database.Redis.Addresses)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Sync.StartHeight != 1000 {
		t.Errorf("Sync.StartHeight = %d", cfg.Sync.StartHeight)
	}
	if cfg.Sync.Threshold == nil || *cfg.Sync.Threshold != 12 {
		t.Errorf("Sync.Threshold = %v", cfg.Sync.Threshold)
	}
	if !reflect.DeepEqual(cfg.Sync.Contracts, []string{"0xAAA", "0xbbb"}) {
		t.Errorf("Sync.Contracts = %v", cfg.Sync.Contracts)
	}
	if cfg.Sync.PollInterval != 500*time.Millisecond {
		t.Errorf("Sync.PollInterval = %v", cfg.Sync.PollInterval)
	}
	if !cfg.API.Enabled || cfg.API.Port != 9090 {
		t.Errorf("API = %+v", cfg.API)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"EVENTSYNC_RPC_TIMEOUT", "soon"},
		{"EVENTSYNC_RPC_RATE_LIMIT", "fast"},
		{"EVENTSYNC_REDIS_DB", "zero"},
		{"EVENTSYNC_START_HEIGHT", "-1"},
		{"EVENTSYNC_THRESHOLD", "ten"},
		{"EVENTSYNC_IDLE_INTERVAL", "1 minute"},
		{"EVENTSYNC_API_PORT", "http"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			err := NewConfig().LoadFromEnv()
			if err == nil {
				t.Fatalf("expected error for %s=%s", tt.env, tt.value)
			}
			if !strings.Contains(err.Error(), tt.env) {
				t.Errorf("error %q should name %s", err, tt.env)
			}
		})
	}
}

// TestLoadFromFile tests loading configuration from a YAML file
func TestLoadFromFile(t *testing.T) {
	content := `
rpc:
  endpoint: http://localhost:8545
  timeout: 10s
  rate_limit: 20
database:
  backend: pebble
  path: /data/eventsync
log:
  level: warn
  format: console
sync:
  start_height: 13000000
  poll_interval: 2s
  threshold: 6
  contracts:
    - "0x00000000000000000000000000000000000000aa"
  events: [Transfer, Approval]
  custom_events:
    - name: Ping
      event: Ping
      abi: '[{"type":"event","name":"Ping","inputs":[]}]'
api:
  enabled: true
  port: 8088
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg := NewConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.RPC.Timeout != 10*time.Second || cfg.RPC.RateLimit != 20 {
		t.Errorf("RPC = %+v", cfg.RPC)
	}
	if cfg.Database.Path != "/data/eventsync" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Sync.StartHeight != 13000000 || cfg.Sync.PollInterval != 2*time.Second {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Sync.Threshold == nil || *cfg.Sync.Threshold != 6 {
		t.Errorf("Sync.Threshold = %v", cfg.Sync.Threshold)
	}
	if len(cfg.Sync.Contracts) != 1 || len(cfg.Sync.Events) != 2 {
		t.Errorf("Sync contracts/events = %v / %v", cfg.Sync.Contracts, cfg.Sync.Events)
	}
	if len(cfg.Sync.CustomEvents) != 1 || cfg.Sync.CustomEvents[0].Event != "Ping" {
		t.Errorf("Sync.CustomEvents = %+v", cfg.Sync.CustomEvents)
	}
	if !cfg.API.Enabled || cfg.API.Port != 8088 {
		t.Errorf("API = %+v", cfg.API)
	}
}

func TestLoadFromFileNotFound(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("rpc: [unclosed"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg := NewConfig()
	if err := cfg.LoadFromFile(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

// TestLoadWithEnvOverride tests that environment variables override the file
func TestLoadWithEnvOverride(t *testing.T) {
	content := `
rpc:
  endpoint: http://file:8545
log:
  level: info
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("EVENTSYNC_RPC_ENDPOINT", "http://env:8545")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPC.Endpoint != "http://env:8545" {
		t.Errorf("RPC.Endpoint = %q, want env override", cfg.RPC.Endpoint)
	}
	if cfg.RPC.Timeout != 30*time.Second {
		t.Errorf("RPC.Timeout = %v, want default", cfg.RPC.Timeout)
	}
	if !cfg.API.EnableRateLimit {
		t.Error("expected rate limiting to stay enabled when the file omits it")
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	content := `
log:
  level: loud
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "./data" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Database.Redis.KeyPrefix != "eventsync:config:" {
		t.Errorf("Redis.KeyPrefix = %q", cfg.Database.Redis.KeyPrefix)
	}
}

func TestSetDefaultsKeepsValues(t *testing.T) {
	cfg := &Config{}
	cfg.RPC.RateLimit = 5
	cfg.Log.Level = "error"
	cfg.SetDefaults()

	if cfg.Log.Level != "error" {
		t.Errorf("SetDefaults overwrote log level: %q", cfg.Log.Level)
	}
	if cfg.RPC.RateBurst != 1 {
		t.Errorf("RPC.RateBurst = %d, want 1 when a rate is set", cfg.RPC.RateBurst)
	}
}
