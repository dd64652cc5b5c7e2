package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xmhha/eventsync-go/api"
	"github.com/0xmhha/eventsync-go/client"
	"github.com/0xmhha/eventsync-go/events"
	"github.com/0xmhha/eventsync-go/fetch"
	"github.com/0xmhha/eventsync-go/internal/config"
	"github.com/0xmhha/eventsync-go/internal/constants"
	"github.com/0xmhha/eventsync-go/internal/logger"
	"github.com/0xmhha/eventsync-go/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// flagOverrides holds command-line values that take precedence over file and environment
type flagOverrides struct {
	rpcEndpoint string
	dbPath      string
	startHeight uint64
	logLevel    string
	logFormat   string
	enableAPI   bool
	apiHost     string
	apiPort     int
}

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
		overrides   flagOverrides
	)
	flag.StringVar(&overrides.rpcEndpoint, "rpc", "", "Chain RPC endpoint URL")
	flag.StringVar(&overrides.dbPath, "db", "", "Database path")
	flag.Uint64Var(&overrides.startHeight, "start-height", 0, "Block height to start from when no cursor is stored")
	flag.StringVar(&overrides.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&overrides.logFormat, "log-format", "", "Log format (json, console)")
	flag.BoolVar(&overrides.enableAPI, "api", false, "Enable admin API server")
	flag.StringVar(&overrides.apiHost, "api-host", "", "API server host")
	flag.IntVar(&overrides.apiPort, "api-port", 0, "API server port")

	flag.Parse()

	if *showVersion {
		fmt.Printf("eventsync-go version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyFlags(cfg, overrides)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewWithConfig(&logger.Config{
		Level:       cfg.Log.Level,
		Encoding:    cfg.Log.Format,
		Development: cfg.Log.Format == "console",
		Service:     "eventsync",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("Event sync stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting event sync",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("db_path", cfg.Database.Path),
		zap.String("settings_backend", cfg.Database.Backend),
		zap.Uint64("start_height", cfg.Sync.StartHeight),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Event records always live in pebble
	storageConfig := storage.DefaultConfig(cfg.Database.Path)
	eventStore, err := storage.NewPebbleStorage(storageConfig)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	eventStore.SetLogger(logger.WithComponent(log, "storage"))
	defer func() {
		if err := eventStore.Close(); err != nil {
			log.Error("Failed to close storage", zap.Error(err))
		}
	}()

	kv, closeKV, err := openSettingsStore(ctx, cfg, eventStore)
	if err != nil {
		return err
	}
	defer closeKV()

	settings := storage.NewSettings(kv, logger.WithComponent(log, "settings"))
	if err := seedSettings(ctx, settings, cfg.Sync); err != nil {
		return err
	}

	registry, err := buildRegistry(cfg.Sync, eventStore, logger.WithComponent(log, "decoder"))
	if err != nil {
		return err
	}
	if registry.Len() == 0 {
		log.Warn("No event decoders registered; matched receipts will be skipped")
	}
	log.Info("Event decoders registered", zap.Strings("decoders", registry.Names()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	syncMetrics := fetch.NewMetrics(reg, constants.MetricsNamespace)
	eventMetrics := events.NewMetrics(reg, constants.MetricsNamespace)

	chainClient, err := client.NewClient(&client.Config{
		Endpoint:  cfg.RPC.Endpoint,
		Timeout:   cfg.RPC.Timeout,
		RateLimit: cfg.RPC.RateLimit,
		RateBurst: cfg.RPC.RateBurst,
		Logger:    logger.WithComponent(log, "client"),
	})
	if err != nil {
		return fmt.Errorf("failed to create chain client: %w", err)
	}
	defer chainClient.Close()

	// The node may still be starting; the loop retries on its own.
	if chainID, err := chainClient.GetChainID(ctx); err != nil {
		log.Warn("Failed to get chain ID", zap.Error(err))
	} else {
		log.Info("Connected to chain",
			zap.String("endpoint", chainClient.Endpoint()),
			zap.String("chain_id", chainID.String()),
		)
	}

	dispatcher := events.NewDispatcher(registry, eventMetrics, logger.WithComponent(log, "dispatcher"))

	fetcherConfig := &fetch.Config{
		StartHeight:  cfg.Sync.StartHeight,
		IdleInterval: cfg.Sync.IdleInterval,
		PollInterval: cfg.Sync.PollInterval,
	}
	if err := fetcherConfig.Validate(); err != nil {
		return fmt.Errorf("invalid sync config: %w", err)
	}
	fetcher := fetch.NewFetcher(chainClient, settings, dispatcher, fetcherConfig, logger.WithComponent(log, "fetcher"))
	fetcher.SetMetrics(syncMetrics)

	var apiServer *api.Server
	apiErrChan := make(chan error, 1)
	if cfg.API.Enabled {
		apiConfig := api.DefaultConfig()
		apiConfig.Host = cfg.API.Host
		apiConfig.Port = cfg.API.Port
		apiConfig.EnableCORS = cfg.API.EnableCORS
		apiConfig.AllowedOrigins = cfg.API.AllowedOrigins
		apiConfig.EnableRateLimit = cfg.API.EnableRateLimit
		apiConfig.RateLimitPerSecond = cfg.API.RateLimitPerSecond
		apiConfig.RateLimitBurst = cfg.API.RateLimitBurst
		apiConfig.GraphQLPath = cfg.API.GraphQLPath

		apiServer, err = api.NewServer(apiConfig, logger.WithComponent(log, "api"), settings, fetcher, reg)
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		if err := apiServer.EnableEventQueries(eventStore); err != nil {
			return err
		}
		apiServer.SetBuildInfo(api.BuildInfo{
			Name:      "eventsync-go",
			Version:   version,
			Commit:    commit,
			BuildTime: buildTime,
		})

		go func() {
			apiErrChan <- apiServer.Start()
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting sync loop")
		errChan <- fetcher.Run(ctx)
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("sync loop failed: %w", err)
		}
	case err := <-apiErrChan:
		if err != nil {
			runErr = err
		}
	}

	log.Info("Shutting down gracefully...")
	cancel()

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
		defer shutdownCancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop API server gracefully", zap.Error(err))
		}
	}

	// Wait for the loop to observe cancellation before storage closes.
	select {
	case <-errChan:
	case <-time.After(constants.DefaultShutdownTimeout):
		log.Warn("Sync loop did not stop in time")
	}

	status := fetcher.Status()
	log.Info("Event sync stopped",
		zap.Uint64("cursor", status.Cursor),
		zap.Uint64("head", status.Head),
	)
	return runErr
}

// openSettingsStore returns the KV store that backs the sync settings
func openSettingsStore(ctx context.Context, cfg *config.Config, pebbleStore *storage.PebbleStorage) (storage.KVStore, func(), error) {
	switch cfg.Database.Backend {
	case config.BackendRedis:
		redisStore, err := storage.NewRedisStorage(ctx, &storage.RedisConfig{
			Addresses: cfg.Database.Redis.Addresses,
			Password:  cfg.Database.Redis.Password,
			DB:        cfg.Database.Redis.DB,
			KeyPrefix: cfg.Database.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect settings store: %w", err)
		}
		return redisStore, func() { _ = redisStore.Close() }, nil
	default:
		// Shares the pebble handle; closed with the event store.
		return pebbleStore, func() {}, nil
	}
}

// seedSettings writes configured threshold and contracts when the keys are absent
func seedSettings(ctx context.Context, settings *storage.Settings, cfg config.SyncConfig) error {
	if cfg.Threshold != nil {
		value := fmt.Sprintf("%d", *cfg.Threshold)
		if _, err := settings.SeedSetting(ctx, constants.SettingBlockThreshold, value); err != nil {
			return fmt.Errorf("failed to seed threshold: %w", err)
		}
	}
	if cfg.Contracts != nil {
		value, err := storage.EncodeAddressList(cfg.Contracts)
		if err != nil {
			return err
		}
		if _, err := settings.SeedSetting(ctx, constants.SettingContractAddress, value); err != nil {
			return fmt.Errorf("failed to seed contracts: %w", err)
		}
	}
	return nil
}

// buildRegistry registers catalog and custom event decoders
func buildRegistry(cfg config.SyncConfig, store storage.EventWriter, log *zap.Logger) (*events.Registry, error) {
	registry := events.NewRegistry()
	if err := registry.RegisterKnownEvents(cfg.Events, store, log); err != nil {
		return nil, fmt.Errorf("failed to register events: %w", err)
	}
	for _, custom := range cfg.CustomEvents {
		if err := registry.RegisterABI(custom.Name, custom.ABI, custom.Event, store, log); err != nil {
			return nil, fmt.Errorf("failed to register event %q: %w", custom.Name, err)
		}
	}
	return registry, nil
}

// loadConfig loads configuration from file and environment variables
func loadConfig(configFile string) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, f flagOverrides) {
	if f.rpcEndpoint != "" {
		cfg.RPC.Endpoint = f.rpcEndpoint
	}
	if f.dbPath != "" {
		cfg.Database.Path = f.dbPath
	}
	if f.startHeight > 0 {
		cfg.Sync.StartHeight = f.startHeight
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if f.enableAPI {
		cfg.API.Enabled = true
	}
	if f.apiHost != "" {
		cfg.API.Host = f.apiHost
	}
	if f.apiPort > 0 {
		cfg.API.Port = f.apiPort
	}
}
