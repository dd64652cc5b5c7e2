package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/0xmhha/eventsync-go/api/graphql"
	apimiddleware "github.com/0xmhha/eventsync-go/api/middleware"
	"github.com/0xmhha/eventsync-go/fetch"
	"github.com/0xmhha/eventsync-go/internal/constants"
	"github.com/0xmhha/eventsync-go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SettingsStore reads and writes the sync settings exposed over HTTP
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// StatusProvider reports the current sync loop status
type StatusProvider interface {
	Status() fetch.Status
}

// BuildInfo describes the running binary
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
}

// Server is the admin HTTP server
type Server struct {
	config   *Config
	logger   *zap.Logger
	settings SettingsStore
	status   StatusProvider
	gatherer prometheus.Gatherer
	build    BuildInfo
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new admin API server. status and gatherer may be nil.
func NewServer(config *Config, logger *zap.Logger, settings SettingsStore, status StatusProvider, gatherer prometheus.Gatherer) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if settings == nil {
		return nil, errors.New("settings store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:   config,
		logger:   logger,
		settings: settings,
		status:   status,
		gatherer: gatherer,
		build:    BuildInfo{Name: "eventsync-go", Version: "dev"},
		router:   chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// SetBuildInfo sets the information reported by /version
func (s *Server) SetBuildInfo(info BuildInfo) {
	s.build = info
}

func (s *Server) setupMiddleware() {
	// Recovery middleware (must be first)
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.RequestLogger(s.logger))

	if s.config.EnableRateLimit {
		s.router.Use(apimiddleware.RateLimit(
			s.config.RateLimitPerSecond,
			s.config.RateLimitBurst,
			s.logger,
		))
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(s.cors)
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		for _, allowedOrigin := range s.config.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "300")
				break
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/settings/{key}", s.handleGetSetting)
		r.Put("/settings/{key}", s.handlePutSetting)
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	SyncState string `json:"syncState,omitempty"`
}

// SettingResponse is returned by the settings endpoints
type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingRequest is the body of a settings update. Value may be a JSON string,
// which is stored verbatim, or any other JSON value, which is stored as its raw text.
type SettingRequest struct {
	Value json.RawMessage `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.status != nil {
		response.SyncState = string(s.status.Status().State)
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.build)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.writeError(w, http.StatusServiceUnavailable, "sync loop not running")
		return
	}
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !storage.IsKnownSetting(key) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown setting %q", key))
		return
	}

	value, err := s.settings.GetSetting(r.Context(), key)
	if err != nil {
		s.writeStorageError(w, key, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SettingResponse{Key: key, Value: value})
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == constants.SettingBlockHeight {
		// The cursor belongs to the sync loop.
		s.writeError(w, http.StatusForbidden, fmt.Sprintf("setting %q is read-only", key))
		return
	}
	if !storage.IsKnownSetting(key) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown setting %q", key))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxSettingBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	value, err := decodeSettingValue(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.settings.SetSetting(r.Context(), key, value); err != nil {
		s.writeStorageError(w, key, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SettingResponse{Key: key, Value: value})
}

func decodeSettingValue(body []byte) (string, error) {
	var req SettingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", fmt.Errorf("invalid request body: %v", err)
	}
	if len(req.Value) == 0 || string(req.Value) == "null" {
		return "", errors.New("value is required")
	}

	var str string
	if err := json.Unmarshal(req.Value, &str); err == nil {
		return str, nil
	}
	return string(req.Value), nil
}

func (s *Server) writeStorageError(w http.ResponseWriter, key string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("setting %q is not set", key))
	case errors.Is(err, storage.ErrInvalidSetting):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("settings store failed", zap.String("key", key), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// EnableEventQueries mounts the GraphQL event query endpoint at GraphQLPath
func (s *Server) EnableEventQueries(reader storage.EventReader) error {
	if s.config.GraphQLPath == "" {
		return errors.New("graphql path is not configured")
	}

	handler, err := graphql.NewHandler(reader, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create GraphQL handler: %w", err)
	}
	s.router.Handle(s.config.GraphQLPath, handler)
	s.logger.Info("GraphQL API enabled", zap.String("path", s.config.GraphQLPath))
	return nil
}

// Start starts the API server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("address", s.config.Address()))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
