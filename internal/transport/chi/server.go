// Package chi exposes the semantic cache over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semcache/internal/domain"
	"github.com/kailas-cloud/semcache/internal/stats"
	cacheuc "github.com/kailas-cloud/semcache/internal/usecase/cache"
	healthuc "github.com/kailas-cloud/semcache/internal/usecase/health"
)

// ErrorCode identifies the error class in an error response body.
type ErrorCode string

const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeEmbeddingError   ErrorCode = "embedding_provider_error"
	CodeStoreError       ErrorCode = "vector_store_error"
	CodeNotReady         ErrorCode = "not_ready"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// LookupRequest is the POST /cache/lookup body.
type LookupRequest struct {
	Scope     string   `json:"scope"`
	Query     string   `json:"query"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// LookupResponse is the POST /cache/lookup response.
type LookupResponse struct {
	Outcome      string   `json:"outcome"`
	Payload      *string  `json:"payload,omitempty"`
	MatchedScore *float64 `json:"matched_score,omitempty"`
	LatencyMs    float64  `json:"latency_ms"`
	Scope        string   `json:"scope"`
}

// SaveRequest is the POST /cache/save body.
type SaveRequest struct {
	Scope     string     `json:"scope"`
	Query     string     `json:"query"`
	Payload   string     `json:"payload"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// SaveResponse is the POST /cache/save response.
type SaveResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the GET /health response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Service *ServiceInfo      `json:"service,omitempty"`
}

// ServiceInfo describes the running service in the detailed health payload.
type ServiceInfo struct {
	Version          string  `json:"version"`
	EmbeddingModel   string  `json:"embedding_model"`
	VectorDimensions int     `json:"vector_dimensions"`
	DefaultThreshold float64 `json:"default_threshold"`
}

// StatsReader provides the application-level stats snapshot.
type StatsReader interface {
	Snapshot() stats.Snapshot
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the semantic cache HTTP API.
type Server struct {
	cache         *cacheuc.Service
	health        *healthuc.Service
	stats         StatsReader
	logger        *zap.Logger
	info          *ServiceInfo
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. stats may be nil; /cache/stats then
// returns an empty object.
func NewServer(
	cache *cacheuc.Service,
	health *healthuc.Service,
	stats StatsReader,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cache:  cache,
		health: health,
		stats:  stats,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyScope, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidThreshold, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingError),
		sentinelHandler(domain.ErrVectorStoreError, http.StatusServiceUnavailable, CodeStoreError),
		sentinelHandler(domain.ErrNotReady, http.StatusServiceUnavailable, CodeNotReady),
	}
	return s
}

// WithServiceInfo attaches build and configuration metadata to the detailed
// health payload.
func (s *Server) WithServiceInfo(info ServiceInfo) *Server {
	s.info = &info
	return s
}

// Routes mounts all API handlers on a fresh router. Middleware is attached by
// the caller.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/cache/lookup", s.Lookup)
	r.Post("/cache/save", s.Save)
	r.Get("/cache/stats", s.Stats)
	r.Get("/health", s.HealthCheck)
	r.Get("/health/detailed", s.HealthDetailed)
	r.Get("/metrics", s.Metrics)
	return r
}

// Lookup handles POST /cache/lookup.
func (s *Server) Lookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	decision, err := s.cache.Lookup(r.Context(), cacheuc.LookupRequest{
		Scope:     req.Scope,
		Query:     req.Query,
		Threshold: req.Threshold,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := LookupResponse{
		Outcome:   string(decision.Outcome),
		LatencyMs: float64(decision.Latency.Microseconds()) / 1000,
		Scope:     decision.Scope,
	}
	if decision.IsHit() {
		resp.Payload = &decision.Payload
		resp.MatchedScore = &decision.MatchedScore
	}

	writeJSON(w, http.StatusOK, resp)
}

// Save handles POST /cache/save.
func (s *Server) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	err := s.cache.Save(r.Context(), cacheuc.SaveRequest{
		Scope:     req.Scope,
		Query:     req.Query,
		Payload:   req.Payload,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SaveResponse{Status: "saved"})
}

// Stats handles GET /cache/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

// HealthCheck handles GET /health: liveness only, no collaborator calls.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HealthDetailed handles GET /health/detailed: pings the vector store and the
// embedding provider.
func (s *Server) HealthDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Service: s.info,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyScope,
		domain.ErrEmptyQuery,
		domain.ErrInvalidThreshold,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingProviderError,
		domain.ErrVectorStoreError,
		domain.ErrNotReady,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
