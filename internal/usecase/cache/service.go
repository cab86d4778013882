// Package cache orchestrates the semantic cache path: embed the query, search
// the vector store within the caller's scope, and decide hit or miss.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semcache/internal/domain"
	"github.com/kailas-cloud/semcache/internal/metrics"
)

// Stats series names recorded by the orchestrator.
const (
	statRequests         = "cache_requests"
	statQueryLatency     = "query_latency_ms"
	statSimilarityScore  = "similarity_score"
	statSaveLatency      = "cache_save_latency_ms"
	statWrites           = "cache_writes"
	statSearchCandidates = "search_candidates"
)

// LookupRequest asks whether a semantically similar query has a cached answer.
// Threshold, when set, overrides the configured similarity threshold for this
// request only.
type LookupRequest struct {
	Scope     string
	Query     string
	Threshold *float64
}

// SaveRequest stores a query/response pair for future lookups. Timestamp,
// when set, backdates the entry (otherwise now is used).
type SaveRequest struct {
	Scope     string
	Query     string
	Payload   string
	Timestamp *time.Time
}

// Config holds the orchestrator's decision parameters.
type Config struct {
	Threshold      float64       // default similarity threshold in [0,1]
	TTL            time.Duration // entry lifetime; <= 0 disables expiry checks
	CandidateCount int           // k for the vector search
	Dimensions     int           // expected embedding dimensionality
}

// Service is the cache orchestrator.
type Service struct {
	embedder Embedder
	store    VectorStore
	decider  Decider
	stats    Stats
	cfg      Config
	logger   *zap.Logger
	ready    atomic.Bool
	now      func() time.Time
}

// New creates a cache orchestrator. stats may be nil. The service rejects all
// operations with ErrNotReady until Ready is called.
func New(embedder Embedder, store VectorStore, decider Decider, stats Stats, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
		decider:  decider,
		stats:    stats,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Ready marks initialization complete. Called from main after store readiness
// and index bootstrap.
func (s *Service) Ready() {
	s.ready.Store(true)
}

// Lookup embeds the query, searches the scope for similar cached entries and
// decides hit or miss. Collaborator failures propagate as typed errors and are
// never reported as a miss.
func (s *Service) Lookup(ctx context.Context, req LookupRequest) (domain.Decision, error) {
	if !s.ready.Load() {
		return domain.Decision{}, domain.ErrNotReady
	}

	threshold := s.cfg.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if err := validateLookup(req, threshold); err != nil {
		return domain.Decision{}, err
	}

	start := s.now()

	vector, err := s.embedQuery(ctx, req.Query)
	if err != nil {
		return domain.Decision{}, err
	}

	candidates, err := s.store.Search(ctx, vector, req.Scope, s.cfg.CandidateCount)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("search candidates: %w", err)
	}

	decision := s.decider.Decide(candidates, threshold, s.cfg.TTL, s.now())
	decision.Scope = req.Scope
	decision.Latency = s.now().Sub(start)

	s.recordLookup(req.Scope, decision, len(candidates))

	s.logger.Debug("Cache lookup",
		zap.String("scope", req.Scope),
		zap.String("outcome", string(decision.Outcome)),
		zap.Float64("score", decision.MatchedScore),
		zap.Int("candidates", len(candidates)),
		zap.Duration("latency", decision.Latency),
	)

	return decision, nil
}

// Save embeds the query and persists the query/response pair in the caller's
// scope.
func (s *Service) Save(ctx context.Context, req SaveRequest) error {
	if !s.ready.Load() {
		return domain.ErrNotReady
	}
	if err := validateSave(req); err != nil {
		return err
	}

	start := s.now()

	vector, err := s.embedQuery(ctx, req.Query)
	if err != nil {
		s.recordSave(req.Scope, start, "error")
		return err
	}

	createdAt := s.now()
	if req.Timestamp != nil {
		createdAt = *req.Timestamp
	}

	entry := &domain.CacheEntry{
		ID:              uuid.NewString(),
		Scope:           req.Scope,
		QueryText:       req.Query,
		QueryVector:     vector,
		ResponsePayload: req.Payload,
		CreatedAt:       createdAt,
	}

	if err := s.store.Insert(ctx, entry); err != nil {
		s.recordSave(req.Scope, start, "error")
		return fmt.Errorf("insert entry: %w", err)
	}

	s.recordSave(req.Scope, start, "success")

	s.logger.Debug("Cache save",
		zap.String("scope", req.Scope),
		zap.String("entry_id", entry.ID),
	)

	return nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	result, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if s.cfg.Dimensions > 0 && len(result.Embedding) != s.cfg.Dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d: %w",
			len(result.Embedding), s.cfg.Dimensions, domain.ErrVectorDimMismatch)
	}
	return result.Embedding, nil
}

func (s *Service) recordLookup(scope string, d domain.Decision, candidates int) {
	latencyMs := float64(d.Latency.Microseconds()) / 1000

	metrics.CacheRequestsTotal.WithLabelValues(string(d.Outcome)).Inc()
	metrics.CacheQueryDuration.Observe(d.Latency.Seconds())
	metrics.CacheSearchCandidates.Set(float64(candidates))
	if d.IsHit() {
		metrics.CacheSimilarityScore.Observe(d.MatchedScore)
	}

	if s.stats == nil {
		return
	}
	s.stats.IncCounter(statRequests, map[string]string{"scope": scope, "outcome": string(d.Outcome)}, 1)
	s.stats.ObserveHistogram(statQueryLatency, nil, latencyMs)
	s.stats.SetGauge(statSearchCandidates, map[string]string{"scope": scope}, float64(candidates))
	if d.IsHit() {
		s.stats.ObserveHistogram(statSimilarityScore, nil, d.MatchedScore)
	}
}

func (s *Service) recordSave(scope string, start time.Time, status string) {
	elapsed := s.now().Sub(start)

	metrics.CacheWritesTotal.WithLabelValues(status).Inc()
	metrics.CacheSaveDuration.Observe(elapsed.Seconds())

	if s.stats == nil {
		return
	}
	s.stats.IncCounter(statWrites, map[string]string{"scope": scope, "status": status}, 1)
	s.stats.ObserveHistogram(statSaveLatency, nil, float64(elapsed.Microseconds())/1000)
}

func validateLookup(req LookupRequest, threshold float64) error {
	if req.Scope == "" {
		return domain.ErrEmptyScope
	}
	if req.Query == "" {
		return domain.ErrEmptyQuery
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("threshold %v outside [0,1]: %w", threshold, domain.ErrInvalidThreshold)
	}
	return nil
}

func validateSave(req SaveRequest) error {
	if req.Scope == "" {
		return domain.ErrEmptyScope
	}
	if req.Query == "" {
		return domain.ErrEmptyQuery
	}
	return nil
}
