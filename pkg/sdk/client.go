package semcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semcache/internal/db"
	dbRedis "github.com/kailas-cloud/semcache/internal/db/redis"
	"github.com/kailas-cloud/semcache/internal/domain"
	vectorrepo "github.com/kailas-cloud/semcache/internal/repository/vector"
	"github.com/kailas-cloud/semcache/internal/stats"
	cacheuc "github.com/kailas-cloud/semcache/internal/usecase/cache"
	"github.com/kailas-cloud/semcache/internal/usecase/decision"
	healthuc "github.com/kailas-cloud/semcache/internal/usecase/health"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces so tests can substitute the use case layer.
type cacheUseCase interface {
	Lookup(ctx context.Context, req cacheuc.LookupRequest) (domain.Decision, error)
	Save(ctx context.Context, req cacheuc.SaveRequest) error
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

type statsReader interface {
	Snapshot() stats.Snapshot
}

// Client is the semcache SDK entry point.
type Client struct {
	store     db.Store
	cacheSvc  cacheUseCase
	healthSvc healthUseCase
	stats     statsReader
	obs       *observer
}

// New creates a semcache Client and connects to the vector store.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		threshold:        0.85,
		ttl:              24 * time.Hour,
		candidateCount:   10,
		vectorDimensions: domain.DefaultVectorConfig().Dimensions,
		hnswM:            32,
		hnswEFConstruct:  400,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("semcache: store address required (use WithRedis)")
	}
	if cfg.embedder == nil {
		return nil, errors.New("semcache: embedder required (use WithEmbedder)")
	}
	if cfg.threshold < 0 || cfg.threshold > 1 {
		return nil, fmt.Errorf("semcache: threshold %v outside [0,1]", cfg.threshold)
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("semcache: create store: %w", err)
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("semcache: store not ready: %w", err)
	}

	repo := vectorrepo.New(store, cfg.vectorDimensions, cfg.ttl).
		WithHNSW(vectorrepo.HNSWConfig{M: cfg.hnswM, EFConstruct: cfg.hnswEFConstruct})
	if err := repo.EnsureIndex(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("semcache: bootstrap index: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := stats.New()

	svc := cacheuc.New(
		&embedderAdapter{inner: cfg.embedder},
		repo,
		decision.New(),
		engine,
		cacheuc.Config{
			Threshold:      cfg.threshold,
			TTL:            cfg.ttl,
			CandidateCount: cfg.candidateCount,
			Dimensions:     cfg.vectorDimensions,
		},
		zap.NewNop(),
	)
	svc.Ready()

	return &Client{
		store:     store,
		cacheSvc:  svc,
		healthSvc: healthuc.New(store, nil),
		stats:     engine,
		obs:       obs,
	}, nil
}

// Close releases the underlying store connection.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Decision is the outcome of a cache lookup.
type Decision struct {
	Hit     bool
	Payload string        // cached response, set on hit
	Score   float64       // similarity of the matched entry, set on hit
	Latency time.Duration // end-to-end lookup duration
}

// LookupOption tweaks a single lookup.
type LookupOption func(*cacheuc.LookupRequest)

// AtThreshold overrides the client's similarity threshold for one lookup.
func AtThreshold(t float64) LookupOption {
	return func(r *cacheuc.LookupRequest) {
		r.Threshold = &t
	}
}

// Lookup returns the cached response for a semantically similar query in the
// given scope, if one qualifies.
func (c *Client) Lookup(ctx context.Context, scope, query string, opts ...LookupOption) (Decision, error) {
	start := time.Now()

	req := cacheuc.LookupRequest{Scope: scope, Query: query}
	for _, o := range opts {
		o(&req)
	}

	d, err := c.cacheSvc.Lookup(ctx, req)
	c.obs.observe("lookup", start, err)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Hit:     d.IsHit(),
		Payload: d.Payload,
		Score:   d.MatchedScore,
		Latency: d.Latency,
	}, nil
}

// Save stores a query/response pair in the given scope.
func (c *Client) Save(ctx context.Context, scope, query, payload string) error {
	start := time.Now()

	err := c.cacheSvc.Save(ctx, cacheuc.SaveRequest{
		Scope:   scope,
		Query:   query,
		Payload: payload,
	})
	c.obs.observe("save", start, err)
	return err
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component -> "ok"/"error"
}

// Health checks the health of all system components.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

// Stats is a point-in-time snapshot of the client's cache statistics.
type Stats struct {
	UptimeSeconds float64
	Counters      map[string]int64
	Gauges        map[string]float64
	Histograms    map[string]HistogramSummary
}

// HistogramSummary aggregates one histogram series.
type HistogramSummary struct {
	Count uint64
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
	P50   float64
	P95   float64
	P99   float64
}

// Stats returns a snapshot of the client's in-process cache statistics.
func (c *Client) Stats() Stats {
	snap := c.stats.Snapshot()

	hists := make(map[string]HistogramSummary, len(snap.Histograms))
	for k, h := range snap.Histograms {
		hists[k] = HistogramSummary{
			Count: h.Count, Sum: h.Sum, Avg: h.Avg,
			Min: h.Min, Max: h.Max,
			P50: h.P50, P95: h.P95, P99: h.P99,
		}
	}

	return Stats{
		UptimeSeconds: snap.UptimeSeconds,
		Counters:      snap.Counters,
		Gauges:        snap.Gauges,
		Histograms:    hists,
	}
}

// embedderAdapter bridges the public Embedder to the internal contract.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
