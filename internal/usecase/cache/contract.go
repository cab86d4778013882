package cache

import (
	"context"
	"time"

	"github.com/kailas-cloud/semcache/internal/domain"
)

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// VectorStore defines the persistence contract for cache entries.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, scope string, k int) ([]domain.SearchCandidate, error)
	Insert(ctx context.Context, entry *domain.CacheEntry) error
}

// Decider turns search candidates into a hit/miss decision.
type Decider interface {
	Decide(candidates []domain.SearchCandidate, threshold float64, ttl time.Duration, now time.Time) domain.Decision
}

// Stats receives application-level measurements. May be nil on the service;
// a nil Stats must never fail the cache path.
type Stats interface {
	IncCounter(name string, labels map[string]string, delta int64)
	SetGauge(name string, labels map[string]string, value float64)
	ObserveHistogram(name string, labels map[string]string, value float64)
}
