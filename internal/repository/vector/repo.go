// Package vector persists cache entries in the FT-indexed vector store and
// runs scope-filtered KNN searches over them.
package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kailas-cloud/semcache/internal/db"
	"github.com/kailas-cloud/semcache/internal/domain"
)

const (
	entryPrefix = domain.KeyPrefix + "entry:"
	indexName   = domain.KeyPrefix + "entry:idx"
)

// Hash field names; the FT index schema in EnsureIndex must match.
const (
	fieldScope     = "scope"
	fieldQuery     = "query"
	fieldResponse  = "response"
	fieldCreatedAt = "created_at"
	fieldVector    = "vector"
)

// store is the consumer interface for cache entry persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}

// HNSWConfig tunes the vector index build parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements the cache orchestrator's VectorStore contract over db.Store.
type Repo struct {
	store store
	dim   int
	ttl   time.Duration
	hnsw  HNSWConfig
}

// New creates a vector repository. ttl, when positive, is applied server-side
// to every inserted entry via EXPIRE.
func New(s store, dim int, ttl time.Duration) *Repo {
	return &Repo{store: s, dim: dim, ttl: ttl}
}

// WithHNSW overrides HNSW index build parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

// EnsureIndex creates the cache entry FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	def := db.NewIndex(indexName).
		Prefix(entryPrefix).
		Tag(fieldScope).
		Numeric(fieldCreatedAt).
		VectorHNSW(fieldVector, r.dim, db.DistanceCosine, r.hnsw.M, r.hnsw.EFConstruct).
		MustBuild()

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index: %w: %w", domain.ErrVectorStoreError, err)
	}
	return nil
}

// Search returns up to k candidates for the query vector within the scope,
// ordered by descending similarity.
func (r *Repo) Search(
	ctx context.Context, vector []float32, scope string, k int,
) ([]domain.SearchCandidate, error) {
	q := &db.KNNQuery{
		IndexName:    indexName,
		ScopeTag:     scope,
		Vector:       vector,
		K:            k,
		ReturnFields: []string{fieldResponse, fieldCreatedAt, "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn: %w: %w", domain.ErrVectorStoreError, err)
	}

	candidates := make([]domain.SearchCandidate, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		candidates = append(candidates, domain.SearchCandidate{
			Payload:   e.Fields[fieldResponse],
			Score:     e.Score,
			CreatedAt: parseCreatedAt(e.Fields[fieldCreatedAt]),
		})
	}
	return candidates, nil
}

// Insert persists a cache entry as a hash and applies the store-side TTL.
// The decision engine re-checks TTL independently, so a failed EXPIRE only
// costs memory, not correctness.
func (r *Repo) Insert(ctx context.Context, entry *domain.CacheEntry) error {
	key := entryPrefix + entry.ID
	fields := map[string]string{
		fieldScope:     entry.Scope,
		fieldQuery:     entry.QueryText,
		fieldResponse:  entry.ResponsePayload,
		fieldCreatedAt: strconv.FormatInt(entry.CreatedAt.UnixMilli(), 10),
		fieldVector:    vectorToBytes(entry.QueryVector),
	}

	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("insert entry: %w: %w", domain.ErrVectorStoreError, err)
	}

	if r.ttl > 0 {
		if err := r.store.Expire(ctx, key, r.ttl); err != nil {
			return fmt.Errorf("expire entry: %w: %w", domain.ErrVectorStoreError, err)
		}
	}
	return nil
}

func parseCreatedAt(s string) time.Time {
	millis, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(millis).UTC()
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
