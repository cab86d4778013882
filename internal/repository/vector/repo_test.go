package vector

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/kailas-cloud/semcache/internal/db"
	"github.com/kailas-cloud/semcache/internal/domain"
)

type mockStore struct {
	hsetKey    string
	hsetFields map[string]string
	hsetErr    error

	expireKey string
	expireTTL time.Duration
	expireErr error

	knnQuery  *db.KNNQuery
	knnResult *db.SearchResult
	knnErr    error

	createDef *db.IndexDefinition
	createErr error
}

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.hsetKey, m.hsetFields = key, fields
	return m.hsetErr
}

func (m *mockStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.expireKey, m.expireTTL = key, ttl
	return m.expireErr
}

func (m *mockStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.knnQuery = q
	if m.knnErr != nil {
		return nil, m.knnErr
	}
	if m.knnResult == nil {
		return &db.SearchResult{}, nil
	}
	return m.knnResult, nil
}

func (m *mockStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.createDef = def
	return m.createErr
}

func TestEnsureIndex_CreatesSchema(t *testing.T) {
	ms := &mockStore{}
	r := New(ms, 384, time.Hour).WithHNSW(HNSWConfig{M: 16, EFConstruct: 200})

	if err := r.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.createDef == nil {
		t.Fatal("expected CreateIndex call")
	}
	if ms.createDef.Name != "semcache:entry:idx" {
		t.Errorf("index name = %s", ms.createDef.Name)
	}
	if len(ms.createDef.Fields) != 3 {
		t.Fatalf("expected 3 fields (scope, created_at, vector), got %d", len(ms.createDef.Fields))
	}
	vec := ms.createDef.Fields[2]
	if vec.VectorDim != 384 || vec.VectorAlgo != db.VectorHNSW {
		t.Errorf("vector field = %+v", vec)
	}
}

func TestEnsureIndex_AlreadyExistsIsFine(t *testing.T) {
	ms := &mockStore{createErr: db.ErrIndexExists}
	r := New(ms, 384, time.Hour)

	if err := r.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("existing index must not be an error, got %v", err)
	}
}

func TestEnsureIndex_StoreFailure(t *testing.T) {
	ms := &mockStore{createErr: errors.New("connection refused")}
	r := New(ms, 384, time.Hour)

	err := r.EnsureIndex(context.Background())
	if !errors.Is(err, domain.ErrVectorStoreError) {
		t.Errorf("expected ErrVectorStoreError, got %v", err)
	}
}

func TestSearch_MapsCandidates(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ms := &mockStore{knnResult: &db.SearchResult{
		Total: 2,
		Entries: []db.SearchEntry{
			{Key: "semcache:entry:a", Score: 0.92, Fields: map[string]string{
				"response":   "cached answer",
				"created_at": strconv.FormatInt(created.UnixMilli(), 10),
			}},
			{Key: "semcache:entry:b", Score: 0.71, Fields: map[string]string{
				"response":   "other",
				"created_at": strconv.FormatInt(created.UnixMilli(), 10),
			}},
		},
	}}
	r := New(ms, 384, time.Hour)

	candidates, err := r.Search(context.Background(), []float32{0.1, 0.2}, "user-1", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Payload != "cached answer" || candidates[0].Score != 0.92 {
		t.Errorf("candidate 0 = %+v", candidates[0])
	}
	if !candidates[0].CreatedAt.Equal(created) {
		t.Errorf("created at = %v, want %v", candidates[0].CreatedAt, created)
	}

	if ms.knnQuery.ScopeTag != "user-1" {
		t.Errorf("scope tag = %q, want user-1", ms.knnQuery.ScopeTag)
	}
	if ms.knnQuery.K != 5 {
		t.Errorf("k = %d, want 5", ms.knnQuery.K)
	}
}

func TestSearch_StoreFailure(t *testing.T) {
	ms := &mockStore{knnErr: errors.New("timeout")}
	r := New(ms, 384, time.Hour)

	_, err := r.Search(context.Background(), []float32{0.1}, "user-1", 5)
	if !errors.Is(err, domain.ErrVectorStoreError) {
		t.Errorf("expected ErrVectorStoreError, got %v", err)
	}
}

func TestSearch_MalformedCreatedAt(t *testing.T) {
	ms := &mockStore{knnResult: &db.SearchResult{
		Total: 1,
		Entries: []db.SearchEntry{
			{Key: "semcache:entry:a", Score: 0.9, Fields: map[string]string{
				"response":   "x",
				"created_at": "not-a-number",
			}},
		},
	}}
	r := New(ms, 384, time.Hour)

	candidates, err := r.Search(context.Background(), []float32{0.1}, "u", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !candidates[0].CreatedAt.IsZero() {
		t.Errorf("malformed created_at must map to zero time, got %v", candidates[0].CreatedAt)
	}
}

func TestInsert_WritesHashAndTTL(t *testing.T) {
	ms := &mockStore{}
	r := New(ms, 2, time.Hour)

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	entry := &domain.CacheEntry{
		ID:              "abc",
		Scope:           "user-1",
		QueryText:       "what is the capital of france",
		QueryVector:     []float32{0.1, 0.2},
		ResponsePayload: "Paris",
		CreatedAt:       created,
	}

	if err := r.Insert(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.hsetKey != "semcache:entry:abc" {
		t.Errorf("key = %s", ms.hsetKey)
	}
	if ms.hsetFields["scope"] != "user-1" || ms.hsetFields["response"] != "Paris" {
		t.Errorf("fields = %v", ms.hsetFields)
	}
	if ms.hsetFields["created_at"] != strconv.FormatInt(created.UnixMilli(), 10) {
		t.Errorf("created_at = %s", ms.hsetFields["created_at"])
	}
	if len(ms.hsetFields["vector"]) != 8 {
		t.Errorf("vector bytes = %d, want 8", len(ms.hsetFields["vector"]))
	}
	if ms.expireKey != "semcache:entry:abc" || ms.expireTTL != time.Hour {
		t.Errorf("expire = %s %v", ms.expireKey, ms.expireTTL)
	}
}

func TestInsert_NoTTLSkipsExpire(t *testing.T) {
	ms := &mockStore{}
	r := New(ms, 2, 0)

	entry := &domain.CacheEntry{ID: "abc", QueryVector: []float32{0.1, 0.2}, CreatedAt: time.Now()}
	if err := r.Insert(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.expireKey != "" {
		t.Error("expire must not be called when ttl is zero")
	}
}

func TestInsert_StoreFailure(t *testing.T) {
	ms := &mockStore{hsetErr: errors.New("oom")}
	r := New(ms, 2, time.Hour)

	entry := &domain.CacheEntry{ID: "abc", QueryVector: []float32{0.1, 0.2}, CreatedAt: time.Now()}
	err := r.Insert(context.Background(), entry)
	if !errors.Is(err, domain.ErrVectorStoreError) {
		t.Errorf("expected ErrVectorStoreError, got %v", err)
	}
}
