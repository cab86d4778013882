package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semcache/internal/domain"
	"github.com/kailas-cloud/semcache/internal/usecase/decision"
)

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

type mockVectorStore struct {
	candidates []domain.SearchCandidate
	searchErr  error

	searchScope  string
	searchK      int
	searchVector []float32

	inserted  *domain.CacheEntry
	insertErr error
}

func (m *mockVectorStore) Search(_ context.Context, vector []float32, scope string, k int) ([]domain.SearchCandidate, error) {
	m.searchVector, m.searchScope, m.searchK = vector, scope, k
	return m.candidates, m.searchErr
}

func (m *mockVectorStore) Insert(_ context.Context, entry *domain.CacheEntry) error {
	m.inserted = entry
	return m.insertErr
}

type statCall struct {
	name   string
	labels map[string]string
	value  float64
}

type mockStats struct {
	counters   []statCall
	gauges     []statCall
	histograms []statCall
}

func (m *mockStats) IncCounter(name string, labels map[string]string, delta int64) {
	m.counters = append(m.counters, statCall{name, labels, float64(delta)})
}

func (m *mockStats) SetGauge(name string, labels map[string]string, value float64) {
	m.gauges = append(m.gauges, statCall{name, labels, value})
}

func (m *mockStats) ObserveHistogram(name string, labels map[string]string, value float64) {
	m.histograms = append(m.histograms, statCall{name, labels, value})
}

func (m *mockStats) counterFor(name string) *statCall {
	for i := range m.counters {
		if m.counters[i].name == name {
			return &m.counters[i]
		}
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Threshold:      0.85,
		TTL:            24 * time.Hour,
		CandidateCount: 10,
		Dimensions:     3,
	}
}

func newTestService(emb *mockEmbedder, store *mockVectorStore, stats Stats) *Service {
	s := New(emb, store, decision.New(), stats, defaultConfig(), zap.NewNop())
	s.Ready()
	return s
}

func embOK() *mockEmbedder {
	return &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
}

func TestLookup_Hit(t *testing.T) {
	store := &mockVectorStore{candidates: []domain.SearchCandidate{
		{Payload: "answer A", Score: 0.90, CreatedAt: time.Now()},
		{Payload: "answer B", Score: 0.80, CreatedAt: time.Now()},
	}}
	stats := &mockStats{}
	svc := newTestService(embOK(), store, stats)

	d, err := svc.Lookup(context.Background(), LookupRequest{Scope: "user-1", Query: "capital of france"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.IsHit() {
		t.Fatalf("expected hit, got %s", d.Outcome)
	}
	if d.Payload != "answer A" || d.MatchedScore != 0.90 {
		t.Errorf("decision = %+v", d)
	}
	if d.Scope != "user-1" {
		t.Errorf("scope = %q", d.Scope)
	}

	if store.searchScope != "user-1" || store.searchK != 10 {
		t.Errorf("search called with scope=%q k=%d", store.searchScope, store.searchK)
	}

	c := stats.counterFor("cache_requests")
	if c == nil {
		t.Fatal("expected cache_requests counter")
	}
	if c.labels["scope"] != "user-1" || c.labels["outcome"] != "hit" {
		t.Errorf("cache_requests labels = %v", c.labels)
	}
}

func TestLookup_Miss(t *testing.T) {
	store := &mockVectorStore{candidates: []domain.SearchCandidate{
		{Payload: "weak", Score: 0.70, CreatedAt: time.Now()},
	}}
	stats := &mockStats{}
	svc := newTestService(embOK(), store, stats)

	d, err := svc.Lookup(context.Background(), LookupRequest{Scope: "user-1", Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.IsHit() {
		t.Fatal("expected miss")
	}

	c := stats.counterFor("cache_requests")
	if c == nil || c.labels["outcome"] != "miss" {
		t.Errorf("expected miss counter, got %+v", c)
	}

	// similarity_score is only observed on hits
	for _, h := range stats.histograms {
		if h.name == "similarity_score" {
			t.Error("similarity_score must not be recorded on miss")
		}
	}
}

func TestLookup_ThresholdOverride(t *testing.T) {
	store := &mockVectorStore{candidates: []domain.SearchCandidate{
		{Payload: "p", Score: 0.70, CreatedAt: time.Now()},
	}}
	svc := newTestService(embOK(), store, nil)

	override := 0.65
	d, err := svc.Lookup(context.Background(), LookupRequest{
		Scope: "u", Query: "q", Threshold: &override,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.IsHit() {
		t.Error("expected hit with lowered threshold")
	}
}

func TestLookup_Validation(t *testing.T) {
	bad := 1.5
	tests := []struct {
		name string
		req  LookupRequest
		want error
	}{
		{"empty scope", LookupRequest{Query: "q"}, domain.ErrEmptyScope},
		{"empty query", LookupRequest{Scope: "u"}, domain.ErrEmptyQuery},
		{"bad threshold", LookupRequest{Scope: "u", Query: "q", Threshold: &bad}, domain.ErrInvalidThreshold},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			emb := embOK()
			svc := newTestService(emb, &mockVectorStore{}, nil)
			_, err := svc.Lookup(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if emb.calls != 0 {
				t.Error("validation failure must not reach the embedder")
			}
		})
	}
}

func TestLookup_EmbedderErrorIsNotMiss(t *testing.T) {
	emb := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	svc := newTestService(emb, &mockVectorStore{}, nil)

	_, err := svc.Lookup(context.Background(), LookupRequest{Scope: "u", Query: "q"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestLookup_StoreErrorIsNotMiss(t *testing.T) {
	store := &mockVectorStore{searchErr: domain.ErrVectorStoreError}
	svc := newTestService(embOK(), store, nil)

	_, err := svc.Lookup(context.Background(), LookupRequest{Scope: "u", Query: "q"})
	if !errors.Is(err, domain.ErrVectorStoreError) {
		t.Fatalf("expected ErrVectorStoreError, got %v", err)
	}
}

func TestLookup_DimMismatch(t *testing.T) {
	emb := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}}
	svc := newTestService(emb, &mockVectorStore{}, nil)

	_, err := svc.Lookup(context.Background(), LookupRequest{Scope: "u", Query: "q"})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestLookup_NotReady(t *testing.T) {
	svc := New(embOK(), &mockVectorStore{}, decision.New(), nil, defaultConfig(), zap.NewNop())

	_, err := svc.Lookup(context.Background(), LookupRequest{Scope: "u", Query: "q"})
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestLookup_NilStatsDoesNotPanic(t *testing.T) {
	store := &mockVectorStore{candidates: []domain.SearchCandidate{
		{Payload: "p", Score: 0.95, CreatedAt: time.Now()},
	}}
	svc := newTestService(embOK(), store, nil)

	if _, err := svc.Lookup(context.Background(), LookupRequest{Scope: "u", Query: "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSave_Success(t *testing.T) {
	store := &mockVectorStore{}
	stats := &mockStats{}
	svc := newTestService(embOK(), store, stats)

	err := svc.Save(context.Background(), SaveRequest{
		Scope: "user-1", Query: "capital of france", Payload: "Paris",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := store.inserted
	if e == nil {
		t.Fatal("expected Insert call")
	}
	if e.ID == "" {
		t.Error("entry must get a generated ID")
	}
	if e.Scope != "user-1" || e.ResponsePayload != "Paris" {
		t.Errorf("entry = %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt must default to now")
	}
	if len(e.QueryVector) != 3 {
		t.Errorf("vector length = %d", len(e.QueryVector))
	}

	c := stats.counterFor("cache_writes")
	if c == nil || c.labels["status"] != "success" {
		t.Errorf("expected success write counter, got %+v", c)
	}
}

func TestSave_ExplicitTimestamp(t *testing.T) {
	store := &mockVectorStore{}
	svc := newTestService(embOK(), store, nil)

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	err := svc.Save(context.Background(), SaveRequest{
		Scope: "u", Query: "q", Payload: "p", Timestamp: &ts,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.inserted.CreatedAt.Equal(ts) {
		t.Errorf("CreatedAt = %v, want %v", store.inserted.CreatedAt, ts)
	}
}

func TestSave_InsertError(t *testing.T) {
	store := &mockVectorStore{insertErr: domain.ErrVectorStoreError}
	stats := &mockStats{}
	svc := newTestService(embOK(), store, stats)

	err := svc.Save(context.Background(), SaveRequest{Scope: "u", Query: "q", Payload: "p"})
	if !errors.Is(err, domain.ErrVectorStoreError) {
		t.Fatalf("expected ErrVectorStoreError, got %v", err)
	}

	c := stats.counterFor("cache_writes")
	if c == nil || c.labels["status"] != "error" {
		t.Errorf("expected error write counter, got %+v", c)
	}
}

func TestSave_Validation(t *testing.T) {
	svc := newTestService(embOK(), &mockVectorStore{}, nil)

	if err := svc.Save(context.Background(), SaveRequest{Query: "q"}); !errors.Is(err, domain.ErrEmptyScope) {
		t.Errorf("expected ErrEmptyScope, got %v", err)
	}
	if err := svc.Save(context.Background(), SaveRequest{Scope: "u"}); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestSave_NotReady(t *testing.T) {
	svc := New(embOK(), &mockVectorStore{}, decision.New(), nil, defaultConfig(), zap.NewNop())

	err := svc.Save(context.Background(), SaveRequest{Scope: "u", Query: "q", Payload: "p"})
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}
