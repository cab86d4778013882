package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semcache/internal/domain"
	"github.com/kailas-cloud/semcache/internal/stats"
	cacheuc "github.com/kailas-cloud/semcache/internal/usecase/cache"
	"github.com/kailas-cloud/semcache/internal/usecase/decision"
	healthuc "github.com/kailas-cloud/semcache/internal/usecase/health"
)

// --- Mocks ---

type mockEmbedder struct {
	vector []float32
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vector}, nil
}

func (m *mockEmbedder) HealthCheck(_ context.Context) error { return m.err }

type mockVectorStore struct {
	candidates []domain.SearchCandidate
	searchErr  error
	insertErr  error
	pingErr    error
}

func (m *mockVectorStore) Search(_ context.Context, _ []float32, _ string, _ int) ([]domain.SearchCandidate, error) {
	return m.candidates, m.searchErr
}

func (m *mockVectorStore) Insert(_ context.Context, _ *domain.CacheEntry) error {
	return m.insertErr
}

func (m *mockVectorStore) Ping(_ context.Context) error { return m.pingErr }

// --- Helpers ---

func newTestServer(emb *mockEmbedder, store *mockVectorStore, ready bool) *Server {
	svc := cacheuc.New(emb, store, decision.New(), nil, cacheuc.Config{
		Threshold:      0.85,
		TTL:            24 * time.Hour,
		CandidateCount: 10,
		Dimensions:     3,
	}, zap.NewNop())
	if ready {
		svc.Ready()
	}
	return NewServer(svc, healthuc.New(store, emb), nil, zap.NewNop())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func embOK() *mockEmbedder { return &mockEmbedder{vector: []float32{0.1, 0.2, 0.3}} }

// --- Tests ---

func TestLookup_Hit(t *testing.T) {
	store := &mockVectorStore{candidates: []domain.SearchCandidate{
		{Payload: "Paris", Score: 0.93, CreatedAt: time.Now()},
	}}
	srv := newTestServer(embOK(), store, true)

	rr := doJSON(t, srv.Routes(), "POST", "/cache/lookup", LookupRequest{
		Scope: "user-1", Query: "capital of france",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp LookupResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != "hit" {
		t.Errorf("outcome = %q", resp.Outcome)
	}
	if resp.Payload == nil || *resp.Payload != "Paris" {
		t.Errorf("payload = %v", resp.Payload)
	}
	if resp.MatchedScore == nil || *resp.MatchedScore != 0.93 {
		t.Errorf("matched_score = %v", resp.MatchedScore)
	}
	if resp.Scope != "user-1" {
		t.Errorf("scope = %q", resp.Scope)
	}
}

func TestLookup_Miss(t *testing.T) {
	store := &mockVectorStore{candidates: []domain.SearchCandidate{
		{Payload: "weak", Score: 0.60, CreatedAt: time.Now()},
	}}
	srv := newTestServer(embOK(), store, true)

	rr := doJSON(t, srv.Routes(), "POST", "/cache/lookup", LookupRequest{Scope: "u", Query: "q"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp LookupResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != "miss" {
		t.Errorf("outcome = %q", resp.Outcome)
	}
	if resp.Payload != nil {
		t.Error("payload must be absent on miss")
	}
}

func TestLookup_ValidationError(t *testing.T) {
	srv := newTestServer(embOK(), &mockVectorStore{}, true)

	rr := doJSON(t, srv.Routes(), "POST", "/cache/lookup", LookupRequest{Query: "q"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != CodeValidationFailed {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestLookup_BadJSON(t *testing.T) {
	srv := newTestServer(embOK(), &mockVectorStore{}, true)

	req := httptest.NewRequest("POST", "/cache/lookup", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestLookup_EmbeddingError(t *testing.T) {
	emb := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	srv := newTestServer(emb, &mockVectorStore{}, true)

	rr := doJSON(t, srv.Routes(), "POST", "/cache/lookup", LookupRequest{Scope: "u", Query: "q"})

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestLookup_StoreError(t *testing.T) {
	store := &mockVectorStore{searchErr: domain.ErrVectorStoreError}
	srv := newTestServer(embOK(), store, true)

	rr := doJSON(t, srv.Routes(), "POST", "/cache/lookup", LookupRequest{Scope: "u", Query: "q"})

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestLookup_NotReady(t *testing.T) {
	srv := newTestServer(embOK(), &mockVectorStore{}, false)

	rr := doJSON(t, srv.Routes(), "POST", "/cache/lookup", LookupRequest{Scope: "u", Query: "q"})

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != CodeNotReady {
		t.Errorf("code = %q, want %q", resp.Code, CodeNotReady)
	}
}

func TestSave_Success(t *testing.T) {
	srv := newTestServer(embOK(), &mockVectorStore{}, true)

	rr := doJSON(t, srv.Routes(), "POST", "/cache/save", SaveRequest{
		Scope: "user-1", Query: "capital of france", Payload: "Paris",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp SaveResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "saved" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestSave_InsertError(t *testing.T) {
	store := &mockVectorStore{insertErr: domain.ErrVectorStoreError}
	srv := newTestServer(embOK(), store, true)

	rr := doJSON(t, srv.Routes(), "POST", "/cache/save", SaveRequest{
		Scope: "u", Query: "q", Payload: "p",
	})

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestHealth_Liveness(t *testing.T) {
	// /health must not touch collaborators
	store := &mockVectorStore{pingErr: domain.ErrVectorStoreError}
	srv := newTestServer(embOK(), store, true)

	rr := doJSON(t, srv.Routes(), "GET", "/health", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestHealthDetailed_Unhealthy(t *testing.T) {
	store := &mockVectorStore{pingErr: domain.ErrVectorStoreError}
	srv := newTestServer(embOK(), store, true)

	rr := doJSON(t, srv.Routes(), "GET", "/health/detailed", nil)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Checks["vector_store"] != "error" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestHealthDetailed_Degraded(t *testing.T) {
	emb := &mockEmbedder{vector: []float32{0.1, 0.2, 0.3}, err: domain.ErrEmbeddingProviderError}
	srv := newTestServer(emb, &mockVectorStore{}, true)

	rr := doJSON(t, srv.Routes(), "GET", "/health/detailed", nil)

	// degraded still serves 200
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestHealthDetailed_ServiceInfo(t *testing.T) {
	srv := newTestServer(embOK(), &mockVectorStore{}, true).
		WithServiceInfo(ServiceInfo{
			Version:          "test",
			EmbeddingModel:   "all-MiniLM-L6-v2",
			VectorDimensions: 3,
			DefaultThreshold: 0.85,
		})

	rr := doJSON(t, srv.Routes(), "GET", "/health/detailed", nil)

	var resp HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Service == nil {
		t.Fatal("service info missing")
	}
	if resp.Service.EmbeddingModel != "all-MiniLM-L6-v2" || resp.Service.VectorDimensions != 3 {
		t.Errorf("service = %+v", resp.Service)
	}
}

func TestStats_Snapshot(t *testing.T) {
	engine := stats.New()
	engine.IncCounter("cache_requests", map[string]string{"scope": "u", "outcome": "hit"}, 3)

	svc := cacheuc.New(embOK(), &mockVectorStore{}, decision.New(), engine, cacheuc.Config{
		Threshold: 0.85, CandidateCount: 10, Dimensions: 3,
	}, zap.NewNop())
	svc.Ready()
	srv := NewServer(svc, healthuc.New(&mockVectorStore{}, nil), engine, zap.NewNop())

	rr := doJSON(t, srv.Routes(), "GET", "/cache/stats", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var snap stats.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.Counters["cache_requests{outcome=hit,scope=u}"] != 3 {
		t.Errorf("counters = %v", snap.Counters)
	}
}

func TestStats_NilEngine(t *testing.T) {
	srv := newTestServer(embOK(), &mockVectorStore{}, true)

	rr := doJSON(t, srv.Routes(), "GET", "/cache/stats", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(embOK(), &mockVectorStore{}, true)

	rr := doJSON(t, srv.Routes(), "GET", "/metrics", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Error("expected non-empty metrics output")
	}
}
