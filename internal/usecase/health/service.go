package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the cache can still answer some requests.
	Degraded Status = "degraded"
	// Unhealthy indicates the cache cannot serve at all.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(store StorePinger, embedding EmbeddingChecker) *Service {
	return &Service{store: store, embedding: embedding}
}

// Check runs health checks against all components. A vector store failure
// makes the service Unhealthy (neither lookups nor saves can proceed); an
// embedding failure alone degrades it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	storeOK := s.store.Ping(ctx) == nil
	if storeOK {
		checks["vector_store"] = CheckOK
	} else {
		checks["vector_store"] = CheckError
	}

	embeddingOK := true
	if s.embedding != nil {
		embeddingOK = s.embedding.HealthCheck(ctx) == nil
		if embeddingOK {
			checks["embedding"] = CheckOK
		} else {
			checks["embedding"] = CheckError
		}
	}

	status := Healthy
	switch {
	case !storeOK:
		status = Unhealthy
	case !embeddingOK:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
