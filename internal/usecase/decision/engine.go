// Package decision turns a raw similarity search result into a cache
// hit/miss decision.
package decision

import (
	"time"

	"github.com/kailas-cloud/semcache/internal/domain"
)

// Engine decides cache hits from search candidates. It is stateless and
// side-effect free: metric reporting belongs to the caller.
type Engine struct{}

// New creates a decision engine.
func New() *Engine {
	return &Engine{}
}

// Decide picks the best non-expired candidate and compares it against the
// threshold. Candidates whose age is at least ttl are discarded even if the
// store was supposed to expire them (store-side expiry is not instantaneous).
//
// Selection is deterministic: highest score wins, equal scores break by the
// most recent CreatedAt, and a full tie keeps the earliest candidate in
// input order.
func (e *Engine) Decide(
	candidates []domain.SearchCandidate, threshold float64, ttl time.Duration, now time.Time,
) domain.Decision {
	best := -1
	for i, c := range candidates {
		if ttl > 0 && now.Sub(c.CreatedAt) >= ttl {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		if c.Score > candidates[best].Score {
			best = i
			continue
		}
		if c.Score == candidates[best].Score && c.CreatedAt.After(candidates[best].CreatedAt) {
			best = i
		}
	}

	if best < 0 || candidates[best].Score < threshold {
		return domain.Decision{Outcome: domain.Miss}
	}

	return domain.Decision{
		Outcome:      domain.Hit,
		Payload:      candidates[best].Payload,
		MatchedScore: candidates[best].Score,
	}
}
