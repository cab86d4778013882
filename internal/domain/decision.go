package domain

import "time"

// Outcome is the result of a cache lookup decision.
type Outcome string

const (
	// Hit means a stored entry matched at or above the similarity threshold.
	Hit Outcome = "hit"
	// Miss means no stored entry qualified.
	Miss Outcome = "miss"
)

// Decision is the outcome of a cache lookup. MatchedScore and Payload are
// populated only on Hit.
type Decision struct {
	Outcome      Outcome
	Payload      string
	MatchedScore float64
	Latency      time.Duration
	Scope        string
}

// IsHit reports whether the decision is a cache hit.
func (d Decision) IsHit() bool { return d.Outcome == Hit }
