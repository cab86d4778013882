package domain

import "time"

// CacheEntry is a stored query/response pair. Entries are immutable after
// creation: they are inserted once and live until evicted or expired.
type CacheEntry struct {
	ID              string
	Scope           string
	QueryText       string
	QueryVector     []float32
	ResponsePayload string
	CreatedAt       time.Time
}

// SearchCandidate is a single vector store hit for a lookup query, before
// threshold and TTL filtering. Score is a normalized similarity in [0,1],
// higher is more similar.
type SearchCandidate struct {
	Payload   string
	Score     float64
	CreatedAt time.Time
}
