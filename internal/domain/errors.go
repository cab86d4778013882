package domain

import "errors"

// Validation errors: rejected per request, never affect other requests.
var (
	// ErrEmptyScope signals a missing scope on a request.
	ErrEmptyScope = errors.New("scope is required")
	// ErrEmptyQuery signals missing query text on a request.
	ErrEmptyQuery = errors.New("query text is required")
	// ErrInvalidThreshold signals a per-request threshold outside [0,1].
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
	// ErrVectorDimMismatch signals a vector whose length differs from the
	// configured embedding dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// Collaborator errors: surfaced to the caller as distinct failures so that
// "no match" and "could not determine" stay distinguishable.
var (
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrVectorStoreError signals a vector store failure.
	ErrVectorStoreError = errors.New("vector store error")
)

// ErrNotReady signals that the service has not finished initialization and
// cannot serve lookups or saves yet.
var ErrNotReady = errors.New("service not ready")
