package semcache

import "github.com/kailas-cloud/semcache/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrEmptyScope             = domain.ErrEmptyScope
	ErrEmptyQuery             = domain.ErrEmptyQuery
	ErrInvalidThreshold       = domain.ErrInvalidThreshold
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrVectorStoreError       = domain.ErrVectorStoreError
	ErrNotReady               = domain.ErrNotReady
)
