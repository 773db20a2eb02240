package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuery signals a malformed resolution request.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrIndexUnavailable signals that the search index cannot be reached.
	ErrIndexUnavailable = errors.New("search index unavailable")
	// ErrSessionStoreUnavailable signals that the session store cannot be reached.
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
)
