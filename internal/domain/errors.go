package domain

import "errors"

var (
	// ErrMalformedEntry marks a feed entry with neither title nor content.
	ErrMalformedEntry = errors.New("malformed entry")

	// ErrEmbeddingUnavailable is returned once the embedding provider's retry budget is spent.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrEmbeddingMismatch means the provider returned the wrong number of
	// vectors, a wrong dimension, or a zero vector.
	ErrEmbeddingMismatch = errors.New("embedding response mismatch")

	// ErrIndexUnavailable is returned once the vector index retry budget is spent.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrVectorNotFound means the index has no vector for the id.
	ErrVectorNotFound = errors.New("vector not found")

	// ErrArticleNotFound means the article id is unknown to the index.
	ErrArticleNotFound = errors.New("article not found")

	// ErrProviderUnauthorized is returned for rejected credentials. Never retried.
	ErrProviderUnauthorized = errors.New("provider rejected credentials")

	// ErrConfiguration marks invalid or missing configuration.
	ErrConfiguration = errors.New("invalid configuration")
)
