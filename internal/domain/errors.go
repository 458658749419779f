package domain

import "errors"

// Error kinds surfaced by the index and the query pipeline. Callers wrap them
// with context and match with errors.Is.
var (
	// ErrInvalidArgument marks a malformed request field.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIndexNotFound means the similarity index artifact is missing or unreadable.
	ErrIndexNotFound = errors.New("index not found")

	// ErrMetadataNotFound means the metadata artifact is missing or unreadable.
	ErrMetadataNotFound = errors.New("metadata not found")

	// ErrArtifactMismatch means the index and metadata artifacts do not describe
	// the same build (ordinal counts differ).
	ErrArtifactMismatch = errors.New("index and metadata out of sync")

	// ErrDimensionMismatch means a vector does not have the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrUpstreamService wraps failures of the embedder or summarizer, including
	// a missing configuration.
	ErrUpstreamService = errors.New("upstream service error")
)
