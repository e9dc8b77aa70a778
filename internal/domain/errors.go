package domain

import "errors"

var (
	// ErrTaskNotFound signals a missing ingestion task.
	ErrTaskNotFound = errors.New("task not found")
	// ErrUnknownMediaType signals an unsupported media type.
	ErrUnknownMediaType = errors.New("unknown media type")
	// ErrUnknownModality signals an unsupported query modality.
	ErrUnknownModality = errors.New("unknown modality")
	// ErrInvalidTopK signals a top_k outside the allowed range.
	ErrInvalidTopK = errors.New("top_k out of range")
	// ErrMediaUndecodable signals that uploaded bytes do not decode as the declared type.
	ErrMediaUndecodable = errors.New("media content does not match declared type")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrVectorNotFinite signals NaN or Inf components in a vector.
	ErrVectorNotFinite = errors.New("vector contains non-finite values")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrQueryFetch signals that query media could not be resolved to local bytes.
	ErrQueryFetch = errors.New("query media fetch failed")
)

// StageError classifies an ingestion stage failure. The retry engine
// inspects Transient to decide between backoff-retry and terminal fail;
// errors are returned, never thrown across the worker boundary.
type StageError struct {
	Transient bool
	Err       error
}

func (e *StageError) Error() string { return e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// TransientError marks err as retryable (storage/network/provider faults, timeouts).
func TransientError(err error) error {
	return &StageError{Transient: true, Err: err}
}

// PermanentError marks err as non-retryable (validation, config mismatch).
func PermanentError(err error) error {
	return &StageError{Transient: false, Err: err}
}

// IsTransient reports whether err should be retried under the stage
// retry budget. Unclassified errors default to transient: the stages
// mark every validation failure permanent explicitly, so whatever is
// left is infrastructure.
func IsTransient(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Transient
	}
	return true
}
