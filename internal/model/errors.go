// Package model holds the error taxonomy shared by the indexing and retrieval
// pipelines. Callers decide retry/skip/abort policy from the error type.
package model

import (
	"errors"
	"fmt"
)

// ErrRetrievalUnavailable marks a transient provider failure that survived the
// adapter's bounded retries.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

// InputError represents a malformed query, record or image. Never retried.
type InputError struct {
	Field   string
	Message string
}

func (e InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewInputError creates a new input error
func NewInputError(field, message string) InputError {
	return InputError{Field: field, Message: message}
}

// IsInputError checks if an error is an input error (including wrapped errors)
func IsInputError(err error) bool {
	var ie InputError
	return errors.As(err, &ie)
}

// ErrorCategory determines how provider errors are handled by retry logic.
type ErrorCategory int

const (
	// Transient errors are retried with exponential backoff.
	// Examples: timeouts, connection failures, 408, 429, 5xx.
	Transient ErrorCategory = iota

	// Permanent errors fail immediately without retry.
	// Examples: 401 Unauthorized, 403 Forbidden, unknown model.
	Permanent
)

// String returns a human-readable representation of the error category.
func (c ErrorCategory) String() string {
	switch c {
	case Transient:
		return "Transient"
	case Permanent:
		return "Permanent"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// ProviderError wraps a failure of an embedding, rerank or generation backend.
type ProviderError struct {
	Category   ErrorCategory
	Provider   string
	StatusCode int    // HTTP status code (0 for non-HTTP errors)
	Body       string // Response body for debugging
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s [%s] HTTP %d: %v", e.Provider, e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s [%s] %v", e.Provider, e.Category, e.Err)
}

// Unwrap returns the underlying error for error chain compatibility.
func (e *ProviderError) Unwrap() error { return e.Err }

// ClassifyHTTP maps a provider HTTP status to an error category:
// 408 and 429 are transient, other 4xx are permanent, everything else transient.
func ClassifyHTTP(provider string, statusCode int, body string) *ProviderError {
	category := Transient
	if statusCode >= 400 && statusCode < 500 && statusCode != 408 && statusCode != 429 {
		category = Permanent
	}
	return &ProviderError{
		Category:   category,
		Provider:   provider,
		StatusCode: statusCode,
		Body:       body,
		Err:        fmt.Errorf("unexpected status %d", statusCode),
	}
}

// NewTransientError creates a transient error for network-level failures.
func NewTransientError(provider string, err error) *ProviderError {
	return &ProviderError{Category: Transient, Provider: provider, Err: err}
}

// NewPermanentError creates a permanent provider error.
func NewPermanentError(provider string, err error) *ProviderError {
	return &ProviderError{Category: Permanent, Provider: provider, Err: err}
}

// IsTransient reports whether err carries a transient provider error.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Category == Transient
}

// IsPermanent reports whether err carries a permanent provider error.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Category == Permanent
}

// StoreError wraps a catalog store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err unless it is nil or already a StoreError.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError checks if error is StoreError
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// DegradedFeatureError reports an optional feature (rerank, generation) that
// failed and was omitted from a response.
type DegradedFeatureError struct {
	Feature string
	Err     error
}

func (e *DegradedFeatureError) Error() string {
	return fmt.Sprintf("%s degraded: %v", e.Feature, e.Err)
}

func (e *DegradedFeatureError) Unwrap() error { return e.Err }

// IsDegraded checks if error is DegradedFeatureError
func IsDegraded(err error) bool {
	var de *DegradedFeatureError
	return errors.As(err, &de)
}
