package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid or missing configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrModelLoad marks a local embedding model that could not be loaded.
	ErrModelLoad = errors.New("embedding model load failed")
	// ErrRateLimitExceeded marks a remote provider that kept rate limiting after every retry.
	ErrRateLimitExceeded = errors.New("embedding rate limit exceeded")
	// ErrEmbeddingProvider marks a non-retryable remote provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrDimensionMismatch marks a vector whose length differs from the store's.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrStoreIO marks a failure to read or write the persistent store.
	ErrStoreIO = errors.New("store I/O error")
	// ErrInvalidInput marks a malformed request.
	ErrInvalidInput = errors.New("invalid input")
)

// ProviderError describes a failed call to a remote embedding provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + " embedding request failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Cause }

func (e *ProviderError) Is(target error) bool {
	return target == ErrEmbeddingProvider
}

// DimensionMismatchError reports the expected and received vector lengths.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch, e.Expected, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// StoreIOError wraps a persistence failure with the operation and file involved.
type StoreIOError struct {
	Op    string
	Path  string
	Cause error
}

func (e *StoreIOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *StoreIOError) Unwrap() error { return e.Cause }

func (e *StoreIOError) Is(target error) bool {
	return target == ErrStoreIO
}
