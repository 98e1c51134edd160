package models

import "errors"

// Generator output errors.
var (
	// ErrMalformedResponse indicates model output could not be parsed into the expected shape.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrEmptyResponse indicates the model returned nothing usable.
	ErrEmptyResponse = errors.New("empty response")
)

// Embedding errors.
var (
	// ErrDimensionMismatch indicates a vector whose length differs from the configured dimensions.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Store errors.
var (
	// ErrNotFound indicates no document exists for the requested key.
	ErrNotFound = errors.New("not found")

	// ErrStoreFailure wraps backend write failures.
	ErrStoreFailure = errors.New("store failure")
)

// Transport errors.
var (
	// ErrTransient marks failures worth retrying (rate limits, 5xx).
	ErrTransient = errors.New("transient failure")
)
