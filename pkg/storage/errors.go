package storage

import "errors"

// Sentinel errors for ledger operations.
var (
	// ErrConflict is returned when a record with the same request ID exists.
	ErrConflict = errors.New("usage record already exists")

	// ErrInvalidRecord is returned for records without a request ID.
	ErrInvalidRecord = errors.New("usage record has no request id")
)
