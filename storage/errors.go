package storage

import "errors"

// Repository errors. Backends wrap driver failures in these so callers can
// classify them with errors.Is regardless of the backend in use.
var (
	// ErrNotFound indicates that the requested session or asset does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates a session or asset with the same id exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrTransactionFailed indicates a transaction could not be committed,
	// e.g. after repeated write conflicts on the same session.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed indicates the backend was used after Close.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates a vector query without an asset filter or with k < 1.
	ErrInvalidQuery = errors.New("invalid query parameters")
)

// Codec errors returned by the Unmarshal helpers.
var (
	// ErrSerializationFailed indicates a stored record could not be decoded.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates a stored record ended before all its fields
	// were read. It is always reported together with ErrSerializationFailed.
	ErrTruncatedData = errors.New("truncated data")
)
