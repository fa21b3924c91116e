// Package dberrors defines the error kinds surfaced by the public API.
// Callers classify with errors.Is against these sentinels; messages are
// wrapped with field-level context at the point of failure.
package dberrors

import "errors"

var (
	// ErrUnknownCollection is returned when an operation names a collection
	// that was never created.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrDuplicateCollection is returned when creating a collection whose
	// name is already taken.
	ErrDuplicateCollection = errors.New("collection already exists")

	// ErrUnknownIndex is returned when dropping an index that does not exist.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrDuplicateIndex is returned when creating an index on a
	// (collection, field) pair that already has one.
	ErrDuplicateIndex = errors.New("index already exists")

	// ErrDuplicateKey is returned on a unique-constraint violation during
	// insert, update, or index build.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidQuery is returned for a malformed filter or an unsupported
	// operator.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrOutOfMemory is returned when an insert would push tracked document
	// memory past the configured ceiling.
	ErrOutOfMemory = errors.New("memory limit exceeded")

	// ErrSchemaViolation is returned when the optional schema validator
	// rejects a document.
	ErrSchemaViolation = errors.New("schema violation")
)
