package storage

import dErrors "habita/pkg/domain-errors"

var (
	// ErrNotFound keeps storage-specific 404s consistent across in-memory and
	// SQL implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")

	// ErrVersionConflict reports a lost compare-and-swap: the application was
	// modified between the caller's read and write.
	ErrVersionConflict = dErrors.New(dErrors.CodeStaleState, "application modified concurrently")

	// ErrAlreadyExists reports a Create against an existing ID.
	ErrAlreadyExists = dErrors.New(dErrors.CodeInvalidInput, "record already exists")
)
