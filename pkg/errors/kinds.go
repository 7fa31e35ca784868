package errors

import "fmt"

// Kinds of errors returned by treemon packages.
//
// Package-specific sentinels extend one of these.
var (
	// ErrNotFound indicates a missing object, ref, remote or deployment
	ErrNotFound = New("not found")

	// ErrCorruption indicates content that does not match its checksum
	ErrCorruption = New("corrupted")

	// ErrAlreadyExists indicates a conflicting resource
	ErrAlreadyExists = New("already exists")

	// ErrNotSupported indicates an operation unavailable in the current mode
	ErrNotSupported = New("not supported")

	// ErrInvalidState indicates an operation called out of sequence
	ErrInvalidState = New("invalid state")

	// ErrIO indicates an underlying filesystem failure
	ErrIO = New("I/O failure")

	// ErrWouldBlock indicates a lock could not be acquired in time
	ErrWouldBlock = New("would block")

	// ErrInvalidArgument indicates a malformed name or checksum
	ErrInvalidArgument = New("invalid argument")
)

// IsRecoverable tells if the error is a condition a caller may handle and retry
func IsRecoverable(err error) bool {
	return Is(err, ErrNotFound) || Is(err, ErrAlreadyExists) || Is(err, ErrWouldBlock)
}

// IsIntegrity tells if the error reports damaged content
func IsIntegrity(err error) bool {
	return Is(err, ErrCorruption)
}

func sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
