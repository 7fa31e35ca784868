package cafs

import "github.com/oneconcern/treemon/pkg/errors"

var (
	// ErrObjectNotFound indicates a missing object
	ErrObjectNotFound = errors.ErrNotFound.Extend("object not found")

	// ErrChecksumMismatch indicates that some content does not hash to its expected checksum
	ErrChecksumMismatch = errors.ErrCorruption.Extend("checksum mismatch")

	// ErrCorruptedObject indicates a stored object which cannot be read back
	ErrCorruptedObject = errors.ErrCorruption.Extend("corrupted object")

	// ErrStreamingNotSupported indicates an incremental write on a compressed store
	ErrStreamingNotSupported = errors.ErrNotSupported.Extend("incremental file writes are only supported by bare stores")

	// ErrWriterDone indicates a write on a finished or aborted file writer
	ErrWriterDone = errors.ErrInvalidState.Extend("file writer already done")

	// ErrBadKey indicates a malformed key
	ErrBadKey = errors.ErrInvalidArgument.Extend("invalid key")

	// ErrUnknownMode indicates an unsupported repository mode
	ErrUnknownMode = errors.ErrNotSupported.Extend("unknown store mode")
)
