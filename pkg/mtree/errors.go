package mtree

import "github.com/oneconcern/treemon/pkg/errors"

var (
	// ErrIsDirectory indicates an attempt to replace a directory by a file
	ErrIsDirectory = errors.ErrAlreadyExists.Extend("can't replace directory with file")

	// ErrNotDirectory indicates an attempt to use a file as a directory
	ErrNotDirectory = errors.ErrAlreadyExists.Extend("can't replace file with directory")

	// ErrNoSuchEntry indicates a missing file or directory
	ErrNoSuchEntry = errors.ErrNotFound.Extend("no such file or directory")

	// ErrNoMetadata indicates a directory flushed without metadata
	ErrNoMetadata = errors.ErrInvalidState.Extend("directory metadata not set")

	// ErrInvalidName indicates an invalid file name
	ErrInvalidName = errors.ErrInvalidArgument.Extend("invalid file name")

	// ErrUnsupportedFileType indicates a file which is neither a regular file, a directory nor a symlink
	ErrUnsupportedFileType = errors.ErrNotSupported.Extend("unsupported file type")
)
