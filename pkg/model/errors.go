package model

import "github.com/oneconcern/treemon/pkg/errors"

var (
	// ErrInvalidRefName indicates a malformed ref
	ErrInvalidRefName = errors.ErrInvalidArgument.Extend("invalid ref name")

	// ErrInvalidRemoteName indicates a malformed remote name
	ErrInvalidRemoteName = errors.ErrInvalidArgument.Extend("invalid remote name")

	// ErrInvalidChecksum indicates a malformed checksum string
	ErrInvalidChecksum = errors.ErrInvalidArgument.Extend("invalid checksum")

	// ErrInvalidObjectPath indicates a key which is not the path of an object
	ErrInvalidObjectPath = errors.ErrInvalidArgument.Extend("invalid object path")

	// ErrMalformedObject indicates an object which cannot be decoded
	ErrMalformedObject = errors.ErrCorruption.Extend("malformed object")
)
