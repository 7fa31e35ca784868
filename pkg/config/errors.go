package config

import "github.com/oneconcern/treemon/pkg/errors"

var (
	// ErrRemoteNotFound indicates an undefined remote
	ErrRemoteNotFound = errors.ErrNotFound.Extend("remote not found")

	// ErrRemoteExists indicates a remote which is already defined
	ErrRemoteExists = errors.ErrAlreadyExists.Extend("remote already exists")

	// ErrRemoteInConfigDir indicates an attempt to define in the main config file a remote owned by the remotes config directory
	ErrRemoteInConfigDir = errors.ErrAlreadyExists.Extend("remote is defined in the remotes config directory")

	// ErrInvalidConfig indicates a config file which cannot be parsed or holds invalid values
	ErrInvalidConfig = errors.ErrInvalidArgument.Extend("invalid configuration")

	// ErrWriteConfig indicates a failure to persist the configuration
	ErrWriteConfig = errors.ErrIO.Extend("cannot write configuration")
)
