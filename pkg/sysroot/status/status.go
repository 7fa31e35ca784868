// Package status exports errors produced by the sysroot package.
package status

import (
	"github.com/oneconcern/treemon/pkg/errors"
)

var (
	// ErrNotInitialized indicates a sysroot without repository or boot loader state
	ErrNotInitialized = errors.ErrNotFound.Extend("sysroot is not initialized")

	// ErrNotLoaded indicates the use of a sysroot before Load
	ErrNotLoaded = errors.ErrInvalidState.Extend("sysroot is not loaded")

	// ErrOsExists indicates an attempt to initialize an operating system twice
	ErrOsExists = errors.ErrAlreadyExists.Extend("operating system already initialized")

	// ErrOsNotFound indicates a deployment for an operating system which was never initialized
	ErrOsNotFound = errors.ErrNotFound.Extend("operating system not initialized")

	// ErrNoKernel indicates a tree without kernel, which can't be booted
	ErrNoKernel = errors.ErrNotFound.Extend("no kernel found in tree")

	// ErrDeploymentNotFound indicates a deployment without checked out directory
	ErrDeploymentNotFound = errors.ErrNotFound.Extend("deployment not found")

	// ErrDuplicateDeployment indicates a deployment listed twice
	ErrDuplicateDeployment = errors.ErrInvalidArgument.Extend("deployment listed twice")

	// ErrBootState indicates an unreadable boot loader pointer or deployment list
	ErrBootState = errors.ErrCorruption.Extend("invalid boot loader state")

	// ErrEtcMerge indicates configuration changes which can't be carried over to a new deployment
	ErrEtcMerge = errors.ErrInvalidState.Extend("cannot merge configuration")

	// ErrOrigin indicates an unreadable origin file
	ErrOrigin = errors.ErrCorruption.Extend("invalid origin file")
)
