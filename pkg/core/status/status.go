// Package status exports errors produced by the core package.
package status

import (
	"github.com/oneconcern/treemon/pkg/errors"
)

var (
	// ErrRepoExists indicates an attempt to create a repository over an existing one
	ErrRepoExists = errors.ErrAlreadyExists.Extend("repository already exists")

	// ErrNotARepo indicates a directory without a repository configuration
	ErrNotARepo = errors.ErrNotFound.Extend("not a repository")

	// ErrRefNotFound indicates a missing ref
	ErrRefNotFound = errors.ErrNotFound.Extend("ref not found")

	// ErrNoParent indicates a rev^ expression on a commit without parent
	ErrNoParent = errors.ErrNotFound.Extend("commit has no parent")

	// ErrInvalidRev indicates a malformed revision
	ErrInvalidRev = errors.ErrInvalidArgument.Extend("invalid revision")

	// ErrTransactionInProgress indicates a transaction prepared while another one is open
	ErrTransactionInProgress = errors.ErrInvalidState.Extend("a transaction is already in progress")

	// ErrTransactionDone indicates the use of a committed or aborted transaction
	ErrTransactionDone = errors.ErrInvalidState.Extend("transaction is no longer active")

	// ErrNotEnoughSpace indicates that a write would leave less than the configured free space
	ErrNotEnoughSpace = errors.ErrIO.Extend("not enough free space")

	// ErrRefLocation indicates a staged configuration which would change the location of a remote
	ErrRefLocation = errors.ErrAlreadyExists.Extend("remote is defined in the remotes config directory")

	// ErrSignature indicates a commit whose signature could not be verified
	ErrSignature = errors.ErrCorruption.Extend("signature verification failed")

	// ErrBranchNotAllowed indicates a pull of a branch not listed by the remote
	ErrBranchNotAllowed = errors.ErrInvalidArgument.Extend("branch is not allowed by the remote")

	// ErrMissingObject indicates an object referenced by another one but absent from the store
	ErrMissingObject = errors.ErrNotFound.Extend("missing referenced object")

	// ErrCheckoutExists indicates a checkout over an existing file without the union or overwrite options
	ErrCheckoutExists = errors.ErrAlreadyExists.Extend("checkout destination exists")
)
