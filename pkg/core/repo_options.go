package core

import (
	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/dlogger"
	"go.uber.org/zap"
)

type (
	// RepoOption modifies how a repository is created or opened
	RepoOption func(*repoOptions)

	repoOptions struct {
		l              *zap.Logger
		remotesDir     string
		systemRepo     bool
		cacheSize      int
		verifyExisting bool
	}
)

// WithLogger sets the logger of the repository
func WithLogger(zlg *zap.Logger) RepoOption {
	return func(o *repoOptions) {
		if zlg != nil {
			o.l = zlg
		}
	}
}

// WithRemotesConfigDir sets a directory of NAME.conf files defining remotes, in addition to the main configuration
func WithRemotesConfigDir(dir string) RepoOption {
	return func(o *repoOptions) {
		o.remotesDir = dir
	}
}

// WithSystemRepo marks the repository of a sysroot: new remotes are defined in the remotes config directory
func WithSystemRepo(enabled bool) RepoOption {
	return func(o *repoOptions) {
		o.systemRepo = enabled
	}
}

// WithCacheSize sets the number of metadata objects kept in memory
func WithCacheSize(size int) RepoOption {
	return func(o *repoOptions) {
		o.cacheSize = size
	}
}

// WithVerifyExisting re-hashes objects already present before skipping their write
func WithVerifyExisting(enabled bool) RepoOption {
	return func(o *repoOptions) {
		o.verifyExisting = enabled
	}
}

func defaultRepoOptions(opts []RepoOption) *repoOptions {
	o := &repoOptions{
		cacheSize: cafs.DefaultCacheSize,
	}
	for _, apply := range opts {
		apply(o)
	}
	if o.l == nil {
		o.l = dlogger.MustGetLogger(dlogger.LogLevelInfo)
	}
	return o
}
