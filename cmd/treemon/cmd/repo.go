package cmd

import (
	"path/filepath"

	"github.com/oneconcern/treemon/pkg/core"
	"github.com/oneconcern/treemon/pkg/sysroot"
)

func repoOptions() ([]core.RepoOption, error) {
	cacheSize, err := parseCacheSize(treemonFlags.repo.cacheSize)
	if err != nil {
		return nil, err
	}
	opts := []core.RepoOption{
		core.WithLogger(logger),
		core.WithVerifyExisting(treemonFlags.repo.verifyWrite),
		core.WithSystemRepo(treemonFlags.repo.systemRepo),
	}
	if cacheSize >= 0 {
		opts = append(opts, core.WithCacheSize(cacheSize))
	}
	if treemonFlags.repo.remotesDir != "" {
		dir, err := filepath.Abs(treemonFlags.repo.remotesDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.WithRemotesConfigDir(dir))
	}
	return opts, nil
}

// openRepo opens the repository given by --repo. The caller closes it.
func openRepo() (*core.Repo, error) {
	opts, err := repoOptions()
	if err != nil {
		return nil, err
	}
	return core.OpenRepo(treemonFlags.root.repo, opts...)
}

// openSysroot loads the sysroot given by --sysroot. The caller closes it.
func openSysroot(opts ...sysroot.Option) (*sysroot.Sysroot, error) {
	opts = append([]sysroot.Option{sysroot.Logger(logger)}, opts...)
	s, err := sysroot.New(treemonFlags.root.sysroot, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
