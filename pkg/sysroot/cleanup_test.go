package sysroot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oneconcern/treemon/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCleanup(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	s := setupSysroot(t)
	first := commitTree(t, s, "main", baseTree())
	d0 := deploy(t, s, "main", nil)
	second := commitTree(t, s, "main", with(baseTree(), map[string]string{"usr/bin/tool": "tool v2"}))
	d1 := deploy(t, s, "main", d0)
	require.NoError(t, s.WriteDeployments(ctx, []*model.Deployment{d0}))
	require.NoError(t, s.WriteDeployments(ctx, []*model.Deployment{d1}))

	stale := filepath.Join(s.Path(), model.BootDir, ".loader"+tmpInfix+"interrupted")
	require.NoError(t, os.WriteFile(stale, []byte("loader.0"), 0644))

	stats, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeploymentsRemoved)
	// the first commit, its changed file and the trees above it: usr/bin, usr and the root
	assert.Equal(t, 5, stats.Pruned.ObjectsPruned)

	for _, pth := range []string{s.DeploymentDirectory(d0), s.OriginPath(d0), stale, filepath.Join(s.Path(), model.LoaderDir(1-s.BootVersion()))} {
		_, err = os.Stat(pth)
		assert.True(t, os.IsNotExist(err), pth)
	}
	for _, pth := range []string{s.DeploymentDirectory(d1), s.OriginPath(d1), filepath.Join(s.Path(), model.LoaderDir(s.BootVersion()))} {
		_, err = os.Stat(pth)
		assert.NoError(t, err, pth)
	}

	repo := s.Repo()
	assert.False(t, hasCommit(t, repo, first))
	assert.True(t, hasCommit(t, repo, second))
	_, err = repo.Fsck(ctx)
	require.NoError(t, err)

	// deployed commits are kept even without ref
	require.NoError(t, repo.SetRefImmediate(ctx, "", "main", nil))
	stats, err = s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.DeploymentsRemoved)
	assert.Zero(t, stats.Pruned.ObjectsPruned)
	assert.True(t, hasCommit(t, repo, second))

	require.NoError(t, s.WriteDeployments(ctx, nil))
	stats, err = s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeploymentsRemoved)
	assert.False(t, hasCommit(t, repo, second))
}

func TestCleanupStaleHandle(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	s := setupSysroot(t)
	first := commitTree(t, s, "main", baseTree())

	stale := newSysroot(t, s.Path())
	require.NoError(t, stale.Load(ctx))
	require.Empty(t, stale.Deployments())

	d := deploy(t, s, "main", nil)
	require.NoError(t, s.WriteDeployments(ctx, []*model.Deployment{d}))
	require.NoError(t, s.Repo().SetRefImmediate(ctx, "", "main", nil))

	stats, err := stale.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.DeploymentsRemoved)
	assert.Zero(t, stats.Pruned.ObjectsPruned)
	assert.Equal(t, s.BootVersion(), stale.BootVersion())
	require.Len(t, stale.Deployments(), 1)

	for _, pth := range []string{s.DeploymentDirectory(d), s.OriginPath(d), filepath.Join(s.Path(), model.LoaderDir(s.BootVersion()))} {
		_, err = os.Stat(pth)
		assert.NoError(t, err, pth)
	}
	assert.True(t, hasCommit(t, stale.Repo(), first))
	assert.True(t, hasCommit(t, s.Repo(), first))

	deployments := reloaded(t, s)
	require.Len(t, deployments, 1)
	assert.Equal(t, d.Dir(), deployments[0].Dir())
}
