package sysroot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/sysroot/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestEnsureInitialized(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "sysroot")
	s := newSysroot(t, root)

	err := s.Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotInitialized))
	assert.True(t, errors.IsRecoverable(err))

	require.NoError(t, s.EnsureInitialized(ctx))
	for _, dir := range []string{model.SysrootRepoDir, model.SysrootDeployRoot, model.LoaderDir(0), model.RemotesConfigDir} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	pointer, err := os.ReadFile(filepath.Join(root, model.BootLoaderPointer))
	require.NoError(t, err)
	assert.Equal(t, "loader.0\n", string(pointer))

	// idempotent
	require.NoError(t, s.EnsureInitialized(ctx))
	require.NoError(t, s.Load(ctx))
	assert.Empty(t, s.Deployments())
	assert.Equal(t, 0, s.BootVersion())
	assert.Equal(t, filepath.Join(root, model.SysrootRepoDir), s.Repo().Path())

	require.NoError(t, s.InitOsname(ctx, testOS))
	info, err := os.Stat(filepath.Join(root, model.OsVarDir(testOS)))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	err = s.InitOsname(ctx, testOS)
	assert.True(t, errors.Is(err, status.ErrOsExists))
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))

	err = s.InitOsname(ctx, "bad/name")
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	// a handle must be loaded before deploying
	other := newSysroot(t, root)
	_, err = other.Deploy(ctx, testOS, "main", nil, nil)
	assert.True(t, errors.Is(err, status.ErrNotLoaded))
}

func TestLoadBootState(t *testing.T) {
	ctx := context.Background()
	s := setupSysroot(t)

	for _, toPin := range []struct {
		pointer string
	}{
		{pointer: "loader.2"},
		{pointer: "loader"},
		{pointer: "loader.x"},
		{pointer: "something"},
	} {
		fixture := toPin
		require.NoError(t, os.WriteFile(filepath.Join(s.Path(), model.BootLoaderPointer), []byte(fixture.pointer), 0644))
		err := s.Load(ctx)
		require.Error(t, err, fixture.pointer)
		assert.True(t, errors.Is(err, status.ErrBootState), fixture.pointer)
		assert.True(t, errors.IsIntegrity(err))
	}

	require.NoError(t, os.WriteFile(filepath.Join(s.Path(), model.BootLoaderPointer), []byte("loader.1"), 0644))
	err := s.Load(ctx)
	assert.True(t, errors.Is(err, status.ErrBootState))

	require.NoError(t, os.MkdirAll(filepath.Join(s.Path(), model.LoaderDir(1)), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Path(), model.LoaderDir(1), model.DeploymentsFile), []byte("bootversion: 0\n"), 0644))
	err = s.Load(ctx)
	assert.True(t, errors.Is(err, status.ErrBootState))

	require.NoError(t, os.WriteFile(filepath.Join(s.Path(), model.LoaderDir(1), model.DeploymentsFile), []byte("bootversion: 1\n"), 0644))
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 1, s.BootVersion())
	assert.Empty(t, s.Deployments())
}

func TestLoadIfChanged(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	s := setupSysroot(t)
	commitTree(t, s, "main", baseTree())
	d := deploy(t, s, "main", nil)

	other := newSysroot(t, s.Path())
	changed, err := other.LoadIfChanged(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = other.LoadIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, s.WriteDeployments(ctx, []*model.Deployment{d}))

	changed, err = other.LoadIfChanged(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	deployments := other.Deployments()
	require.Len(t, deployments, 1)
	assert.True(t, deployments[0].Same(d))
	assert.Equal(t, 0, deployments[0].Index)
	require.NotNil(t, deployments[0].Origin)
	assert.Equal(t, "main", deployments[0].Origin.Refspec)
	assert.Equal(t, s.BootVersion(), other.BootVersion())

	changed, err = s.LoadIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
}
