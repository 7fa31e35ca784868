package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/config"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeVerifier struct {
	trusted map[cafs.Key]bool
	calls   int
}

func (v *fakeVerifier) VerifyCommit(_ context.Context, remote string, commit cafs.Key, data []byte) error {
	v.calls++
	if len(data) == 0 {
		return fmt.Errorf("no commit data")
	}
	if !v.trusted[commit] {
		return fmt.Errorf("commit %v from %s is not signed by a trusted key", commit, remote)
	}
	return nil
}

func TestPull(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	source := setupRepo(t, cafs.ModeArchive)
	first := commitFiles(t, source, "main", map[string]string{"a": "1", "b/c": "2"}, 0)
	second := commitFiles(t, source, "main", map[string]string{"a": "3", "b/c": "2"}, 0)
	stable := commitFiles(t, source, "stable", map[string]string{"s": "stable"}, 0)
	dev := commitFiles(t, source, "dev", map[string]string{"d": "dev"}, 0)

	repo := setupRepo(t, cafs.ModeBare)
	require.NoError(t, repo.RemoteAdd(ctx, "origin", "file://"+source.Path(), map[string]string{
		config.KeyGPGVerify: "false",
		config.KeyBranches:  "main;stable",
	}))

	fetched, err := repo.Pull(ctx, "origin", nil, &LocalPuller{Source: source, Depth: -1}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]cafs.Key{"main": second, "stable": stable}, fetched)

	resolved, err := repo.ResolveRev(ctx, "origin:main^", false)
	require.NoError(t, err)
	assert.Equal(t, first, resolved)
	_, err = repo.ResolveRev(ctx, "main", false)
	assert.True(t, errors.Is(err, status.ErrRefNotFound))

	report, err := repo.Fsck(ctx)
	require.NoError(t, err)
	assert.Greater(t, report.Checked, 0)

	_, err = repo.Pull(ctx, "origin", []string{"dev"}, &LocalPuller{Source: source}, nil)
	assert.True(t, errors.Is(err, status.ErrBranchNotAllowed))

	_, err = repo.Pull(ctx, "nowhere", nil, &LocalPuller{Source: source}, nil)
	assert.True(t, errors.Is(err, config.ErrRemoteNotFound))

	// signed remotes
	require.NoError(t, repo.RemoteAdd(ctx, "signed", "file://"+source.Path(), nil))
	gpg, err := repo.RemoteGPGVerify("signed")
	require.NoError(t, err)
	assert.True(t, gpg)

	_, err = repo.Pull(ctx, "signed", []string{"dev"}, &LocalPuller{Source: source}, nil)
	assert.True(t, errors.Is(err, status.ErrSignature))

	verifier := &fakeVerifier{trusted: map[cafs.Key]bool{dev: true}}
	_, err = repo.Pull(ctx, "signed", []string{"main"}, &LocalPuller{Source: source}, verifier)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrSignature))
	assert.True(t, errors.IsIntegrity(err))
	_, err = repo.ResolveRev(ctx, "signed:main", false)
	assert.True(t, errors.Is(err, status.ErrRefNotFound))

	// a shallow pull copies only the tip of the branch
	fetched, err = repo.Pull(ctx, "signed", []string{"dev"}, &LocalPuller{Source: source}, verifier)
	require.NoError(t, err)
	assert.Equal(t, dev, fetched["dev"])
	assert.Equal(t, 2, verifier.calls)

	assert.Equal(t, []string{"origin", "signed"}, repo.RemoteList())
	require.NoError(t, repo.RemoteDelete(ctx, "signed"))
	assert.Equal(t, []string{"origin"}, repo.RemoteList())
	_, err = repo.RemoteGet("signed")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	has, err := repo.HasObject(ctx, dev, model.ObjectCommit)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Nil(t, repo.Transaction())
}
