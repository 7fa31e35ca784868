package core

import (
	"context"
	"testing"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRev(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t, cafs.ModeBare)
	first := commitFiles(t, repo, "main", map[string]string{"a": "1"}, 0)
	second := commitFiles(t, repo, "main", map[string]string{"a": "2"}, 0)
	require.NoError(t, repo.SetRefImmediate(ctx, "origin", "release/stable", &first))

	for _, toPin := range []struct {
		rev      string
		expected cafs.Key
	}{
		{rev: "main", expected: second},
		{rev: "main^", expected: first},
		{rev: second.String(), expected: second},
		{rev: second.String() + "^", expected: first},
		{rev: "origin:release/stable", expected: first},
		{rev: "origin/release/stable", expected: first},
	} {
		tc := toPin
		t.Run(tc.rev, func(t *testing.T) {
			key, err := repo.ResolveRev(ctx, tc.rev, false)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, key)
		})
	}

	_, err := repo.ResolveRev(ctx, "main^^", false)
	assert.True(t, errors.Is(err, status.ErrNoParent))

	_, err = repo.ResolveRev(ctx, "missing", false)
	assert.True(t, errors.Is(err, status.ErrRefNotFound))
	key, err := repo.ResolveRev(ctx, "missing", true)
	require.NoError(t, err)
	assert.True(t, key.IsZero())

	_, err = repo.ResolveRev(ctx, "not a rev", true)
	assert.True(t, errors.Is(err, status.ErrInvalidRev))
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestListRefs(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t, cafs.ModeBare)
	main := commitFiles(t, repo, "main", map[string]string{"a": "1"}, 0)
	dev := commitFiles(t, repo, "dev/feature", map[string]string{"b": "2"}, 0)
	require.NoError(t, repo.SetRefImmediate(ctx, "origin", "stable", &main))
	require.NoError(t, repo.SetRefImmediate(ctx, "origin", "dev/next", &dev))

	refs, err := repo.ListRefs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []RefEntry{
		{Refspec: model.Refspec{Ref: "dev/feature"}, Checksum: dev},
		{Refspec: model.Refspec{Ref: "main"}, Checksum: main},
		{Refspec: model.Refspec{Remote: "origin", Ref: "dev/next"}, Checksum: dev},
		{Refspec: model.Refspec{Remote: "origin", Ref: "stable"}, Checksum: main},
	}, refs)

	refs, err = repo.ListRefs(ctx, "origin:")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "origin:dev/next", refs[0].Refspec.String())

	refs, err = repo.ListRefs(ctx, "dev/")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, dev, refs[0].Checksum)

	refs, err = repo.ListRefs(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestSetRefImmediate(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t, cafs.ModeBare)
	first := commitFiles(t, repo, "main", map[string]string{"a": "1"}, 0)

	require.NoError(t, repo.SetRefImmediate(ctx, "", "tags/v1", &first))
	key, err := repo.ResolveRev(ctx, "tags/v1", false)
	require.NoError(t, err)
	assert.Equal(t, first, key)

	require.NoError(t, repo.SetRefImmediate(ctx, "", "tags/v1", nil))
	_, err = repo.ResolveRev(ctx, "tags/v1", false)
	assert.True(t, errors.Is(err, status.ErrRefNotFound))

	// deleting a missing ref is not an error
	require.NoError(t, repo.SetRefImmediate(ctx, "", "tags/v1", nil))

	err = repo.SetRefImmediate(ctx, "bad/remote", "main", &first)
	assert.True(t, errors.Is(err, model.ErrInvalidRemoteName))
}
