package core

import (
	"context"
	"strings"
	"testing"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/mtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// orphanCommit writes a commit and a loose file object in an aborted transaction
func orphanCommit(t testing.TB, repo *Repo) (cafs.Key, cafs.Key) {
	t.Helper()
	ctx := context.Background()
	tx, err := repo.PrepareTransaction(ctx)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, tx.Abort())
	}()

	loose, err := tx.WriteFile(ctx, model.RegularFileHeader(0644, 0, 0), strings.NewReader("loose"), nil)
	require.NoError(t, err)
	mt := mtree.New()
	require.NoError(t, tx.WriteDirectoryToMtree(ctx, writeTree(t, map[string]string{"orphan": "o"}), "/src", mt, nil))
	root, err := tx.WriteMtree(ctx, mt)
	require.NoError(t, err)
	commit, err := tx.WriteCommitWithTime(ctx, "", "orphan", "", nil, root, testTime)
	require.NoError(t, err)
	return commit, loose.Key
}

func TestPrune(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	repo := setupRepo(t, cafs.ModeArchive)
	first := commitFiles(t, repo, "main", map[string]string{"a": "1", "shared": "s"}, 0)
	second := commitFiles(t, repo, "main", map[string]string{"a": "2", "shared": "s"}, 0)
	orphan, loose := orphanCommit(t, repo)

	// unless restricted to refs, every commit is kept
	stats, err := repo.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ObjectsPruned)
	assert.Greater(t, stats.BytesFreed, int64(0))
	has, err := repo.HasObject(ctx, loose, model.ObjectFile)
	require.NoError(t, err)
	assert.False(t, has)
	has, err = repo.HasObject(ctx, orphan, model.ObjectCommit)
	require.NoError(t, err)
	assert.True(t, has)

	// the first commit, its tree and file, the orphan commit, its tree and file
	stats, err = repo.Prune(ctx, WithPruneRefsOnly(true), WithPruneDepth(0), WithPruneDryRun(true))
	require.NoError(t, err)
	assert.Equal(t, 6, stats.ObjectsPruned)
	has, err = repo.HasObject(ctx, first, model.ObjectCommit)
	require.NoError(t, err)
	assert.True(t, has)

	stats, err = repo.Prune(ctx, WithPruneRefsOnly(true), WithPruneDepth(0), WithPruneExtraRoots(orphan))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ObjectsPruned)
	for _, toPin := range []struct {
		key      cafs.Key
		expected bool
	}{
		{key: first, expected: false},
		{key: second, expected: true},
		{key: orphan, expected: true},
	} {
		has, err = repo.HasObject(ctx, toPin.key, model.ObjectCommit)
		require.NoError(t, err)
		assert.Equal(t, toPin.expected, has)
	}

	// the history of main is now partial
	reachable, err := repo.TraverseCommit(ctx, second, -1)
	require.NoError(t, err)
	assert.True(t, reachable.Has(second, model.ObjectCommit))
	assert.False(t, reachable.Has(first, model.ObjectCommit))
	_, err = repo.ResolveRev(ctx, "main^", false)
	assert.True(t, errors.Is(err, cafs.ErrObjectNotFound))

	_, err = repo.Fsck(ctx)
	require.NoError(t, err)

	tx, err := repo.PrepareTransaction(ctx)
	require.NoError(t, err)
	_, err = repo.Prune(ctx)
	assert.True(t, errors.Is(err, status.ErrTransactionInProgress))
	require.NoError(t, tx.Abort())
}
