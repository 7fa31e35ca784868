package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/mtree"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testTime = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

func setupRepo(t testing.TB, mode cafs.Mode, opts ...RepoOption) *Repo {
	t.Helper()
	pth := filepath.Join(t.TempDir(), "repo")
	repo, err := CreateRepo(pth, mode, append([]RepoOption{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func openHandle(t testing.TB, repo *Repo) *Repo {
	t.Helper()
	other, err := OpenRepo(repo.Path(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = other.Close()
	})
	return other
}

// writeTree builds an in-memory tree from a map of relative paths to contents
func writeTree(t testing.TB, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/src", 0755))
	for name, content := range files {
		pth := filepath.Join("/src", name)
		require.NoError(t, fs.MkdirAll(filepath.Dir(pth), 0755))
		require.NoError(t, afero.WriteFile(fs, pth, []byte(content), 0644))
	}
	return fs
}

// commitFiles commits a tree of files on a local ref, on top of its current commit
func commitFiles(t testing.TB, repo *Repo, ref string, files map[string]string, flags mtree.ModifierFlags) cafs.Key {
	t.Helper()
	ctx := context.Background()
	parent, err := repo.ResolveRev(ctx, ref, true)
	require.NoError(t, err)

	tx, err := repo.PrepareTransaction(ctx)
	require.NoError(t, err)
	mt := mtree.New()
	require.NoError(t, tx.WriteDirectoryToMtree(ctx, writeTree(t, files), "/src", mt, &mtree.Modifier{Flags: flags}))
	root, err := tx.WriteMtree(ctx, mt)
	require.NoError(t, err)

	var parentChecksum string
	if !parent.IsZero() {
		parentChecksum = parent.String()
	}
	commit, err := tx.WriteCommitWithTime(ctx, parentChecksum, "commit on "+ref, "", nil, root, testTime)
	require.NoError(t, err)
	require.NoError(t, tx.SetRef("", ref, &commit))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)
	return commit
}

func objectFile(repo *Repo, key cafs.Key, t model.ObjectType) string {
	return filepath.Join(repo.Path(), repo.Objects().ObjectPath(key, t))
}
