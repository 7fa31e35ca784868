package sysroot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/mtree"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testOS = "testos"

var testTime = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

// baseTree is a bootable tree with some default configuration
func baseTree() map[string]string {
	return map[string]string{
		"boot/vmlinuz-5.10":     "kernel 5.10",
		"boot/initramfs-5.10":   "initramfs 5.10",
		"usr/bin/tool":          "tool",
		"usr/etc/os-release":    "v1",
		"usr/etc/conf.d/common": "common",
	}
}

func with(files map[string]string, changes map[string]string) map[string]string {
	res := make(map[string]string, len(files)+len(changes))
	for k, v := range files {
		res[k] = v
	}
	for k, v := range changes {
		if v == "" {
			delete(res, k)
			continue
		}
		res[k] = v
	}
	return res
}

func newSysroot(t testing.TB, pth string, opts ...Option) *Sysroot {
	t.Helper()
	s, err := New(pth, append([]Option{Logger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// setupSysroot initializes and loads a sysroot with one operating system
func setupSysroot(t testing.TB, opts ...Option) *Sysroot {
	t.Helper()
	ctx := context.Background()
	s := newSysroot(t, filepath.Join(t.TempDir(), "sysroot"), opts...)
	require.NoError(t, s.EnsureInitialized(ctx))
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.InitOsname(ctx, testOS))
	return s
}

// commitTree commits a tree of files on a ref of the sysroot repository, on top of its current commit
func commitTree(t testing.TB, s *Sysroot, ref string, files map[string]string) cafs.Key {
	t.Helper()
	ctx := context.Background()
	repo := s.Repo()
	parent, err := repo.ResolveRev(ctx, ref, true)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/src", 0755))
	for name, content := range files {
		pth := filepath.Join("/src", name)
		require.NoError(t, fs.MkdirAll(filepath.Dir(pth), 0755))
		require.NoError(t, afero.WriteFile(fs, pth, []byte(content), 0644))
	}

	tx, err := repo.PrepareTransaction(ctx)
	require.NoError(t, err)
	mt := mtree.New()
	require.NoError(t, tx.WriteDirectoryToMtree(ctx, fs, "/src", mt, nil))
	root, err := tx.WriteMtree(ctx, mt)
	require.NoError(t, err)
	var parentChecksum string
	if !parent.IsZero() {
		parentChecksum = parent.String()
	}
	commit, err := tx.WriteCommitWithTime(ctx, parentChecksum, "update "+ref, "", nil, root, testTime)
	require.NoError(t, err)
	require.NoError(t, tx.SetRef("", ref, &commit))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)
	return commit
}

func deploy(t testing.TB, s *Sysroot, revision string, merge *model.Deployment) *model.Deployment {
	t.Helper()
	d, err := s.Deploy(context.Background(), testOS, revision, nil, merge)
	require.NoError(t, err)
	return d
}

func hasCommit(t testing.TB, repo *core.Repo, key cafs.Key) bool {
	t.Helper()
	has, err := repo.HasObject(context.Background(), key, model.ObjectCommit)
	require.NoError(t, err)
	return has
}

type fakeBootloader struct {
	calls []int
}

func (b *fakeBootloader) WriteConfig(_ context.Context, bootVersion int, _ []*model.Deployment) error {
	b.calls = append(b.calls, bootVersion)
	return nil
}
