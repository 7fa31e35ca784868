// Copyright © 2018 One Concern

package localfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/storage"
	"github.com/oneconcern/treemon/pkg/storage/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHas(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	has, err := bs.Has(context.Background(), "sixteentons")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "seventeentons")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "fifteentons")
	require.NoError(t, err)
	require.False(t, has)

	_, err = bs.Has(context.Background(), ".put-stage/x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInvalidResource))
}

func TestGet(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	b, err := storage.ReadAll(context.Background(), bs, "sixteentons")
	require.NoError(t, err)
	assert.Equal(t, "this is the text", string(b))

	b, err = storage.ReadAll(context.Background(), bs, "seventeentons")
	require.NoError(t, err)
	assert.Equal(t, "this is the text for another thing", string(b))

	_, err = bs.Get(context.Background(), "fifteentons")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	attrs, err := bs.GetAttr(context.Background(), "sixteentons")
	require.NoError(t, err)
	assert.Equal(t, int64(len("this is the text")), attrs.Size)
}

func TestKeys(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	keys, err := bs.Keys(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, []string{"seventeentons", "sixteentons"}, keys)
}

func TestDelete(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	require.NoError(t, bs.Delete(context.Background(), "seventeentons"))
	k, _ := bs.Keys(context.Background(), "")
	assert.Len(t, k, 1)

	// deleting twice is not an error
	require.NoError(t, bs.Delete(context.Background(), "seventeentons"))
}

func TestPut(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	content := bytes.NewBufferString("here we go once again")
	err := bs.Put(context.Background(), "nested/eighteentons", content, storage.NoOverWrite)
	require.NoError(t, err)

	b, err := storage.ReadAll(context.Background(), bs, "nested/eighteentons")
	require.NoError(t, err)
	assert.Equal(t, "here we go once again", string(b))

	k, _ := bs.Keys(context.Background(), "")
	assert.Len(t, k, 3)

	err = bs.Put(context.Background(), "nested/eighteentons", bytes.NewBufferString("again"), storage.NoOverWrite)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))

	require.NoError(t, bs.Put(context.Background(), "nested/eighteentons", bytes.NewBufferString("again"), storage.OverWrite))
	b, err = storage.ReadAll(context.Background(), bs, "nested/eighteentons")
	require.NoError(t, err)
	assert.Equal(t, "again", string(b))
}

func TestWriter(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	w, err := bs.Writer(ctx, "streamed")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = io.WriteString(w, "chunk"+strconv.Itoa(i))
		require.NoError(t, err)
	}

	// not visible until committed
	has, err := bs.Has(ctx, "streamed")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, w.Close())
	b, err := storage.ReadAll(ctx, bs, "streamed")
	require.NoError(t, err)
	assert.Equal(t, "chunk0chunk1chunk2", string(b))

	_, err = w.Write([]byte("late"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	aborted, err := bs.Writer(ctx, "aborted")
	require.NoError(t, err)
	_, _ = io.WriteString(aborted, "nope")
	require.NoError(t, aborted.Abort())
	has, err = bs.Has(ctx, "aborted")
	require.NoError(t, err)
	require.False(t, has)

	keys, err := bs.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestRename(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, bs.Rename(ctx, "sixteentons", "moved/sixteentons"))
	has, err := bs.Has(ctx, "sixteentons")
	require.NoError(t, err)
	assert.False(t, has)
	has, err = bs.Has(ctx, "moved/sixteentons")
	require.NoError(t, err)
	assert.True(t, has)

	err = bs.Rename(ctx, "sixteentons", "elsewhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestKeysPrefix(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("a/b/c", 0777))
	require.NoError(t, fs.MkdirAll("a/d", 0777))
	for i := 0; i < 10; i++ {
		fakeFile(t, fs, "a/b/c/e"+strconv.Itoa(i))
		fakeFile(t, fs, "a/d/f"+strconv.Itoa(i))
	}

	store, err := New(fs)
	require.NoError(t, err)
	ctx := context.Background()

	for _, toPin := range []struct {
		prefix   string
		expected int
	}{
		{prefix: "a", expected: 20},
		{prefix: "a/", expected: 20},
		{prefix: "a/d/f", expected: 10},
		{prefix: "a/d/f1", expected: 1},
		{prefix: "a/b", expected: 10},
		{prefix: "z", expected: 0},
	} {
		fixture := toPin
		keys, err := store.Keys(ctx, fixture.prefix)
		require.NoError(t, err)
		assert.Lenf(t, keys, fixture.expected, "prefix %q", fixture.prefix)
	}
}

func setupStore(t testing.TB) (storage.Store, func()) {
	t.Helper()

	fs := afero.NewMemMapFs()
	f, err := fs.Create("sixteentons")
	require.NoError(t, err)
	_, err = f.WriteString("this is the text")
	require.NoError(t, err)
	f.Close()

	ff, err := fs.Create("seventeentons")
	require.NoError(t, err)
	_, err = ff.WriteString("this is the text for another thing")
	require.NoError(t, err)
	ff.Close()

	store, err := New(fs, Fsync(false))
	require.NoError(t, err)
	return store, func() {}
}

func fakeFile(t testing.TB, fs afero.Fs, file string) {
	f, err := fs.Create(file)
	require.NoError(t, err)
	_, err = f.WriteString("this is the text")
	require.NoError(t, err)
	err = f.Close()
	require.NoError(t, err)
}

func TestExclusivePutOnOsRoot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	bs, err := New(afero.NewBasePathFs(afero.NewOsFs(), dir), OsRoot(dir))
	require.NoError(t, err)
	l := bs.(*localFS)

	// the key is created by someone else while the exclusive write is staged
	w, err := l.newWriter("nested/racy", true)
	require.NoError(t, err)
	_, err = io.WriteString(w, "late")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "racy"), []byte("first"), 0644))

	err = w.Close()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
	b, err := storage.ReadAll(ctx, bs, "nested/racy")
	require.NoError(t, err)
	assert.Equal(t, "first", string(b))

	require.NoError(t, bs.Put(ctx, "nested/fresh", bytes.NewBufferString("fresh"), storage.NoOverWrite))
	b, err = storage.ReadAll(ctx, bs, "nested/fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(b))

	// nothing is left in the staging area
	staged, err := os.ReadDir(filepath.Join(dir, nestedPutStageName))
	require.NoError(t, err)
	assert.Empty(t, staged)
}
