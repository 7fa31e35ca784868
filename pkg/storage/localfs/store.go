// Copyright © 2018 One Concern

package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/oneconcern/treemon/pkg/storage"
	"github.com/oneconcern/treemon/pkg/storage/status"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
	"github.com/zeebo/errs"
)

/* thread-safe local storage implementation.
 * atomic Put()s rely on the atomicity of afero.Fs.Rename():  files are placed in a staging area,
 * then Rename()d into place.
 * when the store is rooted on the OS file system, exclusive Put()s are published with a hard link,
 * which fails if the key exists, even when created by another process.
 */

/* staging area key prefix */
const (
	nestedPutStageName = ".put-stage"
)

// Option for the local storage
type Option func(*localFS)

// Fsync forces staged content to be synced before it is published
func Fsync(enabled bool) Option {
	return func(l *localFS) {
		l.fsync = enabled
	}
}

// Perm sets the permission bits of stored files (default: 0644)
func Perm(perm os.FileMode) Option {
	return func(l *localFS) {
		l.perm = perm
	}
}

// OsRoot tells that the afero.Fs of the store is the OS file system rooted at dir
func OsRoot(dir string) Option {
	return func(l *localFS) {
		l.osRoot = dir
	}
}

// New creates a new local file system backed storage model
func New(fs afero.Fs, opts ...Option) (storage.Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	l := &localFS{
		fs:    fs,
		perm:  0644,
		fsync: true,
	}
	for _, apply := range opts {
		apply(l)
	}
	/* the staging area exists within the afero.Fs itself */
	if err := fs.MkdirAll(nestedPutStageName, 0700); err != nil {
		return nil, status.ErrStorageAPI.WrapMessage("ensuring put staging directory %q: %v", nestedPutStageName, err)
	}
	return l, nil
}

type localFS struct {
	fs     afero.Fs
	perm   os.FileMode
	fsync  bool
	osRoot string

	// serializes exclusive puts against renames
	mx sync.Mutex
}

func maybeInvalidKey(key string) error {
	const pathSepString = "/"
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if key == "" || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return status.ErrInvalidResource.WrapMessage("key %q", key)
	}
	pathComponents := strings.Split(strings.TrimLeft(cleaned, pathSepString), pathSepString)
	if pathComponents[0] == nestedPutStageName {
		return status.ErrInvalidResource.WrapMessage("key '%v' conflicts with put staging area name '%v'", key, nestedPutStageName)
	}
	return nil
}

func (l *localFS) Has(ctx context.Context, key string) (bool, error) {
	if err := maybeInvalidKey(key); err != nil {
		return false, err
	}
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, status.ErrStorageAPI.Wrap(err)
	}

	return !fi.IsDir(), nil
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := maybeInvalidKey(key); err != nil {
		return nil, err
	}
	f, err := l.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotExists.WrapMessage("key %q", key)
		}
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return f, nil
}

func (l *localFS) GetAttr(ctx context.Context, key string) (storage.Attributes, error) {
	if err := maybeInvalidKey(key); err != nil {
		return storage.Attributes{}, err
	}
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Attributes{}, status.ErrNotExists.WrapMessage("key %q", key)
		}
		return storage.Attributes{}, status.ErrStorageAPI.Wrap(err)
	}
	return storage.Attributes{
		Size:    fi.Size(),
		Updated: fi.ModTime(),
		Mode:    uint32(fi.Mode().Perm()),
	}, nil
}

func (l *localFS) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	w, err := l.newWriter(key, exclusive)
	if err != nil {
		return err
	}
	if _, err = io.Copy(w, source); err != nil {
		return errs.Combine(status.ErrStorageAPI.WrapMessage("write record for %q: %v", key, err), w.Abort())
	}
	return w.Close()
}

func (l *localFS) Writer(ctx context.Context, key string) (storage.Writer, error) {
	return l.newWriter(key, false)
}

func (l *localFS) newWriter(key string, exclusive bool) (*stagedWriter, error) {
	if err := maybeInvalidKey(key); err != nil {
		return nil, err
	}
	if exclusive {
		has, err := l.Has(context.Background(), key)
		if err != nil {
			return nil, err
		}
		if has {
			return nil, status.ErrExists.WrapMessage("key %q", key)
		}
	}
	stageKey := filepath.Join(nestedPutStageName, ksuid.New().String())
	f, err := l.fs.OpenFile(stageKey, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, l.perm)
	if err != nil {
		return nil, status.ErrStorageAPI.WrapMessage("create record for %q: %v", key, err)
	}
	return &stagedWriter{
		store:     l,
		file:      f,
		stageKey:  stageKey,
		key:       key,
		exclusive: exclusive,
	}, nil
}

func (l *localFS) publish(stageKey, key string, exclusive bool) error {
	/* Rename() doesn't create directories automatically */
	dir := filepath.Dir(key)
	if dir != "." {
		if err := l.fs.MkdirAll(dir, 0755); err != nil {
			return status.ErrStorageAPI.WrapMessage("ensuring directories for %q: %v", key, err)
		}
	}
	l.mx.Lock()
	defer l.mx.Unlock()
	var err error
	if exclusive {
		err = l.publishExclusive(stageKey, key)
	} else if err = l.fs.Rename(stageKey, key); err != nil {
		err = status.ErrStorageAPI.Wrap(err)
	}
	if err != nil || !l.fsync {
		return err
	}
	return l.syncDir(dir)
}

func (l *localFS) publishExclusive(stageKey, key string) error {
	if l.osRoot == "" {
		if _, err := l.fs.Stat(key); err == nil {
			return status.ErrExists.WrapMessage("key %q", key)
		}
		if err := l.fs.Rename(stageKey, key); err != nil {
			return status.ErrStorageAPI.Wrap(err)
		}
		return nil
	}
	if err := os.Link(filepath.Join(l.osRoot, stageKey), filepath.Join(l.osRoot, key)); err != nil {
		if os.IsExist(err) {
			return status.ErrExists.WrapMessage("key %q", key)
		}
		return status.ErrStorageAPI.Wrap(err)
	}
	if err := l.fs.Remove(stageKey); err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	return nil
}

// syncDir persists the entries of a directory
func (l *localFS) syncDir(dir string) error {
	d, err := l.fs.Open(dir)
	if err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	if err = d.Sync(); err != nil {
		return errs.Combine(status.ErrStorageAPI.Wrap(err), d.Close())
	}
	return d.Close()
}

func (l *localFS) Delete(ctx context.Context, key string) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return status.ErrStorageAPI.WrapMessage("removing %q: %v", key, err)
	}
	return nil
}

func (l *localFS) Rename(ctx context.Context, from, to string) error {
	if err := maybeInvalidKey(from); err != nil {
		return err
	}
	if err := maybeInvalidKey(to); err != nil {
		return err
	}
	if _, err := l.fs.Stat(from); err != nil {
		if os.IsNotExist(err) {
			return status.ErrNotExists.WrapMessage("key %q", from)
		}
		return status.ErrStorageAPI.Wrap(err)
	}
	return l.publish(from, to, false)
}

// Keys lists all keys starting with prefix, in lexical order.
//
// The staging area is never listed.
func (l *localFS) Keys(ctx context.Context, prefix string) ([]string, error) {
	root := "."
	if prefix != "" {
		root = filepath.Clean(prefix)
		if fi, err := l.fs.Stat(root); err != nil || !fi.IsDir() {
			root = filepath.Dir(root)
		}
	}
	var res []string
	e := afero.Walk(l.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		key := filepath.ToSlash(path)
		if info.IsDir() {
			if info.Name() == nestedPutStageName {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			res = append(res, key)
		}
		return nil
	})
	if e != nil {
		return nil, status.ErrStorageAPI.Wrap(e)
	}
	sort.Strings(res)
	return res, nil
}

func (l *localFS) String() string {
	const localfs = "localfs"
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}
