package core

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/config"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/dlogger"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/lock"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/storage"
	"github.com/oneconcern/treemon/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// tmpDir holds the staging areas of the repository
const tmpDir = "tmp"

// Repo is an opened repository
type Repo struct {
	path    string
	fs      afero.Fs
	store   storage.Store
	objects *cafs.Store
	config  *config.Config
	lock    *lock.Lock
	l       *zap.Logger
	opts    *repoOptions

	mx  sync.Mutex
	txn *Transaction
}

// CreateRepo initializes a new repository at path, then opens it
func CreateRepo(path string, mode cafs.Mode, opts ...RepoOption) (*Repo, error) {
	if _, err := cafs.ParseMode(string(mode)); err != nil {
		return nil, err
	}
	o := defaultRepoOptions(opts)
	osfs := afero.NewOsFs()
	configPath := filepath.Join(path, model.ConfigFile)
	if exists, _ := afero.Exists(osfs, configPath); exists {
		return nil, status.ErrRepoExists.WrapMessage("%s", path)
	}
	for _, dir := range []string{model.ObjectsDir, model.RefsHeadsDir, model.RefsRemotesDir, model.StateDir, tmpDir} {
		if err := osfs.MkdirAll(filepath.Join(path, dir), 0755); err != nil {
			return nil, errors.ErrIO.Wrap(err)
		}
	}
	if _, err := config.Init(osfs, configPath, string(mode), configOptions(o)...); err != nil {
		return nil, err
	}
	o.l.Info("created repository", zap.String("path", path), zap.String("mode", string(mode)))
	return OpenRepo(path, opts...)
}

func configOptions(o *repoOptions) []config.Option {
	return []config.Option{
		config.RemotesDir(o.remotesDir),
		config.SystemRepo(o.systemRepo),
	}
}

// OpenRepo opens an existing repository
func OpenRepo(path string, opts ...RepoOption) (*Repo, error) {
	o := defaultRepoOptions(opts)
	osfs := afero.NewOsFs()
	configPath := filepath.Join(path, model.ConfigFile)
	if _, err := osfs.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotARepo.WrapMessage("%s", path)
		}
		return nil, errors.ErrIO.Wrap(err)
	}
	cfg, err := config.Load(osfs, configPath, configOptions(o)...)
	if err != nil {
		return nil, err
	}
	mode, err := cafs.ParseMode(cfg.Mode())
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.LockTimeout()
	if err != nil {
		return nil, err
	}

	l := dlogger.Component(o.l, "repo").With(zap.String("path", path))
	fs := afero.NewBasePathFs(osfs, path)
	store, err := localfs.New(fs, localfs.Fsync(cfg.Fsync()), localfs.OsRoot(path))
	if err != nil {
		return nil, err
	}
	objects, err := cafs.New(
		cafs.Backend(store),
		cafs.WithMode(mode),
		cafs.CacheSize(o.cacheSize),
		cafs.VerifyExisting(o.verifyExisting),
		cafs.Logger(l),
	)
	if err != nil {
		return nil, err
	}
	return &Repo{
		path:    path,
		fs:      fs,
		store:   store,
		objects: objects,
		config:  cfg,
		lock:    lock.New(filepath.Join(path, model.LockFile), lock.Timeout(timeout), lock.Logger(l)),
		l:       l,
		opts:    o,
	}, nil
}

// Close the repository, aborting any open transaction and releasing the lock
func (r *Repo) Close() error {
	r.mx.Lock()
	txn := r.txn
	r.mx.Unlock()
	var err error
	if txn != nil {
		err = txn.Abort()
	}
	return errs.Combine(err, r.lock.Close())
}

// Path of the repository
func (r *Repo) Path() string {
	return r.path
}

// Mode of the repository
func (r *Repo) Mode() cafs.Mode {
	return r.objects.Mode()
}

// Config of the repository
func (r *Repo) Config() *config.Config {
	return r.config
}

// ObjectReader is the read-only side of the object store of a repository.
// Objects are written only within a Transaction.
type ObjectReader interface {
	ObjectPath(cafs.Key, model.ObjectType) string
	Has(context.Context, cafs.Key, model.ObjectType) (bool, error)
	Size(context.Context, cafs.Key, model.ObjectType) (int64, error)
	List(context.Context) ([]cafs.ObjectRef, error)
	Verify(context.Context, cafs.Key, model.ObjectType) error
	LoadFile(context.Context, cafs.Key) (model.FileHeader, io.ReadCloser, error)
	LoadDirTree(context.Context, cafs.Key) (*model.DirTree, error)
	LoadDirMeta(context.Context, cafs.Key) (*model.DirMeta, error)
	LoadCommit(context.Context, cafs.Key) (*model.Commit, error)
}

// Objects is the content-addressable store of the repository, for reading
func (r *Repo) Objects() ObjectReader {
	return readOnlyObjects{ObjectReader: r.objects}
}

// readOnlyObjects hides the write methods of the store
type readOnlyObjects struct {
	ObjectReader
}

// Logger of the repository
func (r *Repo) Logger() *zap.Logger {
	return r.l
}

func (r *Repo) String() string {
	return "repo@" + r.path
}
