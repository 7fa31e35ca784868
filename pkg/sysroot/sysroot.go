package sysroot

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oneconcern/treemon/pkg/core"
	corestatus "github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/dlogger"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/lock"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/sysroot/status"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const (
	loaderPrefix = "loader."
	tmpInfix     = ".tmp-"
)

// Sysroot is the root of a system managed by deployments of commits.
//
// Its state is a repository, one checked out directory per deployment, and the boot menu:
// the ordered list of deployments, persisted in one of two loader directories. The active
// loader directory is designated by a pointer file, swapped atomically.
type Sysroot struct {
	path string
	fs   afero.Fs
	opts *options
	l    *zap.Logger

	mx          sync.RWMutex
	repo        *core.Repo
	lock        *lock.Lock
	loaded      bool
	bootVersion int
	deployments []*model.Deployment
	stamp       loadStamp

	// beforeSwap is called once the new deployment list is written, before it becomes active
	beforeSwap func() error
}

// loadStamp identifies the boot state which was loaded
type loadStamp struct {
	pointer    string
	pointerMod time.Time
	listMod    time.Time
}

// New sysroot at some path. Nothing is read until Load.
func New(pth string, opts ...Option) (*Sysroot, error) {
	abs, err := filepath.Abs(pth)
	if err != nil {
		return nil, errors.ErrInvalidArgument.Wrap(err)
	}
	o := defaultOptions(opts)
	return &Sysroot{
		path: abs,
		fs:   afero.NewBasePathFs(afero.NewOsFs(), abs),
		opts: o,
		l:    dlogger.Component(o.l, "sysroot").With(zap.String("sysroot", abs)),
	}, nil
}

// Path of the sysroot
func (s *Sysroot) Path() string {
	return s.path
}

func (s *Sysroot) repoPath() string {
	return filepath.Join(s.path, model.SysrootRepoDir)
}

func (s *Sysroot) repoOptions() []core.RepoOption {
	return []core.RepoOption{
		core.WithLogger(s.opts.l),
		core.WithSystemRepo(true),
		core.WithRemotesConfigDir(filepath.Join(s.path, model.RemotesConfigDir)),
	}
}

// EnsureInitialized creates the repository, the deployment root and an empty boot menu, when missing
func (s *Sysroot) EnsureInitialized(ctx context.Context) error {
	for _, dir := range []string{path.Dir(model.SysrootRepoDir), model.SysrootDeployRoot, model.BootDir, model.RemotesConfigDir} {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return errors.ErrIO.Wrap(err)
		}
	}
	if exists, _ := afero.Exists(s.fs, path.Join(model.SysrootRepoDir, model.ConfigFile)); !exists {
		repo, err := core.CreateRepo(s.repoPath(), s.opts.repoMode, s.repoOptions()...)
		if err != nil {
			return err
		}
		if err = repo.Close(); err != nil {
			return err
		}
	}
	if exists, _ := afero.Exists(s.fs, model.BootLoaderPointer); exists {
		return nil
	}
	if err := s.writeDeploymentList(0, nil); err != nil {
		return err
	}
	if err := s.swapPointer(0); err != nil {
		return err
	}
	s.l.Info("initialized sysroot")
	return nil
}

// Load the repository and the boot menu
func (s *Sysroot) Load(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.load(ctx)
}

func (s *Sysroot) load(ctx context.Context) error {
	if s.repo == nil {
		repo, err := core.OpenRepo(s.repoPath(), s.repoOptions()...)
		if err != nil {
			if errors.Is(err, corestatus.ErrNotARepo) {
				return status.ErrNotInitialized.Wrap(err)
			}
			return err
		}
		timeout, err := repo.Config().LockTimeout()
		if err != nil {
			return errs.Combine(err, repo.Close())
		}
		s.repo = repo
		s.lock = lock.New(filepath.Join(s.path, model.SysrootLockFile), lock.Timeout(timeout), lock.Logger(s.l))
	}

	stamp, err := s.currentStamp()
	if err != nil {
		return err
	}
	bootVersion, err := parsePointer(stamp.pointer)
	if err != nil {
		return err
	}
	deployments, err := s.readDeploymentList(bootVersion)
	if err != nil {
		return err
	}
	for _, d := range deployments {
		if d.Origin, err = s.readOrigin(d); err != nil {
			return err
		}
	}

	s.bootVersion = bootVersion
	s.deployments = deployments
	s.stamp = stamp
	s.loaded = true
	s.l.Debug("loaded sysroot", zap.Int("boot_version", bootVersion), zap.Int("deployments", len(deployments)))
	return nil
}

// LoadIfChanged reloads the boot menu if it was changed since the last load, possibly by another process
func (s *Sysroot) LoadIfChanged(ctx context.Context) (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.loaded {
		stamp, err := s.currentStamp()
		if err != nil {
			return false, err
		}
		if stamp == s.stamp {
			return false, nil
		}
	}
	if err := s.load(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Sysroot) currentStamp() (loadStamp, error) {
	info, err := s.fs.Stat(model.BootLoaderPointer)
	if err != nil {
		if os.IsNotExist(err) {
			return loadStamp{}, status.ErrNotInitialized.WrapMessage("no boot loader pointer in %s", s.path)
		}
		return loadStamp{}, errors.ErrIO.Wrap(err)
	}
	data, err := afero.ReadFile(s.fs, model.BootLoaderPointer)
	if err != nil {
		return loadStamp{}, errors.ErrIO.Wrap(err)
	}
	stamp := loadStamp{
		pointer:    strings.TrimSpace(string(data)),
		pointerMod: info.ModTime(),
	}
	if bootVersion, err := parsePointer(stamp.pointer); err == nil {
		if listInfo, err := s.fs.Stat(deploymentListPath(bootVersion)); err == nil {
			stamp.listMod = listInfo.ModTime()
		}
	}
	return stamp, nil
}

func parsePointer(pointer string) (int, error) {
	if !strings.HasPrefix(pointer, loaderPrefix) {
		return 0, status.ErrBootState.WrapMessage("boot loader pointer %q", pointer)
	}
	version, err := strconv.Atoi(strings.TrimPrefix(pointer, loaderPrefix))
	if err != nil || (version != 0 && version != 1) {
		return 0, status.ErrBootState.WrapMessage("boot loader pointer %q", pointer)
	}
	return version, nil
}

func deploymentListPath(bootVersion int) string {
	return path.Join(model.LoaderDir(bootVersion), model.DeploymentsFile)
}

func (s *Sysroot) readDeploymentList(bootVersion int) ([]*model.Deployment, error) {
	data, err := afero.ReadFile(s.fs, deploymentListPath(bootVersion))
	if err != nil {
		return nil, status.ErrBootState.Wrap(err)
	}
	var list model.DeploymentList
	if err = yaml.Unmarshal(data, &list); err != nil {
		return nil, status.ErrBootState.Wrap(err)
	}
	if list.BootVersion != bootVersion {
		return nil, status.ErrBootState.WrapMessage("%s holds boot version %d", model.LoaderDir(bootVersion), list.BootVersion)
	}
	for i, d := range list.Deployments {
		if d == nil {
			return nil, status.ErrBootState.WrapMessage("empty deployment at index %d", i)
		}
		if err := model.ValidateChecksum(d.Checksum); err != nil {
			return nil, status.ErrBootState.Wrap(err)
		}
		if err := model.ValidateRemoteName(d.OSName); err != nil {
			return nil, status.ErrBootState.Wrap(err)
		}
		d.Index = i
	}
	return list.Deployments, nil
}

func (s *Sysroot) checkLoaded() error {
	if !s.loaded {
		return status.ErrNotLoaded
	}
	return nil
}

// Repo of the sysroot. It is nil until the sysroot is loaded.
func (s *Sysroot) Repo() *core.Repo {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.repo
}

// Deployments in boot order, as loaded
func (s *Sysroot) Deployments() []*model.Deployment {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return cloneDeployments(s.deployments)
}

// BootVersion is the index of the active loader directory
func (s *Sysroot) BootVersion() int {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.bootVersion
}

func cloneDeployments(deployments []*model.Deployment) []*model.Deployment {
	res := make([]*model.Deployment, 0, len(deployments))
	for _, d := range deployments {
		res = append(res, d.Clone())
	}
	return res
}

// DeploymentDirectory is the absolute path of the checked out tree of a deployment
func (s *Sysroot) DeploymentDirectory(d *model.Deployment) string {
	return filepath.Join(s.path, filepath.FromSlash(d.Dir()))
}

// OriginPath is the absolute path of the origin file of a deployment
func (s *Sysroot) OriginPath(d *model.Deployment) string {
	return filepath.Join(s.path, filepath.FromSlash(d.OriginPath()))
}

// InitOsname creates the directories of a new operating system
func (s *Sysroot) InitOsname(ctx context.Context, osname string) error {
	if err := model.ValidateRemoteName(osname); err != nil {
		return errors.ErrInvalidArgument.WrapMessage("invalid operating system name %q", osname)
	}
	if exists, _ := afero.DirExists(s.fs, model.OsDir(osname)); exists {
		return status.ErrOsExists.WrapMessage("%q", osname)
	}
	for _, dir := range []string{model.OsVarDir(osname), model.OsDeployDir(osname)} {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return errors.ErrIO.Wrap(err)
		}
	}
	s.l.Info("initialized operating system", zap.String("osname", osname))
	return nil
}

// Close the repository and release the sysroot lock
func (s *Sysroot) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	var err error
	if s.repo != nil {
		err = s.repo.Close()
		s.repo = nil
	}
	if s.lock != nil {
		err = errs.Combine(err, s.lock.Close())
		s.lock = nil
	}
	s.loaded = false
	return err
}

func (s *Sysroot) autoLock(ctx context.Context, mode lock.Mode) (func(), error) {
	if err := s.lock.Push(ctx, mode); err != nil {
		return nil, err
	}
	return func() {
		if err := s.lock.Pop(mode); err != nil {
			s.l.Warn("releasing sysroot lock", zap.Stringer("mode", mode), zap.Error(err))
		}
	}, nil
}

// writeFileAtomic writes a temporary file next to the target, then renames it into place
func (s *Sysroot) writeFileAtomic(pth string, data []byte) error {
	dir, base := path.Split(pth)
	tmp := path.Join(dir, "."+base+tmpInfix+ksuid.New().String())
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.ErrIO.Wrap(err)
	}
	_, err = bytes.NewReader(data).WriteTo(f)
	if err == nil {
		err = f.Sync()
	}
	if erc := f.Close(); err == nil {
		err = erc
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return errors.ErrIO.Wrap(err)
	}
	if err = s.fs.Rename(tmp, pth); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	return nil
}
