package sysroot

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/lock"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const originSuffix = ".origin"

// CleanupStats reports what Cleanup removed
type CleanupStats struct {
	DeploymentsRemoved int
	Pruned             core.PruneStats
}

// Cleanup removes deployments which are not in the boot menu, stale boot loader state, then prunes
// the repository of every object which is neither reachable from a ref nor from a deployment.
func (s *Sysroot) Cleanup(ctx context.Context) (CleanupStats, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	var stats CleanupStats
	if err := s.checkLoaded(); err != nil {
		return stats, err
	}
	unlock, err := s.autoLock(ctx, lock.Exclusive)
	if err != nil {
		return stats, err
	}
	defer unlock()
	// another handle may have swapped the boot menu since this one was loaded
	if err = s.load(ctx); err != nil {
		return stats, err
	}

	listed := make(map[string]struct{}, len(s.deployments))
	roots := make([]cafs.Key, 0, len(s.deployments))
	for _, d := range s.deployments {
		listed[d.Dir()] = struct{}{}
		key, err := cafs.KeyFromString(d.Checksum)
		if err != nil {
			return stats, err
		}
		roots = append(roots, key)
	}

	if stats.DeploymentsRemoved, err = s.cleanupDeployments(listed); err != nil {
		return stats, err
	}
	if err = s.cleanupBootState(); err != nil {
		return stats, err
	}

	stats.Pruned, err = s.repo.Prune(ctx, core.WithPruneRefsOnly(true), core.WithPruneDepth(0), core.WithPruneExtraRoots(roots...))
	if err != nil {
		return stats, err
	}
	s.l.Info("cleaned up sysroot",
		zap.Int("deployments_removed", stats.DeploymentsRemoved),
		zap.Int("objects_pruned", stats.Pruned.ObjectsPruned),
	)
	return stats, nil
}

func (s *Sysroot) cleanupDeployments(listed map[string]struct{}) (int, error) {
	osInfos, err := afero.ReadDir(s.fs, model.SysrootDeployRoot)
	if err != nil {
		return 0, errors.ErrIO.Wrap(err)
	}
	removed := 0
	for _, osInfo := range osInfos {
		if !osInfo.IsDir() {
			continue
		}
		deployDir := model.OsDeployDir(osInfo.Name())
		infos, err := afero.ReadDir(s.fs, deployDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, errors.ErrIO.Wrap(err)
		}
		for _, info := range infos {
			name := info.Name()
			if strings.HasPrefix(name, ".") && strings.Contains(name, tmpInfix) {
				if err = s.fs.Remove(path.Join(deployDir, name)); err != nil {
					return removed, errors.ErrIO.Wrap(err)
				}
				continue
			}
			dirName := strings.TrimSuffix(name, originSuffix)
			if _, _, ok := model.ParseDeploymentDirName(dirName); !ok {
				continue
			}
			pth := path.Join(deployDir, name)
			if _, ok := listed[path.Join(deployDir, dirName)]; ok {
				continue
			}
			s.l.Info("removing deployment", zap.String("path", pth))
			if err = s.fs.RemoveAll(pth); err != nil {
				return removed, errors.ErrIO.Wrap(err)
			}
			if info.IsDir() {
				removed++
			}
		}
	}
	return removed, nil
}

// cleanupBootState removes the inactive loader directory and interrupted pointer swaps
func (s *Sysroot) cleanupBootState() error {
	if err := s.fs.RemoveAll(model.LoaderDir(1 - s.bootVersion)); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	for _, dir := range []string{model.BootDir, model.LoaderDir(s.bootVersion)} {
		infos, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			return errors.ErrIO.Wrap(err)
		}
		for _, info := range infos {
			if info.IsDir() || !strings.HasPrefix(info.Name(), ".") || !strings.Contains(info.Name(), tmpInfix) {
				continue
			}
			if err = s.fs.Remove(path.Join(dir, info.Name())); err != nil {
				return errors.ErrIO.Wrap(err)
			}
		}
	}
	return nil
}
