package sysroot

import (
	"context"
	"os"

	"github.com/oneconcern/treemon/pkg/core"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/lock"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/sysroot/status"
	"github.com/spf13/afero"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Deploy checks out a revision as a new deployment of an operating system.
//
// The configuration of the merge deployment, when not nil, is merged into the new deployment.
// When origin is nil and the revision is a refspec, the deployment records the refspec as origin.
//
// The new deployment is not part of the boot menu until it is listed by WriteDeployments.
func (s *Sysroot) Deploy(ctx context.Context, osname, revision string, origin *model.Origin, merge *model.Deployment) (*model.Deployment, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	if err := s.checkLoaded(); err != nil {
		return nil, err
	}
	if exists, _ := afero.DirExists(s.fs, model.OsDeployDir(osname)); !exists {
		return nil, status.ErrOsNotFound.WrapMessage("%q", osname)
	}
	unlock, err := s.autoLock(ctx, lock.Shared)
	if err != nil {
		return nil, err
	}
	defer unlock()

	commit, err := s.repo.ResolveRev(ctx, revision, false)
	if err != nil {
		return nil, err
	}
	if origin == nil && model.ValidateChecksum(revision) != nil {
		if _, err := model.ParseRefspec(revision); err == nil {
			origin = &model.Origin{Refspec: revision}
		}
	}
	d, err := s.claimDeployment(osname, commit.String())
	if err != nil {
		return nil, err
	}
	lg := s.l.With(zap.Stringer("deployment", d))

	err = s.repo.Checkout(ctx, commit, s.fs, d.Dir(), core.CheckoutOptions{
		Ownership: s.opts.ownership,
		Parallel:  s.opts.checkoutParallel,
	})
	if err == nil {
		err = s.finishDeployment(d, merge)
	}
	if err == nil {
		err = s.writeOrigin(d, origin)
	}
	if err != nil {
		lg.Warn("deployment failed", zap.Error(err))
		for _, pth := range []string{d.Dir(), d.OriginPath()} {
			if erc := s.fs.RemoveAll(pth); erc != nil {
				lg.Warn("cleaning up failed deployment", zap.String("path", pth), zap.Error(erc))
			}
		}
		return nil, err
	}
	d.Origin = origin.Clone()
	lg.Info("deployed", zap.String("revision", revision), zap.String("bootcsum", d.BootChecksum))
	return d, nil
}

func (s *Sysroot) finishDeployment(d, merge *model.Deployment) error {
	bootcsum, err := bootChecksum(s.fs, d.Dir())
	if err != nil {
		return err
	}
	d.BootChecksum = bootcsum
	if err = prepareEtc(s.fs, d.Dir()); err != nil {
		return err
	}
	if merge == nil {
		return nil
	}
	if exists, _ := afero.DirExists(s.fs, merge.Dir()); !exists {
		return status.ErrDeploymentNotFound.WrapMessage("merge deployment %v", merge)
	}
	return s.mergeEtc(merge.Dir(), d.Dir())
}

// claimDeployment creates the empty directory of a new deployment of a commit.
//
// The directory is created exclusively: concurrent deployments of the same commit get distinct serials.
func (s *Sysroot) claimDeployment(osname, checksum string) (*model.Deployment, error) {
	serial, err := s.nextDeploySerial(osname, checksum)
	if err != nil {
		return nil, err
	}
	for {
		d := &model.Deployment{
			Index:        -1,
			OSName:       osname,
			Checksum:     checksum,
			DeploySerial: serial,
		}
		err = s.fs.Mkdir(d.Dir(), 0755)
		if err == nil {
			// left over by an interrupted deployment
			if err = s.fs.Remove(d.OriginPath()); err != nil && !os.IsNotExist(err) {
				return nil, errs.Combine(errors.ErrIO.Wrap(err), s.fs.Remove(d.Dir()))
			}
			return d, nil
		}
		if !os.IsExist(err) {
			return nil, errors.ErrIO.Wrap(err)
		}
		serial++
	}
}

// nextDeploySerial is the first serial after the existing deployments of some commit
func (s *Sysroot) nextDeploySerial(osname, checksum string) (int, error) {
	infos, err := afero.ReadDir(s.fs, model.OsDeployDir(osname))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.ErrIO.Wrap(err)
	}
	serial := 0
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		csum, n, ok := model.ParseDeploymentDirName(info.Name())
		if ok && csum == checksum && n >= serial {
			serial = n + 1
		}
	}
	return serial, nil
}

// MergeDeployment is the deployment whose configuration is carried over by new deployments of an
// operating system: the first one listed in the boot menu. It is nil when there is none.
func (s *Sysroot) MergeDeployment(osname string) *model.Deployment {
	s.mx.RLock()
	defer s.mx.RUnlock()
	for _, d := range s.deployments {
		if d.OSName == osname {
			return d.Clone()
		}
	}
	return nil
}

// NeedsNewBootEntry tells if a deployment boots another kernel than the merge deployment
func NeedsNewBootEntry(deployment, merge *model.Deployment) bool {
	return merge == nil || deployment.BootChecksum != merge.BootChecksum
}

// Upgrade deploys the latest commit of the origin of the merge deployment of an operating system, then
// makes it the first entry of the boot menu.
//
// Nothing is deployed when the merge deployment already runs that commit.
func (s *Sysroot) Upgrade(ctx context.Context, osname string) (*model.Deployment, bool, error) {
	merge := s.MergeDeployment(osname)
	if merge == nil {
		return nil, false, status.ErrDeploymentNotFound.WrapMessage("no deployment of %q to upgrade", osname)
	}
	if merge.Origin == nil || merge.Origin.Refspec == "" {
		return nil, false, status.ErrOrigin.WrapMessage("deployment %v has no origin refspec", merge)
	}
	latest, err := s.Repo().ResolveRev(ctx, merge.Origin.Refspec, false)
	if err != nil {
		return nil, false, err
	}
	if latest.String() == merge.Checksum {
		return merge, false, nil
	}
	d, err := s.Deploy(ctx, osname, latest.String(), merge.Origin, merge)
	if err != nil {
		return nil, false, err
	}
	if err = s.WriteDeployments(ctx, append([]*model.Deployment{d}, s.Deployments()...)); err != nil {
		return nil, false, err
	}
	return d, true, nil
}
