package sysroot

import (
	"context"
	"strconv"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/lock"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/sysroot/status"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// WriteDeployments replaces the boot menu by a new ordered list of deployments.
//
// The boot menu is reloaded under the exclusive sysroot lock. The list is written to the inactive
// loader directory, then the boot loader pointer is swapped: an interruption leaves either the
// previous or the new boot menu in place.
func (s *Sysroot) WriteDeployments(ctx context.Context, deployments []*model.Deployment) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.checkLoaded(); err != nil {
		return err
	}
	unlock, err := s.autoLock(ctx, lock.Exclusive)
	if err != nil {
		return err
	}
	defer unlock()
	if err = s.load(ctx); err != nil {
		return err
	}

	list := make([]*model.Deployment, 0, len(deployments))
	seen := make(map[string]struct{}, len(deployments))
	for i, d := range deployments {
		if d == nil {
			return errors.ErrInvalidArgument.WrapMessage("nil deployment at index %d", i)
		}
		dir := d.Dir()
		if _, ok := seen[dir]; ok {
			return status.ErrDuplicateDeployment.WrapMessage("%v", d)
		}
		seen[dir] = struct{}{}
		if exists, _ := afero.DirExists(s.fs, dir); !exists {
			return status.ErrDeploymentNotFound.WrapMessage("%v", d)
		}
		c := d.Clone()
		c.Index = i
		list = append(list, c)
	}
	assignBootSerials(list)

	bootVersion := 1 - s.bootVersion
	if err = s.writeDeploymentList(bootVersion, list); err != nil {
		return err
	}
	if s.beforeSwap != nil {
		if err = s.beforeSwap(); err != nil {
			return err
		}
	}
	if err = s.swapPointer(bootVersion); err != nil {
		return err
	}

	bootChanged := !sameBootEntries(s.deployments, list)
	s.bootVersion = bootVersion
	s.deployments = list
	if stamp, err := s.currentStamp(); err == nil {
		s.stamp = stamp
	}
	s.l.Info("wrote deployments", zap.Int("boot_version", bootVersion), zap.Int("deployments", len(list)), zap.Bool("boot_changed", bootChanged))

	if bootChanged && s.opts.bootloader != nil {
		if err = s.opts.bootloader.WriteConfig(ctx, bootVersion, cloneDeployments(list)); err != nil {
			return errors.ErrIO.Wrap(err)
		}
	}
	return nil
}

// assignBootSerials numbers the deployments sharing the same boot checksum, in boot order
func assignBootSerials(deployments []*model.Deployment) {
	serials := make(map[string]int)
	for _, d := range deployments {
		d.BootSerial = serials[d.BootChecksum]
		serials[d.BootChecksum]++
	}
}

func sameBootEntries(a, b []*model.Deployment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].BootChecksum != b[i].BootChecksum || a[i].BootSerial != b[i].BootSerial {
			return false
		}
	}
	return true
}

func (s *Sysroot) writeDeploymentList(bootVersion int, deployments []*model.Deployment) error {
	if deployments == nil {
		deployments = []*model.Deployment{}
	}
	data, err := yaml.Marshal(&model.DeploymentList{BootVersion: bootVersion, Deployments: deployments})
	if err != nil {
		return errors.ErrInvalidArgument.Wrap(err)
	}
	if err = s.fs.MkdirAll(model.LoaderDir(bootVersion), 0755); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	return s.writeFileAtomic(deploymentListPath(bootVersion), data)
}

func (s *Sysroot) swapPointer(bootVersion int) error {
	return s.writeFileAtomic(model.BootLoaderPointer, []byte(loaderPrefix+strconv.Itoa(bootVersion)+"\n"))
}
