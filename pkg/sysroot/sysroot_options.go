package sysroot

import (
	"context"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/dlogger"
	"github.com/oneconcern/treemon/pkg/model"
	"go.uber.org/zap"
)

// BootloaderWriter generates the boot loader configuration of a deployment list
type BootloaderWriter interface {
	WriteConfig(ctx context.Context, bootVersion int, deployments []*model.Deployment) error
}

type (
	// Option modifies a sysroot
	Option func(*options)

	options struct {
		l                *zap.Logger
		bootloader       BootloaderWriter
		repoMode         cafs.Mode
		checkoutParallel int
		ownership        bool
	}
)

// Logger sets the logger of the sysroot and its repository
func Logger(zlg *zap.Logger) Option {
	return func(o *options) {
		if zlg != nil {
			o.l = zlg
		}
	}
}

// Bootloader sets the writer called when the boot configuration of the deployments changes
func Bootloader(w BootloaderWriter) Option {
	return func(o *options) {
		o.bootloader = w
	}
}

// RepoMode sets the mode of the repository created by EnsureInitialized. It defaults to bare.
func RepoMode(mode cafs.Mode) Option {
	return func(o *options) {
		o.repoMode = mode
	}
}

// CheckoutParallel sets the number of files written concurrently by deployments
func CheckoutParallel(parallel int) Option {
	return func(o *options) {
		o.checkoutParallel = parallel
	}
}

// Ownership applies the owners recorded in commits to deployed files. This requires privileges.
func Ownership(enabled bool) Option {
	return func(o *options) {
		o.ownership = enabled
	}
}

func defaultOptions(opts []Option) *options {
	o := &options{
		repoMode: cafs.ModeBare,
	}
	for _, apply := range opts {
		apply(o)
	}
	if o.l == nil {
		o.l = dlogger.MustGetLogger(dlogger.LogLevelInfo)
	}
	return o
}
