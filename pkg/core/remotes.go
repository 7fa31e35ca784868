package core

import (
	"context"

	"github.com/oneconcern/treemon/pkg/config"
	"github.com/oneconcern/treemon/pkg/lock"
	"go.uber.org/zap"
)

// RemoteList returns the names of the configured remotes, sorted
func (r *Repo) RemoteList() []string {
	remotes := r.config.Remotes()
	names := make([]string, 0, len(remotes))
	for _, remote := range remotes {
		names = append(names, remote.Name)
	}
	return names
}

// RemoteGet returns the definition of a remote
func (r *Repo) RemoteGet(name string) (*config.Remote, error) {
	return r.config.Remote(name)
}

// RemoteGPGVerify tells if commits pulled from a remote must be signed
func (r *Repo) RemoteGPGVerify(name string) (bool, error) {
	remote, err := r.config.Remote(name)
	if err != nil {
		return false, err
	}
	return remote.GPGVerify, nil
}

// RemoteAdd defines a new remote
func (r *Repo) RemoteAdd(ctx context.Context, name, url string, options map[string]string) error {
	return r.RemoteChange(ctx, config.ChangeAdd, name, url, options)
}

// RemoteDelete removes a remote from where it is defined
func (r *Repo) RemoteDelete(ctx context.Context, name string) error {
	return r.RemoteChange(ctx, config.ChangeDelete, name, "", nil)
}

// RemoteChange adds, deletes or replaces a remote
func (r *Repo) RemoteChange(ctx context.Context, mode config.ChangeMode, name, url string, options map[string]string) error {
	release, err := r.AutoLock(ctx, lock.Exclusive)
	if err != nil {
		return err
	}
	defer release()
	if err := r.config.ChangeRemote(mode, name, url, options); err != nil {
		return err
	}
	r.l.Debug("changed remote", zap.String("remote", name), zap.Uint8("mode", uint8(mode)))
	return nil
}

// CopyConfig returns an editable copy of the main configuration
func (r *Repo) CopyConfig() (*config.Config, error) {
	return r.config.Copy()
}

// WriteConfig replaces the main configuration.
//
// It fails with an AlreadyExists error when the new configuration sets options of a remote
// defined in the remotes config directory.
func (r *Repo) WriteConfig(ctx context.Context, cfg *config.Config) error {
	release, err := r.AutoLock(ctx, lock.Exclusive)
	if err != nil {
		return err
	}
	defer release()
	return r.config.WriteConfig(cfg)
}

// ReloadConfig reloads the configuration from disk
func (r *Repo) ReloadConfig() error {
	return r.config.Reload()
}
