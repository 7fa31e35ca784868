// Package config manages the configuration of a repository.
//
// The configuration is a key file with a [core] section and one [remote "NAME"] section per remote.
// Remotes may also be defined in a separate directory, one NAME.conf file per remote.
package config

import (
	"bytes"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/go-ini/ini"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
)

// Sections and keys of the core configuration
const (
	CoreSection            = "core"
	KeyRepoVersion         = "repo_version"
	KeyMode                = "mode"
	KeyAddRemotesConfigDir = "add-remotes-config-dir"
	KeyLockTimeoutSecs     = "lock-timeout-secs"
	KeyMinFreeSpaceSize    = "min-free-space-size"
	KeyFsync               = "fsync"
	KeyDisableXattrs       = "disable-xattrs"

	// RepoVersion is the only supported repository format version
	RepoVersion = 1

	// DefaultLockTimeout is used when the configuration does not set any
	DefaultLockTimeout = 30 * time.Second
)

var remoteSectionRe = regexp.MustCompile(`^remote "(.+)"$`)

// RemoteSection returns the name of the section defining a remote
func RemoteSection(name string) string {
	return `remote "` + name + `"`
}

func loadOptions() ini.LoadOptions {
	return ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: false,
	}
}

// Config of a repository
type Config struct {
	mx         sync.RWMutex
	fs         afero.Fs
	path       string
	remotesDir string
	systemRepo bool
	file       *ini.File
	remotes    map[string]*Remote
	detached   bool
}

// Option for loading a configuration
type Option func(*Config)

// RemotesDir sets the remotes config directory
func RemotesDir(dir string) Option {
	return func(c *Config) {
		c.remotesDir = dir
	}
}

// SystemRepo marks the configuration of the repository of a sysroot: new remotes go to the remotes config directory
func SystemRepo(enabled bool) Option {
	return func(c *Config) {
		c.systemRepo = enabled
	}
}

// Init writes a new configuration for a repository with the given mode
func Init(fs afero.Fs, pth string, mode string, opts ...Option) (*Config, error) {
	f := ini.Empty(loadOptions())
	core := f.Section(CoreSection)
	core.Key(KeyRepoVersion).SetValue(itoa(RepoVersion))
	core.Key(KeyMode).SetValue(mode)

	c := newConfig(fs, pth, opts...)
	c.file = f
	if err := c.save(); err != nil {
		return nil, err
	}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load the configuration of a repository
func Load(fs afero.Fs, pth string, opts ...Option) (*Config, error) {
	c := newConfig(fs, pth, opts...)
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func newConfig(fs afero.Fs, pth string, opts ...Option) *Config {
	c := &Config{
		fs:   fs,
		path: pth,
	}
	for _, apply := range opts {
		apply(c)
	}
	return c
}

// Reload the configuration from disk
func (c *Config) Reload() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.reload()
}

func (c *Config) reload() error {
	data, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrInvalidConfig.WrapMessage("missing config file %q", c.path)
		}
		return errors.ErrIO.Wrap(err)
	}
	f, err := ini.LoadSources(loadOptions(), data)
	if err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	if v := f.Section(CoreSection).Key(KeyRepoVersion).MustInt(RepoVersion); v != RepoVersion {
		return ErrInvalidConfig.WrapMessage("unsupported repository version %d", v)
	}

	remotes, err := remotesFromFile(f, c.path, LocationMainFile)
	if err != nil {
		return err
	}
	if c.remotesDir != "" {
		if err := c.loadRemotesDir(remotes); err != nil {
			return err
		}
	}
	c.file = f
	c.remotes = remotes
	return nil
}

func (c *Config) loadRemotesDir(remotes map[string]*Remote) error {
	entries, err := afero.ReadDir(c.fs, c.remotesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.ErrIO.Wrap(err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), model.RemoteConfigExt) {
			continue
		}
		pth := path.Join(c.remotesDir, entry.Name())
		data, err := afero.ReadFile(c.fs, pth)
		if err != nil {
			return errors.ErrIO.Wrap(err)
		}
		f, err := ini.LoadSources(loadOptions(), data)
		if err != nil {
			return ErrInvalidConfig.WrapMessage("%s: %v", pth, err)
		}
		found, err := remotesFromFile(f, pth, LocationConfigDir)
		if err != nil {
			return err
		}
		for name, remote := range found {
			if _, exists := remotes[name]; exists {
				return ErrRemoteExists.WrapMessage("multiple specifications found for remote %q", name)
			}
			remotes[name] = remote
		}
	}
	return nil
}

func remotesFromFile(f *ini.File, pth string, location Location) (map[string]*Remote, error) {
	remotes := make(map[string]*Remote)
	for _, section := range f.Sections() {
		matches := remoteSectionRe.FindStringSubmatch(section.Name())
		if matches == nil {
			continue
		}
		name := matches[1]
		if err := model.ValidateRemoteName(name); err != nil {
			return nil, ErrInvalidConfig.WrapMessage("%s: %v", pth, err)
		}
		remote, err := remoteFromSection(name, section)
		if err != nil {
			return nil, err
		}
		remote.Location = location
		remote.File = pth
		remotes[name] = remote
	}
	return remotes, nil
}

// Copy returns an editable copy of the main configuration file, for use with WriteConfig
func (c *Config) Copy() (*Config, error) {
	c.mx.RLock()
	defer c.mx.RUnlock()
	var buf bytes.Buffer
	if _, err := c.file.WriteTo(&buf); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	f, err := ini.LoadSources(loadOptions(), buf.Bytes())
	if err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	remotes, err := remotesFromFile(f, c.path, LocationMainFile)
	if err != nil {
		return nil, err
	}
	return &Config{
		fs:         c.fs,
		path:       c.path,
		remotesDir: c.remotesDir,
		systemRepo: c.systemRepo,
		file:       f,
		remotes:    remotes,
		detached:   true,
	}, nil
}

// Get a configuration value
func (c *Config) Get(section, key string) (string, bool) {
	c.mx.RLock()
	defer c.mx.RUnlock()
	s, err := c.file.GetSection(section)
	if err != nil || !s.HasKey(key) {
		return "", false
	}
	return s.Key(key).String(), true
}

// Set a configuration value. On a loaded configuration, this is persisted immediately.
func (c *Config) Set(section, key, value string) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.file.Section(section).Key(key).SetValue(value)
	if c.detached {
		return nil
	}
	return c.saveAndReload()
}

// Unset a configuration value
func (c *Config) Unset(section, key string) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if s, err := c.file.GetSection(section); err == nil {
		s.DeleteKey(key)
	}
	if c.detached {
		return nil
	}
	return c.saveAndReload()
}

// Sections of the main configuration file
func (c *Config) Sections() []string {
	c.mx.RLock()
	defer c.mx.RUnlock()
	names := make([]string, 0, len(c.file.Sections()))
	for _, s := range c.file.Sections() {
		if s.Name() == ini.DefaultSection && len(s.Keys()) == 0 {
			continue
		}
		names = append(names, s.Name())
	}
	return names
}

// WriteConfig replaces the main configuration file with newConfig.
//
// It fails if newConfig defines a remote which is defined in the remotes config directory.
func (c *Config) WriteConfig(newConfig *Config) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.validateNewConfig(newConfig); err != nil {
		return err
	}
	c.file = newConfig.file
	return c.saveAndReload()
}

// ValidateNewConfig checks that newConfig may replace the main configuration file
func (c *Config) ValidateNewConfig(newConfig *Config) error {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.validateNewConfig(newConfig)
}

func (c *Config) validateNewConfig(newConfig *Config) error {
	for _, section := range newConfig.file.Sections() {
		matches := remoteSectionRe.FindStringSubmatch(section.Name())
		if matches == nil {
			continue
		}
		if existing, ok := c.remotes[matches[1]]; ok && existing.Location == LocationConfigDir {
			return ErrRemoteInConfigDir.WrapMessage("%q is defined in %s", matches[1], existing.File)
		}
		if _, err := remoteFromSection(matches[1], section); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) saveAndReload() error {
	if err := c.save(); err != nil {
		return err
	}
	return c.reload()
}

func (c *Config) save() error {
	var buf bytes.Buffer
	if _, err := c.file.WriteTo(&buf); err != nil {
		return ErrWriteConfig.Wrap(err)
	}
	return writeFileAtomic(c.fs, c.path, buf.Bytes())
}

// writeFileAtomic writes a temporary file next to the target, then renames it into place
func writeFileAtomic(fs afero.Fs, pth string, data []byte) error {
	dir, base := path.Split(pth)
	if dir != "" {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return ErrWriteConfig.Wrap(err)
		}
	}
	tmp := path.Join(dir, "."+base+"."+ksuid.New().String()+".tmp")
	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return ErrWriteConfig.Wrap(err)
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = fs.Rename(tmp, pth)
	}
	if err != nil {
		_ = fs.Remove(tmp)
		return ErrWriteConfig.Wrap(err)
	}
	return nil
}

// Mode of the repository
func (c *Config) Mode() string {
	v, _ := c.Get(CoreSection, KeyMode)
	return v
}

// AddRemotesConfigDir tells if new remotes go to the remotes config directory
func (c *Config) AddRemotesConfigDir() bool {
	return c.boolValue(CoreSection, KeyAddRemotesConfigDir, false)
}

// Fsync tells if writes are synced to disk
func (c *Config) Fsync() bool {
	return c.boolValue(CoreSection, KeyFsync, true)
}

// DisableXattrs tells if extended attributes are ignored
func (c *Config) DisableXattrs() bool {
	return c.boolValue(CoreSection, KeyDisableXattrs, false)
}

// LockTimeout to wait for the repository lock. A negative duration waits forever.
func (c *Config) LockTimeout() (time.Duration, error) {
	v, ok := c.Get(CoreSection, KeyLockTimeoutSecs)
	if !ok {
		return DefaultLockTimeout, nil
	}
	secs, err := atoi(v)
	if err != nil {
		return 0, ErrInvalidConfig.WrapMessage("%s.%s: %v", CoreSection, KeyLockTimeoutSecs, err)
	}
	if secs < 0 {
		return -1, nil
	}
	return time.Duration(secs) * time.Second, nil
}

// MinFreeSpace is the number of bytes which must remain free on the repository filesystem
func (c *Config) MinFreeSpace() (int64, error) {
	v, ok := c.Get(CoreSection, KeyMinFreeSpaceSize)
	if !ok || v == "" {
		return 0, nil
	}
	size, err := units.RAMInBytes(v)
	if err != nil {
		return 0, ErrInvalidConfig.WrapMessage("%s.%s: %v", CoreSection, KeyMinFreeSpaceSize, err)
	}
	return size, nil
}

func (c *Config) boolValue(section, key string, dflt bool) bool {
	c.mx.RLock()
	defer c.mx.RUnlock()
	s, err := c.file.GetSection(section)
	if err != nil || !s.HasKey(key) {
		return dflt
	}
	return s.Key(key).MustBool(dflt)
}

// RemotesDir is the remotes config directory, if any
func (c *Config) RemotesDir() string {
	return c.remotesDir
}

// Path of the main configuration file
func (c *Config) Path() string {
	return c.path
}

func sortedRemoteNames(remotes map[string]*Remote) []string {
	names := make([]string, 0, len(remotes))
	for name := range remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
