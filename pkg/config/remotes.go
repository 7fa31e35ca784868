package config

import (
	"bytes"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/go-ini/ini"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/spf13/afero"
	"github.com/zeebo/errs"
)

// Keys of a remote section
const (
	KeyURL       = "url"
	KeyGPGVerify = "gpg-verify"
	KeyBranches  = "branches"
)

// Location of the authoritative definition of a remote
type Location uint8

// Locations
const (
	LocationMainFile Location = iota
	LocationConfigDir
)

func (l Location) String() string {
	if l == LocationConfigDir {
		return "config-dir"
	}
	return "config"
}

// ChangeMode tells how ChangeRemote proceeds
type ChangeMode uint8

// Change modes
const (
	// ChangeAdd fails if the remote exists
	ChangeAdd ChangeMode = iota
	// ChangeAddIfNotExists is a no-op if the remote exists
	ChangeAddIfNotExists
	// ChangeDelete fails if the remote does not exist
	ChangeDelete
	// ChangeDeleteIfExists is a no-op if the remote does not exist
	ChangeDeleteIfExists
	// ChangeReplace overwrites all the options of the remote where it is defined, or creates it
	ChangeReplace
	// ChangeReplaceAndAdd removes the remote then adds it again, possibly at another location
	ChangeReplaceAndAdd
)

// Remote source of objects
type Remote struct {
	Name      string
	URL       string
	GPGVerify bool
	Branches  []string
	Options   map[string]string
	Location  Location
	File      string
}

// Option value of a remote, url included
func (r *Remote) Option(key string) (string, bool) {
	if key == KeyURL {
		return r.URL, r.URL != ""
	}
	v, ok := r.Options[key]
	return v, ok
}

func (r *Remote) clone() *Remote {
	c := *r
	c.Branches = append([]string(nil), r.Branches...)
	c.Options = make(map[string]string, len(r.Options))
	for k, v := range r.Options {
		c.Options[k] = v
	}
	return &c
}

func remoteFromSection(name string, section *ini.Section) (*Remote, error) {
	remote := &Remote{
		Name:      name,
		GPGVerify: true,
		Options:   make(map[string]string),
	}
	for _, key := range section.Keys() {
		switch key.Name() {
		case KeyURL:
			remote.URL = key.String()
		case KeyGPGVerify:
			v, err := key.Bool()
			if err != nil {
				return nil, ErrInvalidConfig.WrapMessage("remote %q: %s: %v", name, KeyGPGVerify, err)
			}
			remote.GPGVerify = v
			remote.Options[KeyGPGVerify] = key.String()
		case KeyBranches:
			for _, branch := range strings.Split(key.String(), ";") {
				if branch = strings.TrimSpace(branch); branch != "" {
					remote.Branches = append(remote.Branches, branch)
				}
			}
			remote.Options[KeyBranches] = key.String()
		default:
			remote.Options[key.Name()] = key.String()
		}
	}
	return remote, nil
}

func fillRemoteSection(section *ini.Section, url string, options map[string]string) {
	if url != "" {
		section.Key(KeyURL).SetValue(url)
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		if k != KeyURL {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		section.Key(k).SetValue(options[k])
	}
}

// Remotes sorted by name
func (c *Config) Remotes() []*Remote {
	c.mx.RLock()
	defer c.mx.RUnlock()
	remotes := make([]*Remote, 0, len(c.remotes))
	for _, name := range sortedRemoteNames(c.remotes) {
		remotes = append(remotes, c.remotes[name].clone())
	}
	return remotes
}

// Remote by name
func (c *Config) Remote(name string) (*Remote, error) {
	c.mx.RLock()
	defer c.mx.RUnlock()
	remote, ok := c.remotes[name]
	if !ok {
		return nil, ErrRemoteNotFound.WrapMessage("%q", name)
	}
	return remote.clone(), nil
}

// AddRemote defines a new remote.
//
// The remote goes to the remotes config directory if there is one and either the repository
// is a system repository or core.add-remotes-config-dir is set. Otherwise, it goes to the main file.
func (c *Config) AddRemote(name, url string, options map[string]string) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.addRemote(name, url, options)
}

func (c *Config) addRemote(name, url string, options map[string]string) error {
	if err := model.ValidateRemoteName(name); err != nil {
		return err
	}
	if _, exists := c.remotes[name]; exists {
		return ErrRemoteExists.WrapMessage("%q", name)
	}
	if err := validateRemoteOptions(name, options); err != nil {
		return err
	}
	if c.addToRemotesDir() {
		f := ini.Empty(loadOptions())
		fillRemoteSection(f.Section(RemoteSection(name)), url, options)
		if err := c.writeRemoteFile(remoteFilePath(c.remotesDir, name), f); err != nil {
			return err
		}
		return c.reload()
	}
	fillRemoteSection(c.file.Section(RemoteSection(name)), url, options)
	return c.saveAndReload()
}

func validateRemoteOptions(name string, options map[string]string) error {
	if v, ok := options[KeyGPGVerify]; ok {
		if _, err := strconv.ParseBool(v); err != nil {
			return ErrInvalidConfig.WrapMessage("remote %q: %s: %v", name, KeyGPGVerify, err)
		}
	}
	return nil
}

func (c *Config) addToRemotesDir() bool {
	if c.remotesDir == "" {
		return false
	}
	if c.systemRepo {
		return true
	}
	s, err := c.file.GetSection(CoreSection)
	if err != nil || !s.HasKey(KeyAddRemotesConfigDir) {
		return false
	}
	return s.Key(KeyAddRemotesConfigDir).MustBool(false)
}

func remoteFilePath(dir, name string) string {
	return path.Join(dir, name+model.RemoteConfigExt)
}

// DeleteRemote removes a remote from where it is defined
func (c *Config) DeleteRemote(name string) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.deleteRemote(name)
}

func (c *Config) deleteRemote(name string) error {
	remote, ok := c.remotes[name]
	if !ok {
		return ErrRemoteNotFound.WrapMessage("%q", name)
	}
	if remote.Location == LocationMainFile {
		c.file.DeleteSection(RemoteSection(name))
		return c.saveAndReload()
	}

	f, err := c.loadRemoteFile(remote.File)
	if err != nil {
		return err
	}
	f.DeleteSection(RemoteSection(name))
	if len(remoteSections(f)) == 0 {
		if err := c.fs.Remove(remote.File); err != nil && !os.IsNotExist(err) {
			return ErrWriteConfig.Wrap(err)
		}
	} else if err := c.writeRemoteFile(remote.File, f); err != nil {
		return err
	}
	return c.reload()
}

// ChangeRemote adds, deletes or replaces a remote
func (c *Config) ChangeRemote(mode ChangeMode, name, url string, options map[string]string) error {
	c.mx.Lock()
	defer c.mx.Unlock()

	remote, exists := c.remotes[name]
	switch mode {
	case ChangeAdd:
		return c.addRemote(name, url, options)
	case ChangeAddIfNotExists:
		if exists {
			return nil
		}
		return c.addRemote(name, url, options)
	case ChangeDelete:
		return c.deleteRemote(name)
	case ChangeDeleteIfExists:
		if !exists {
			return nil
		}
		return c.deleteRemote(name)
	case ChangeReplace:
		if !exists {
			return c.addRemote(name, url, options)
		}
		return c.replaceRemote(remote, url, options)
	case ChangeReplaceAndAdd:
		if !exists {
			return c.addRemote(name, url, options)
		}
		if err := validateRemoteOptions(name, options); err != nil {
			return err
		}
		restore, err := c.snapshotRemote(remote)
		if err != nil {
			return err
		}
		if err = c.deleteRemote(name); err != nil {
			return err
		}
		if err = c.addRemote(name, url, options); err != nil {
			return errs.Combine(err, restore())
		}
		return nil
	default:
		return errors.ErrInvalidArgument.WrapMessage("unknown remote change mode %d", mode)
	}
}

// snapshotRemote returns a function restoring the current definition of a remote
func (c *Config) snapshotRemote(remote *Remote) (func() error, error) {
	section := RemoteSection(remote.Name)
	if remote.Location == LocationMainFile {
		s, err := c.file.GetSection(section)
		if err != nil {
			return nil, ErrRemoteNotFound.WrapMessage("%q", remote.Name)
		}
		keys := make([][2]string, 0, len(s.Keys()))
		for _, k := range s.Keys() {
			keys = append(keys, [2]string{k.Name(), k.Value()})
		}
		return func() error {
			c.file.DeleteSection(section)
			restored := c.file.Section(section)
			for _, kv := range keys {
				restored.Key(kv[0]).SetValue(kv[1])
			}
			return c.saveAndReload()
		}, nil
	}

	data, err := afero.ReadFile(c.fs, remote.File)
	if err != nil {
		return nil, errors.ErrIO.Wrap(err)
	}
	return func() error {
		if err := writeFileAtomic(c.fs, remote.File, data); err != nil {
			return err
		}
		return c.reload()
	}, nil
}

func (c *Config) replaceRemote(remote *Remote, url string, options map[string]string) error {
	if err := validateRemoteOptions(remote.Name, options); err != nil {
		return err
	}
	section := RemoteSection(remote.Name)
	if remote.Location == LocationMainFile {
		c.file.DeleteSection(section)
		fillRemoteSection(c.file.Section(section), url, options)
		return c.saveAndReload()
	}

	f, err := c.loadRemoteFile(remote.File)
	if err != nil {
		return err
	}
	f.DeleteSection(section)
	fillRemoteSection(f.Section(section), url, options)
	if err := c.writeRemoteFile(remote.File, f); err != nil {
		return err
	}
	return c.reload()
}

func (c *Config) loadRemoteFile(pth string) (*ini.File, error) {
	data, err := afero.ReadFile(c.fs, pth)
	if err != nil {
		return nil, errors.ErrIO.Wrap(err)
	}
	f, err := ini.LoadSources(loadOptions(), data)
	if err != nil {
		return nil, ErrInvalidConfig.WrapMessage("%s: %v", pth, err)
	}
	return f, nil
}

func (c *Config) writeRemoteFile(pth string, f *ini.File) error {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return ErrWriteConfig.Wrap(err)
	}
	return writeFileAtomic(c.fs, pth, buf.Bytes())
}

func remoteSections(f *ini.File) []string {
	var names []string
	for _, s := range f.Sections() {
		if m := remoteSectionRe.FindStringSubmatch(s.Name()); m != nil {
			names = append(names, m[1])
		}
	}
	return names
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
