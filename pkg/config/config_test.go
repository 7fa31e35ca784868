package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testConfigPath = "/repo/config"
	testRemotesDir = "/remotes.d"
)

func remoteNames(c *Config) []string {
	var names []string
	for _, r := range c.Remotes() {
		names = append(names, r.Name)
	}
	return names
}

func TestInitAndCore(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := Init(fs, testConfigPath, "archive")
	require.NoError(t, err)

	assert.Equal(t, "archive", c.Mode())
	assert.True(t, c.Fsync())
	assert.False(t, c.DisableXattrs())
	assert.False(t, c.AddRemotesConfigDir())

	timeout, err := c.LockTimeout()
	require.NoError(t, err)
	assert.Equal(t, DefaultLockTimeout, timeout)

	free, err := c.MinFreeSpace()
	require.NoError(t, err)
	assert.Zero(t, free)

	reloaded, err := Load(fs, testConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "archive", reloaded.Mode())
	v, ok := reloaded.Get(CoreSection, KeyRepoVersion)
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestCoreValues(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := Init(fs, testConfigPath, "bare")
	require.NoError(t, err)

	require.NoError(t, c.Set(CoreSection, KeyLockTimeoutSecs, "0"))
	timeout, err := c.LockTimeout()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), timeout)

	require.NoError(t, c.Set(CoreSection, KeyLockTimeoutSecs, "-1"))
	timeout, err = c.LockTimeout()
	require.NoError(t, err)
	assert.True(t, timeout < 0)

	require.NoError(t, c.Set(CoreSection, KeyLockTimeoutSecs, "soon"))
	_, err = c.LockTimeout()
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	for _, toPin := range []struct {
		value    string
		expected int64
		valid    bool
	}{
		{value: "1MB", expected: 1 << 20, valid: true},
		{value: "500kb", expected: 500 << 10, valid: true},
		{value: "10GB", expected: 10 << 30, valid: true},
		{value: "-1", valid: false},
		{value: "many", valid: false},
	} {
		fixture := toPin
		require.NoError(t, c.Set(CoreSection, KeyMinFreeSpaceSize, fixture.value))
		size, err := c.MinFreeSpace()
		if !fixture.valid {
			assert.Errorf(t, err, "expected %q to be rejected", fixture.value)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, fixture.expected, size)
	}

	require.NoError(t, c.Set(CoreSection, KeyFsync, "false"))
	assert.False(t, c.Fsync())
	require.NoError(t, c.Unset(CoreSection, KeyFsync))
	assert.True(t, c.Fsync())
}

func TestLoadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Load(fs, testConfigPath)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	require.NoError(t, fs.MkdirAll("/repo", 0755))
	require.NoError(t, afero.WriteFile(fs, testConfigPath, []byte("[core]\nrepo_version=2\n"), 0644))
	_, err = Load(fs, testConfigPath)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	require.NoError(t, afero.WriteFile(fs, testConfigPath, []byte("[core]\nrepo_version=1\n[remote \"a/b\"]\nurl=x\n"), 0644))
	_, err = Load(fs, testConfigPath)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestRemotesConfigDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(testRemotesDir, 0755))
	require.NoError(t, afero.WriteFile(fs, testRemotesDir+"/foo.conf", []byte("[remote \"foo\"]\nurl=http://foo\n"), 0644))

	c, err := Init(fs, testConfigPath, "archive", RemotesDir(testRemotesDir))
	require.NoError(t, err)

	// read remotes from the config dir
	foo, err := c.Remote("foo")
	require.NoError(t, err)
	assert.Equal(t, "http://foo", foo.URL)
	assert.Equal(t, LocationConfigDir, foo.Location)

	// not added to the config dir by default
	require.NoError(t, c.AddRemote("bar", "http://bar", nil))
	assert.Equal(t, []string{"bar", "foo"}, remoteNames(c))
	exists, err := afero.Exists(fs, testRemotesDir+"/bar.conf")
	require.NoError(t, err)
	assert.False(t, exists)
	bar, err := c.Remote("bar")
	require.NoError(t, err)
	assert.Equal(t, LocationMainFile, bar.Location)

	// deleting a config dir remote deletes its file
	require.NoError(t, c.DeleteRemote("foo"))
	assert.Equal(t, []string{"bar"}, remoteNames(c))
	exists, err = afero.Exists(fs, testRemotesDir+"/foo.conf")
	require.NoError(t, err)
	assert.False(t, exists)

	// added to the config dir when add-remotes-config-dir is set
	newConfig, err := c.Copy()
	require.NoError(t, err)
	require.NoError(t, newConfig.Set(CoreSection, KeyAddRemotesConfigDir, "true"))
	require.NoError(t, c.WriteConfig(newConfig))
	require.NoError(t, c.Reload())
	require.NoError(t, c.AddRemote("baz", "http://baz", nil))
	assert.Equal(t, []string{"bar", "baz"}, remoteNames(c))
	exists, err = afero.Exists(fs, testRemotesDir+"/baz.conf")
	require.NoError(t, err)
	assert.True(t, exists)

	// remote options defined in the main file may be written
	bar, err = c.Remote("bar")
	require.NoError(t, err)
	assert.True(t, bar.GPGVerify)
	newConfig, err = c.Copy()
	require.NoError(t, err)
	require.NoError(t, newConfig.Set(RemoteSection("bar"), KeyGPGVerify, "false"))
	require.NoError(t, c.WriteConfig(newConfig))
	require.NoError(t, c.Reload())
	bar, err = c.Remote("bar")
	require.NoError(t, err)
	assert.False(t, bar.GPGVerify)

	// remote options defined in the config dir may not
	newConfig, err = c.Copy()
	require.NoError(t, err)
	require.NoError(t, newConfig.Set(RemoteSection("baz"), KeyGPGVerify, "false"))
	err = c.WriteConfig(newConfig)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteInConfigDir))
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
	baz, err := c.Remote("baz")
	require.NoError(t, err)
	assert.True(t, baz.GPGVerify)
}

func TestSystemRepoRemotes(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := Init(fs, testConfigPath, "bare", RemotesDir(testRemotesDir), SystemRepo(true))
	require.NoError(t, err)

	require.NoError(t, c.AddRemote("os", "http://os", map[string]string{KeyBranches: "stable;testing"}))
	remote, err := c.Remote("os")
	require.NoError(t, err)
	assert.Equal(t, LocationConfigDir, remote.Location)
	assert.Equal(t, testRemotesDir+"/os.conf", remote.File)
	assert.Equal(t, []string{"stable", "testing"}, remote.Branches)

	// the same remote defined twice
	require.NoError(t, afero.WriteFile(fs, testRemotesDir+"/dup.conf", []byte("[remote \"os\"]\nurl=http://other\n"), 0644))
	err = c.Reload()
	assert.True(t, errors.Is(err, ErrRemoteExists))
}

func TestAddRemoteErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := Init(fs, testConfigPath, "bare")
	require.NoError(t, err)

	require.NoError(t, c.AddRemote("origin", "http://origin", nil))
	assert.True(t, errors.Is(c.AddRemote("origin", "http://again", nil), ErrRemoteExists))
	assert.True(t, errors.Is(c.AddRemote("", "http://empty", nil), errors.ErrInvalidArgument))
	assert.True(t, errors.Is(c.AddRemote("foo/bar", "http://slash", nil), errors.ErrInvalidArgument))
	assert.True(t, errors.Is(c.AddRemote("gpg", "http://gpg", map[string]string{KeyGPGVerify: "maybe"}), ErrInvalidConfig))
	assert.True(t, errors.Is(c.DeleteRemote("nope"), ErrRemoteNotFound))
	_, err = c.Remote("nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestChangeRemote(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := Init(fs, testConfigPath, "bare", RemotesDir(testRemotesDir))
	require.NoError(t, err)

	// replace on a missing remote creates it
	require.NoError(t, c.ChangeRemote(ChangeReplace, "origin", "http://one", map[string]string{KeyBranches: "main", "tls-permissive": "true"}))
	origin, err := c.Remote("origin")
	require.NoError(t, err)
	assert.Equal(t, "http://one", origin.URL)
	assert.Equal(t, []string{"main"}, origin.Branches)

	// replace does not merge options
	require.NoError(t, c.ChangeRemote(ChangeReplace, "origin", "http://two", map[string]string{KeyGPGVerify: "false"}))
	origin, err = c.Remote("origin")
	require.NoError(t, err)
	assert.Equal(t, "http://two", origin.URL)
	assert.Empty(t, origin.Branches)
	assert.False(t, origin.GPGVerify)
	_, ok := origin.Option("tls-permissive")
	assert.False(t, ok)

	assert.True(t, errors.Is(c.ChangeRemote(ChangeAdd, "origin", "http://three", nil), ErrRemoteExists))
	require.NoError(t, c.ChangeRemote(ChangeAddIfNotExists, "origin", "http://three", nil))
	origin, err = c.Remote("origin")
	require.NoError(t, err)
	assert.Equal(t, "http://two", origin.URL)

	// replace-and-add relocates the remote to the config dir
	require.NoError(t, c.Set(CoreSection, KeyAddRemotesConfigDir, "true"))
	require.NoError(t, c.ChangeRemote(ChangeReplace, "origin", "http://four", nil))
	origin, err = c.Remote("origin")
	require.NoError(t, err)
	assert.Equal(t, LocationMainFile, origin.Location)

	require.NoError(t, c.ChangeRemote(ChangeReplaceAndAdd, "origin", "http://five", nil))
	origin, err = c.Remote("origin")
	require.NoError(t, err)
	assert.Equal(t, LocationConfigDir, origin.Location)
	assert.Equal(t, "http://five", origin.URL)
	assert.NotContains(t, c.Sections(), RemoteSection("origin"))

	// replace updates the config dir file in place
	require.NoError(t, c.ChangeRemote(ChangeReplace, "origin", "http://six", nil))
	data, err := afero.ReadFile(fs, testRemotesDir+"/origin.conf")
	require.NoError(t, err)
	assert.Contains(t, string(data), "http://six")

	require.NoError(t, c.ChangeRemote(ChangeDelete, "origin", "", nil))
	assert.True(t, errors.Is(c.ChangeRemote(ChangeDelete, "origin", "", nil), ErrRemoteNotFound))
	require.NoError(t, c.ChangeRemote(ChangeDeleteIfExists, "origin", "", nil))
	assert.Empty(t, c.Remotes())
}

func TestDeleteSharedRemoteFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(testRemotesDir, 0755))
	require.NoError(t, afero.WriteFile(fs, testRemotesDir+"/many.conf",
		[]byte("[remote \"a\"]\nurl=http://a\n\n[remote \"b\"]\nurl=http://b\n"), 0644))
	c, err := Init(fs, testConfigPath, "bare", RemotesDir(testRemotesDir))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, remoteNames(c))

	require.NoError(t, c.DeleteRemote("a"))
	assert.Equal(t, []string{"b"}, remoteNames(c))
	exists, err := afero.Exists(fs, testRemotesDir+"/many.conf")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.DeleteRemote("b"))
	exists, err = afero.Exists(fs, testRemotesDir+"/many.conf")
	require.NoError(t, err)
	assert.False(t, exists)
}

// remotesDirFailingFs refuses to create files in the remotes config directory
type remotesDirFailingFs struct {
	afero.Fs
}

func (f remotesDirFailingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_CREATE != 0 && strings.HasPrefix(name, testRemotesDir+"/") {
		return nil, os.ErrPermission
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestReplaceAndAddRestoresRemote(t *testing.T) {
	fs := remotesDirFailingFs{Fs: afero.NewMemMapFs()}
	c, err := Init(fs, testConfigPath, "bare", RemotesDir(testRemotesDir))
	require.NoError(t, err)
	require.NoError(t, c.AddRemote("origin", "http://one", map[string]string{KeyBranches: "main"}))
	require.NoError(t, c.Set(CoreSection, KeyAddRemotesConfigDir, "true"))

	checkOrigin := func(c *Config) {
		origin, err := c.Remote("origin")
		require.NoError(t, err)
		assert.Equal(t, "http://one", origin.URL)
		assert.Equal(t, []string{"main"}, origin.Branches)
		assert.Equal(t, LocationMainFile, origin.Location)
	}

	// the new definition cannot be written to the config dir
	err = c.ChangeRemote(ChangeReplaceAndAdd, "origin", "http://two", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteConfig))
	checkOrigin(c)

	err = c.ChangeRemote(ChangeReplaceAndAdd, "origin", "http://three", map[string]string{KeyGPGVerify: "maybe"})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	checkOrigin(c)

	reloaded, err := Load(fs, testConfigPath, RemotesDir(testRemotesDir))
	require.NoError(t, err)
	checkOrigin(reloaded)
}

func TestCopyErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := Init(fs, testConfigPath, "bare")
	require.NoError(t, err)

	detached, err := c.Copy()
	require.NoError(t, err)
	require.NoError(t, detached.Set(RemoteSection("foo/bar"), KeyURL, "http://slash"))
	_, err = detached.Copy()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	// the source configuration is untouched
	assert.NotContains(t, c.Sections(), RemoteSection("foo/bar"))
}
