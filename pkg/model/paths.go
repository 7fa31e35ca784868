package model

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Repository layout
const (
	ObjectsDir     = "objects"
	RefsHeadsDir   = "refs/heads"
	RefsRemotesDir = "refs/remotes"
	ConfigFile     = "config"
	LockFile       = ".lock"
	StateDir       = "state"
)

// Sysroot layout
const (
	SysrootRepoDir    = "ostree/repo"
	SysrootDeployRoot = "ostree/deploy"
	SysrootLockFile   = "ostree/lock"
	BootDir           = "boot"
	BootLoaderPointer = "boot/loader"
	DeploymentsFile   = "deployments.yaml"
	RemotesConfigDir  = "etc/ostree/remotes.d"
	RemoteConfigExt   = ".conf"
	originExt         = ".origin"
)

// ObjectPath returns the storage key of an object: objects/ab/cdef....ext
func ObjectPath(checksum string, t ObjectType, archive bool) string {
	return path.Join(ObjectsDir, checksum[:2], checksum[2:]+t.Extension(archive))
}

// ParseObjectPath returns the checksum and type of the object stored at some key
func ParseObjectPath(key string) (string, ObjectType, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != ObjectsDir || len(parts[1]) != 2 {
		return "", 0, ErrInvalidObjectPath.WrapMessage("%q", key)
	}
	name := parts[2]
	dot := strings.IndexByte(name, '.')
	if dot < 0 {
		return "", 0, ErrInvalidObjectPath.WrapMessage("%q", key)
	}
	checksum := parts[1] + name[:dot]
	if err := ValidateChecksum(checksum); err != nil {
		return "", 0, ErrInvalidObjectPath.Wrap(err)
	}
	ext := name[dot+1:]
	if ext == "filez" {
		return checksum, ObjectFile, nil
	}
	t, err := ParseObjectType(ext)
	if err != nil {
		return "", 0, ErrInvalidObjectPath.Wrap(err)
	}
	return checksum, t, nil
}

// RefPath returns the storage key of a ref, possibly scoped by a remote
func RefPath(remote, ref string) string {
	if remote == "" {
		return path.Join(RefsHeadsDir, ref)
	}
	return path.Join(RefsRemotesDir, remote, ref)
}

// RefFromPath is the inverse of RefPath
func RefFromPath(key string) (Refspec, bool) {
	switch {
	case strings.HasPrefix(key, RefsHeadsDir+"/"):
		return Refspec{Ref: strings.TrimPrefix(key, RefsHeadsDir+"/")}, true
	case strings.HasPrefix(key, RefsRemotesDir+"/"):
		rest := strings.TrimPrefix(key, RefsRemotesDir+"/")
		i := strings.IndexByte(rest, '/')
		if i <= 0 || i == len(rest)-1 {
			return Refspec{}, false
		}
		return Refspec{Remote: rest[:i], Ref: rest[i+1:]}, true
	default:
		return Refspec{}, false
	}
}

// RemoteConfigFile is the name of a remote definition in a remotes config directory
func RemoteConfigFile(remote string) string {
	return remote + RemoteConfigExt
}

// OsDir is the root directory of some operating system in a sysroot
func OsDir(osname string) string {
	return path.Join(SysrootDeployRoot, osname)
}

// OsVarDir is the state directory shared by deployments of some operating system
func OsVarDir(osname string) string {
	return path.Join(OsDir(osname), "var")
}

// OsDeployDir holds the checked out deployments of some operating system
func OsDeployDir(osname string) string {
	return path.Join(OsDir(osname), "deploy")
}

// DeploymentDir is the directory of a checked out deployment
func DeploymentDir(osname, checksum string, serial int) string {
	return path.Join(OsDeployDir(osname), checksum+"."+strconv.Itoa(serial))
}

// OriginPath is the origin file of a deployment
func OriginPath(osname, checksum string, serial int) string {
	return DeploymentDir(osname, checksum, serial) + originExt
}

// ParseDeploymentDirName splits the base name of a deployment directory into checksum and serial
func ParseDeploymentDirName(name string) (string, int, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", 0, false
	}
	if ValidateChecksum(name[:i]) != nil {
		return "", 0, false
	}
	serial, err := strconv.Atoi(name[i+1:])
	if err != nil || serial < 0 {
		return "", 0, false
	}
	return name[:i], serial, true
}

// LoaderDir is the directory holding the deployment list for some boot version
func LoaderDir(bootVersion int) string {
	return path.Join(BootDir, fmt.Sprintf("loader.%d", bootVersion))
}
