package sysroot

import (
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	blake2b "github.com/minio/blake2b-simd"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/sysroot/status"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	etcDir        = "etc"
	defaultEtcDir = "usr/etc"
)

type etcChange uint8

const (
	etcAdded etcChange = iota
	etcModified
	etcRemoved
)

func (c etcChange) String() string {
	switch c {
	case etcAdded:
		return "added"
	case etcModified:
		return "modified"
	default:
		return "removed"
	}
}

// etcDiff is the set of local changes made to the configuration of a deployment, by relative path
type etcDiff map[string]etcChange

func (d etcDiff) sorted() []string {
	paths := make([]string, 0, len(d))
	for p := range d {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func lstat(fs afero.Fs, name string) (os.FileInfo, error) {
	if lstater, ok := fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(name)
		return info, err
	}
	return fs.Stat(name)
}

func readlink(fs afero.Fs, name string) (string, error) {
	reader, ok := fs.(afero.LinkReader)
	if !ok {
		return "", errors.ErrNotSupported.WrapMessage("symbolic links are not supported by %s", fs.Name())
	}
	return reader.ReadlinkIfPossible(name)
}

func symlink(fs afero.Fs, target, name string) error {
	linker, ok := fs.(afero.Linker)
	if !ok {
		return errors.ErrNotSupported.WrapMessage("symbolic links are not supported by %s", fs.Name())
	}
	return linker.SymlinkIfPossible(target, name)
}

// walkRelative visits a tree, with paths relative to its root. The root itself is not visited.
func walkRelative(fs afero.Fs, root string, fn func(rel string, info os.FileInfo) error) error {
	return afero.Walk(fs, root, func(pth string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, pth)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		return fn(filepath.ToSlash(rel), info)
	})
}

// prepareEtc populates the configuration of a new deployment from its defaults, unless the tree ships one
func prepareEtc(fs afero.Fs, root string) error {
	defaults := path.Join(root, defaultEtcDir)
	if exists, _ := afero.DirExists(fs, defaults); !exists {
		return nil
	}
	etc := path.Join(root, etcDir)
	if _, err := lstat(fs, etc); err == nil {
		return nil
	}
	info, err := fs.Stat(defaults)
	if err != nil {
		return errors.ErrIO.Wrap(err)
	}
	if err = fs.MkdirAll(etc, info.Mode().Perm()); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	return walkRelative(fs, defaults, func(rel string, info os.FileInfo) error {
		return copyEntry(fs, path.Join(defaults, rel), path.Join(etc, rel), info)
	})
}

// diffEtc compares the configuration of a deployment with its defaults
func diffEtc(fs afero.Fs, defaults, etc string) (etcDiff, error) {
	diff := make(etcDiff)
	err := walkRelative(fs, etc, func(rel string, info os.FileInfo) error {
		orig, err := lstat(fs, path.Join(defaults, rel))
		if err != nil {
			if os.IsNotExist(err) {
				diff[rel] = etcAdded
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return err
		}
		same, err := sameEntry(fs, path.Join(defaults, rel), orig, path.Join(etc, rel), info)
		if err != nil {
			return err
		}
		switch {
		case same:
		case info.IsDir() && !orig.IsDir():
			// a whole new subtree
			diff[rel] = etcAdded
			return filepath.SkipDir
		default:
			diff[rel] = etcModified
		}
		return nil
	})
	if err != nil {
		return nil, errors.ErrIO.Wrap(err)
	}
	err = walkRelative(fs, defaults, func(rel string, info os.FileInfo) error {
		if _, changed := diff[rel]; changed {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if _, err := lstat(fs, path.Join(etc, rel)); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
			diff[rel] = etcRemoved
			if info.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.ErrIO.Wrap(err)
	}
	return diff, nil
}

func sameEntry(fs afero.Fs, a string, ainfo os.FileInfo, b string, binfo os.FileInfo) (bool, error) {
	if ainfo.Mode().Type() != binfo.Mode().Type() || ainfo.Mode().Perm() != binfo.Mode().Perm() {
		return false, nil
	}
	switch {
	case ainfo.IsDir():
		return true, nil
	case ainfo.Mode()&os.ModeSymlink != 0:
		atarget, err := readlink(fs, a)
		if err != nil {
			return false, err
		}
		btarget, err := readlink(fs, b)
		if err != nil {
			return false, err
		}
		return atarget == btarget, nil
	default:
		if ainfo.Size() != binfo.Size() {
			return false, nil
		}
		ha, hb := blake2b.New256(), blake2b.New256()
		if err := hashFile(fs, a, ha); err != nil {
			return false, err
		}
		if err := hashFile(fs, b, hb); err != nil {
			return false, err
		}
		return bytes.Equal(ha.Sum(nil), hb.Sum(nil)), nil
	}
}

// mergeEtc carries the local configuration changes of the merge deployment over to a new deployment.
//
// Removed entries are removed, added and modified entries replace those of the new deployment.
func (s *Sysroot) mergeEtc(mergeRoot, newRoot string) error {
	defaults := path.Join(mergeRoot, defaultEtcDir)
	etc := path.Join(mergeRoot, etcDir)
	if exists, _ := afero.DirExists(s.fs, defaults); !exists {
		s.l.Debug("no default configuration in merge deployment", zap.String("deployment", mergeRoot))
		return nil
	}
	if exists, _ := afero.DirExists(s.fs, etc); !exists {
		return nil
	}
	diff, err := diffEtc(s.fs, defaults, etc)
	if err != nil {
		return err
	}

	target := path.Join(newRoot, etcDir)
	if err = s.fs.MkdirAll(target, 0755); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	for _, rel := range diff.sorted() {
		change := diff[rel]
		dest := path.Join(target, rel)
		s.l.Debug("merging configuration change", zap.String("path", rel), zap.Stringer("change", change))
		if change == etcRemoved {
			if err = s.fs.RemoveAll(dest); err != nil {
				return errors.ErrIO.Wrap(err)
			}
			continue
		}
		src := path.Join(etc, rel)
		info, err := lstat(s.fs, src)
		if err != nil {
			return errors.ErrIO.Wrap(err)
		}
		if err = mergeEntry(s.fs, src, dest, info); err != nil {
			return err
		}
		if info.IsDir() && change == etcAdded {
			if err = copyTree(s.fs, src, dest); err != nil {
				return err
			}
		}
	}
	s.l.Info("merged configuration", zap.String("from", mergeRoot), zap.String("to", newRoot), zap.Int("changes", len(diff)))
	return nil
}

// mergeEntry replaces dest by src, checking that directories are not replaced by files and conversely
func mergeEntry(fs afero.Fs, src, dest string, info os.FileInfo) error {
	existing, err := lstat(fs, dest)
	switch {
	case err == nil && existing.IsDir() != info.IsDir():
		return status.ErrEtcMerge.WrapMessage("%s: directory conflicts with non-directory", dest)
	case err == nil && info.IsDir():
		if err = fs.Chmod(dest, info.Mode().Perm()); err != nil {
			return errors.ErrIO.Wrap(err)
		}
		return nil
	case err == nil:
		if err = fs.Remove(dest); err != nil {
			return errors.ErrIO.Wrap(err)
		}
	case !os.IsNotExist(err):
		return errors.ErrIO.Wrap(err)
	}
	if err = fs.MkdirAll(path.Dir(dest), 0755); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	return copyEntry(fs, src, dest, info)
}

func copyTree(fs afero.Fs, src, dest string) error {
	return walkRelative(fs, src, func(rel string, info os.FileInfo) error {
		return copyEntry(fs, path.Join(src, rel), path.Join(dest, rel), info)
	})
}

// copyEntry copies a single file, symbolic link or directory, without the content of directories
func copyEntry(fs afero.Fs, src, dest string, info os.FileInfo) error {
	switch {
	case info.IsDir():
		if err := fs.MkdirAll(dest, info.Mode().Perm()); err != nil {
			return errors.ErrIO.Wrap(err)
		}
		if err := fs.Chmod(dest, info.Mode().Perm()); err != nil {
			return errors.ErrIO.Wrap(err)
		}
		return nil
	case info.Mode()&os.ModeSymlink != 0:
		target, err := readlink(fs, src)
		if err != nil {
			return err
		}
		return symlink(fs, target, dest)
	case info.Mode().IsRegular():
		return copyFile(fs, src, dest, info.Mode().Perm())
	default:
		return errors.ErrNotSupported.WrapMessage("%s: unsupported file type %v", src, info.Mode().Type())
	}
}

func copyFile(fs afero.Fs, src, dest string, perm os.FileMode) (err error) {
	in, err := fs.Open(src)
	if err != nil {
		return errors.ErrIO.Wrap(err)
	}
	defer func() {
		_ = in.Close()
	}()
	out, err := fs.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errors.ErrIO.Wrap(err)
	}
	defer func() {
		if erc := out.Close(); erc != nil && err == nil {
			err = errors.ErrIO.Wrap(erc)
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	if err = fs.Chmod(dest, perm); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	return nil
}
