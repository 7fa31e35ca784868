package mtree

import (
	"context"
	"os"
	"path"
	"sort"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/spf13/afero"
	"github.com/zeebo/errs"
)

// ImportDirectory recursively writes the content of root in fs and merges it into t.
//
// Entries are visited in sorted order. Regular files and symlinks become file objects;
// the metadata of each directory becomes a dirmeta.
func (t *MutableTree) ImportDirectory(ctx context.Context, w ObjectWriter, fs afero.Fs, root string, modifier *Modifier) error {
	info, err := lstat(fs, root)
	if err != nil {
		return errors.ErrIO.Wrap(err)
	}
	if !info.IsDir() {
		return ErrNotDirectory.WrapMessage("%q", root)
	}
	im := &importer{w: w, fs: fs, modifier: modifier}
	return im.importDir(ctx, t, root, "/", info)
}

type importer struct {
	w        ObjectWriter
	fs       afero.Fs
	modifier *Modifier
}

func lstat(fs afero.Fs, name string) (os.FileInfo, error) {
	if lstater, ok := fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(name)
		return info, err
	}
	return fs.Stat(name)
}

func (im *importer) dirMeta(source string, info os.FileInfo) (*model.DirMeta, error) {
	meta := &model.DirMeta{Mode: model.ModeDir | uint32(info.Mode().Perm())}
	if im.modifier.Has(CanonicalPermissions) {
		meta.Mode = model.ModeDir | 0755
		return meta, nil
	}
	meta.UID, meta.GID = owner(info)
	xattrs, err := im.modifier.xattrs(source)
	if err != nil {
		return nil, err
	}
	meta.Xattrs = xattrs
	return meta, nil
}

func (im *importer) fileHeader(source string, info os.FileInfo) (model.FileHeader, error) {
	var header model.FileHeader
	if info.Mode()&os.ModeSymlink != 0 {
		reader, ok := im.fs.(afero.LinkReader)
		if !ok {
			return header, ErrUnsupportedFileType.WrapMessage("symlinks are not supported by this filesystem: %q", source)
		}
		target, err := reader.ReadlinkIfPossible(source)
		if err != nil {
			return header, errors.ErrIO.Wrap(err)
		}
		header = model.SymlinkHeader(target, 0, 0)
	} else {
		perm := info.Mode().Perm()
		if im.modifier.Has(CanonicalPermissions) {
			perm = 0644
			if info.Mode().Perm()&0111 != 0 {
				perm = 0755
			}
		}
		header = model.RegularFileHeader(perm, 0, 0)
	}
	if im.modifier.Has(CanonicalPermissions) {
		return header, nil
	}
	header.UID, header.GID = owner(info)
	xattrs, err := im.modifier.xattrs(source)
	if err != nil {
		return header, err
	}
	header.Xattrs = xattrs
	return header, nil
}

func (im *importer) importDir(ctx context.Context, t *MutableTree, source, rel string, info os.FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	meta, err := im.dirMeta(source, info)
	if err != nil {
		return err
	}
	if err = t.SetMetadata(ctx, im.w, meta); err != nil {
		return err
	}

	entries, err := afero.ReadDir(im.fs, source)
	if err != nil {
		return errors.ErrIO.Wrap(err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		childSource := path.Join(source, name)
		childRel := path.Join(rel, name)

		childInfo, err := lstat(im.fs, childSource)
		if err != nil {
			return errors.ErrIO.Wrap(err)
		}
		if im.modifier.filter(childRel, childInfo) == FilterSkip {
			continue
		}

		switch mode := childInfo.Mode(); {
		case mode.IsDir():
			sub, err := t.EnsureDir(name)
			if err != nil {
				return err
			}
			if err = im.importDir(ctx, sub, childSource, childRel, childInfo); err != nil {
				return err
			}
		case mode.IsRegular() || mode&os.ModeSymlink != 0:
			checksum, err := im.importFile(ctx, childSource, childInfo)
			if err != nil {
				return err
			}
			if err = t.ReplaceFile(name, checksum); err != nil {
				return err
			}
		default:
			return ErrUnsupportedFileType.WrapMessage("%q (%v)", childRel, mode.Type())
		}
	}
	return nil
}

func (im *importer) importFile(ctx context.Context, source string, info os.FileInfo) (checksum string, err error) {
	header, err := im.fileHeader(source, info)
	if err != nil {
		return "", err
	}
	if header.IsSymlink() {
		res, err := im.w.WriteFile(ctx, header, nil, nil)
		if err != nil {
			return "", err
		}
		return res.Key.String(), nil
	}

	f, err := im.fs.Open(source)
	if err != nil {
		return "", errors.ErrIO.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, f.Close())
	}()
	res, err := im.w.WriteFile(ctx, header, f, nil)
	if err != nil {
		return "", err
	}
	return res.Key.String(), nil
}
