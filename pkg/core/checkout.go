package core

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/spf13/afero"
	"github.com/zeebo/errs"
	"golang.org/x/sync/errgroup"
)

// OverwriteMode tells how a checkout handles existing files
type OverwriteMode uint8

// Overwrite modes
const (
	// OverwriteNone fails on any existing file
	OverwriteNone OverwriteMode = iota
	// OverwriteUnion replaces existing files
	OverwriteUnion
	// OverwriteAddFiles keeps existing files
	OverwriteAddFiles
)

const defaultCheckoutParallel = 8

// CheckoutOptions tune a checkout
type CheckoutOptions struct {
	Overwrite OverwriteMode

	// Ownership applies the uid and gid of objects
	Ownership bool

	// Parallel is the number of files of a directory written concurrently
	Parallel int
}

// Checkout materializes the tree of a commit at dest in fs
func (r *Repo) Checkout(ctx context.Context, commitKey cafs.Key, fs afero.Fs, dest string, opts CheckoutOptions) error {
	commit, err := r.objects.LoadCommit(ctx, commitKey)
	if err != nil {
		return err
	}
	treeKey, metaKey, err := rootKeys(commit)
	if err != nil {
		return err
	}
	return r.CheckoutTree(ctx, Root{Tree: treeKey, Meta: metaKey}, fs, dest, opts)
}

// CheckoutTree materializes a tree at dest in fs
func (r *Repo) CheckoutTree(ctx context.Context, root Root, fs afero.Fs, dest string, opts CheckoutOptions) error {
	if opts.Parallel <= 0 {
		opts.Parallel = defaultCheckoutParallel
	}
	c := &checkout{repo: r, fs: fs, opts: opts}
	return c.dir(ctx, root.Tree, root.Meta, dest)
}

type checkout struct {
	repo *Repo
	fs   afero.Fs
	opts CheckoutOptions
}

func (c *checkout) dir(ctx context.Context, treeKey, metaKey cafs.Key, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	meta, err := c.repo.objects.LoadDirMeta(ctx, metaKey)
	if err != nil {
		return err
	}
	dirtree, err := c.repo.objects.LoadDirTree(ctx, treeKey)
	if err != nil {
		return err
	}
	if err := c.fs.MkdirAll(dest, meta.Perm()|0700); err != nil {
		return errors.ErrIO.Wrap(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallel)
	for _, toPin := range dirtree.Files {
		entry := toPin
		g.Go(func() error {
			key, err := cafs.KeyFromString(entry.Checksum)
			if err != nil {
				return errors.ErrCorruption.Wrap(err)
			}
			return c.file(gctx, key, path.Join(dest, entry.Name))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, d := range dirtree.Dirs {
		subTree, err := cafs.KeyFromString(d.TreeChecksum)
		if err != nil {
			return errors.ErrCorruption.Wrap(err)
		}
		subMeta, err := cafs.KeyFromString(d.MetaChecksum)
		if err != nil {
			return errors.ErrCorruption.Wrap(err)
		}
		if err := c.dir(ctx, subTree, subMeta, path.Join(dest, d.Name)); err != nil {
			return err
		}
	}

	// permissions are applied last, so read-only directories may be filled
	if err := c.fs.Chmod(dest, meta.Perm()); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	if c.opts.Ownership {
		if err := c.fs.Chown(dest, int(meta.UID), int(meta.GID)); err != nil {
			return errors.ErrIO.Wrap(err)
		}
	}
	return nil
}

// prepareTarget tells whether the file at target must be written, removing it when it is replaced
func (c *checkout) prepareTarget(target string) (bool, error) {
	info, err := lstatIfPossible(c.fs, target)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.ErrIO.Wrap(err)
	}
	switch c.opts.Overwrite {
	case OverwriteAddFiles:
		return false, nil
	case OverwriteUnion:
		if info.IsDir() {
			return false, status.ErrCheckoutExists.WrapMessage("directory %q can't be replaced by a file", target)
		}
		if err := c.fs.Remove(target); err != nil {
			return false, errors.ErrIO.Wrap(err)
		}
		return true, nil
	default:
		return false, status.ErrCheckoutExists.WrapMessage("%q", target)
	}
}

func (c *checkout) file(ctx context.Context, key cafs.Key, target string) (err error) {
	write, err := c.prepareTarget(target)
	if err != nil || !write {
		return err
	}
	header, content, err := c.repo.objects.LoadFile(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		err = errs.Combine(err, content.Close())
	}()

	if header.IsSymlink() {
		linker, ok := c.fs.(afero.Linker)
		if !ok {
			return errors.ErrNotSupported.WrapMessage("symlinks are not supported by this filesystem: %q", target)
		}
		if err := linker.SymlinkIfPossible(header.SymlinkTarget, target); err != nil {
			return errors.ErrIO.Wrap(err)
		}
		return c.chown(target, header, true)
	}

	f, err := c.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, header.Perm())
	if err != nil {
		return errors.ErrIO.Wrap(err)
	}
	_, err = io.Copy(f, content)
	if erc := f.Close(); err == nil {
		err = erc
	}
	if err != nil {
		return errors.ErrIO.Wrap(err)
	}
	if err := c.fs.Chmod(target, header.Perm()); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	return c.chown(target, header, false)
}

func (c *checkout) chown(target string, header model.FileHeader, symlink bool) error {
	if !c.opts.Ownership {
		return nil
	}
	if symlink {
		// afero does not expose lchown
		return nil
	}
	if err := c.fs.Chown(target, int(header.UID), int(header.GID)); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	return nil
}

func lstatIfPossible(fs afero.Fs, name string) (os.FileInfo, error) {
	if lstater, ok := fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(name)
		return info, err
	}
	return fs.Stat(name)
}
