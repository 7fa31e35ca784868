package core

import (
	"context"
	"io"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
)

// LoadCommit returns a commit
func (r *Repo) LoadCommit(ctx context.Context, key cafs.Key) (*model.Commit, error) {
	return r.objects.LoadCommit(ctx, key)
}

// LoadDirTree returns a dirtree
func (r *Repo) LoadDirTree(ctx context.Context, key cafs.Key) (*model.DirTree, error) {
	return r.objects.LoadDirTree(ctx, key)
}

// LoadDirMeta returns a dirmeta
func (r *Repo) LoadDirMeta(ctx context.Context, key cafs.Key) (*model.DirMeta, error) {
	return r.objects.LoadDirMeta(ctx, key)
}

// LoadFile returns the header of a file object and a reader for its content
func (r *Repo) LoadFile(ctx context.Context, key cafs.Key) (model.FileHeader, io.ReadCloser, error) {
	return r.objects.LoadFile(ctx, key)
}

// HasObject tells if an object is stored
func (r *Repo) HasObject(ctx context.Context, key cafs.Key, t model.ObjectType) (bool, error) {
	return r.objects.Has(ctx, key, t)
}

// ReadCommitSizes returns the size table of a commit, or nil if the commit has none
func (r *Repo) ReadCommitSizes(ctx context.Context, key cafs.Key) ([]cafs.SizeEntry, error) {
	commit, err := r.objects.LoadCommit(ctx, key)
	if err != nil {
		return nil, err
	}
	data, ok := commit.Metadata[model.MetadataSizes]
	if !ok {
		return nil, nil
	}
	entries, err := cafs.DecodeSizes(data)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []cafs.SizeEntry{}
	}
	return entries, nil
}

// Reachable is a set of objects
type Reachable map[cafs.ObjectRef]struct{}

// Has some object
func (s Reachable) Has(key cafs.Key, t model.ObjectType) bool {
	_, ok := s[cafs.ObjectRef{Key: key, Type: t}]
	return ok
}

func (s Reachable) add(key cafs.Key, t model.ObjectType) bool {
	ref := cafs.ObjectRef{Key: key, Type: t}
	if _, ok := s[ref]; ok {
		return false
	}
	s[ref] = struct{}{}
	return true
}

// traverser walks the objects reachable from commits
type traverser struct {
	repo     *Repo
	seen     Reachable
	missing  []cafs.ObjectRef // missing objects, when tolerated
	tolerant bool
}

// TraverseCommit returns the objects reachable from a commit: the commit itself, its trees,
// files, and those of its ancestors up to maxDepth generations. A negative maxDepth walks
// the whole history.
//
// Missing ancestors end the walk, as in partial histories. Missing trees or files are errors.
func (r *Repo) TraverseCommit(ctx context.Context, key cafs.Key, maxDepth int) (Reachable, error) {
	t := &traverser{repo: r, seen: make(Reachable)}
	if err := t.commit(ctx, key, maxDepth); err != nil {
		return nil, err
	}
	return t.seen, nil
}

func (t *traverser) commit(ctx context.Context, key cafs.Key, maxDepth int) error {
	for depth := 0; maxDepth < 0 || depth <= maxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !t.seen.add(key, model.ObjectCommit) {
			return nil
		}
		commit, err := t.repo.objects.LoadCommit(ctx, key)
		if err != nil {
			if depth > 0 && errors.Is(err, cafs.ErrObjectNotFound) {
				delete(t.seen, cafs.ObjectRef{Key: key, Type: model.ObjectCommit})
				return nil
			}
			if depth == 0 && t.tolerant && errors.Is(err, cafs.ErrObjectNotFound) {
				t.missing = append(t.missing, cafs.ObjectRef{Key: key, Type: model.ObjectCommit})
				return nil
			}
			return err
		}
		treeKey, metaKey, err := rootKeys(commit)
		if err != nil {
			return err
		}
		if err = t.tree(ctx, treeKey, metaKey); err != nil {
			return err
		}
		if commit.Parent == "" {
			return nil
		}
		if key, err = cafs.KeyFromString(commit.Parent); err != nil {
			return errors.ErrCorruption.Wrap(err)
		}
	}
	return nil
}

func rootKeys(commit *model.Commit) (cafs.Key, cafs.Key, error) {
	treeKey, err := cafs.KeyFromString(commit.RootTree)
	if err != nil {
		return cafs.Key{}, cafs.Key{}, errors.ErrCorruption.Wrap(err)
	}
	metaKey, err := cafs.KeyFromString(commit.RootMeta)
	if err != nil {
		return cafs.Key{}, cafs.Key{}, errors.ErrCorruption.Wrap(err)
	}
	return treeKey, metaKey, nil
}

func (t *traverser) checkPresent(ctx context.Context, key cafs.Key, typ model.ObjectType) error {
	has, err := t.repo.objects.Has(ctx, key, typ)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	ref := cafs.ObjectRef{Key: key, Type: typ}
	if t.tolerant {
		t.missing = append(t.missing, ref)
		return nil
	}
	return status.ErrMissingObject.WrapMessage("%v", ref)
}

func (t *traverser) tree(ctx context.Context, treeKey, metaKey cafs.Key) error {
	if t.seen.add(metaKey, model.ObjectDirMeta) {
		if err := t.checkPresent(ctx, metaKey, model.ObjectDirMeta); err != nil {
			return err
		}
	}
	if !t.seen.add(treeKey, model.ObjectDirTree) {
		return nil
	}
	dirtree, err := t.repo.objects.LoadDirTree(ctx, treeKey)
	if err != nil {
		if errors.Is(err, cafs.ErrObjectNotFound) {
			ref := cafs.ObjectRef{Key: treeKey, Type: model.ObjectDirTree}
			if t.tolerant {
				t.missing = append(t.missing, ref)
				return nil
			}
			return status.ErrMissingObject.WrapMessage("%v", ref)
		}
		return err
	}
	for _, f := range dirtree.Files {
		key, err := cafs.KeyFromString(f.Checksum)
		if err != nil {
			return errors.ErrCorruption.Wrap(err)
		}
		if t.seen.add(key, model.ObjectFile) {
			if err := t.checkPresent(ctx, key, model.ObjectFile); err != nil {
				return err
			}
		}
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
		if err := t.tree(ctx, subTree, subMeta); err != nil {
			return err
		}
	}
	return nil
}
