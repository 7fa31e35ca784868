package mtree

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/model"
)

// ObjectWriter stores objects. It is implemented by cafs.Store and by repository transactions.
type ObjectWriter interface {
	WriteFile(context.Context, model.FileHeader, io.Reader, *cafs.Key) (cafs.WriteResult, error)
	WriteMetadata(context.Context, model.MetadataObject, *cafs.Key) (cafs.WriteResult, error)
}

// MutableTree is an in-memory directory being built
type MutableTree struct {
	parent           *MutableTree
	name             string
	metaChecksum     string
	contentsChecksum string
	files            map[string]string
	subdirs          map[string]*MutableTree
}

// New empty tree
func New() *MutableTree {
	return &MutableTree{
		files:   make(map[string]string),
		subdirs: make(map[string]*MutableTree),
	}
}

// NewFromCommit returns a tree whose root reflects an existing dirtree and dirmeta.
//
// Subdirectories are loaded eagerly.
func NewFromCommit(ctx context.Context, store *cafs.Store, commit *model.Commit) (*MutableTree, error) {
	t := New()
	if err := t.load(ctx, store, commit.RootTree, commit.RootMeta); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *MutableTree) load(ctx context.Context, store *cafs.Store, treeChecksum, metaChecksum string) error {
	key, err := cafs.KeyFromString(treeChecksum)
	if err != nil {
		return err
	}
	dirtree, err := store.LoadDirTree(ctx, key)
	if err != nil {
		return err
	}
	t.metaChecksum = metaChecksum
	for _, f := range dirtree.Files {
		t.files[f.Name] = f.Checksum
	}
	for _, d := range dirtree.Dirs {
		sub := t.newSubdir(d.Name)
		if err := sub.load(ctx, store, d.TreeChecksum, d.MetaChecksum); err != nil {
			return err
		}
	}
	t.contentsChecksum = treeChecksum
	return nil
}

func (t *MutableTree) newSubdir(name string) *MutableTree {
	sub := New()
	sub.parent = t
	sub.name = name
	t.subdirs[name] = sub
	return sub
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return ErrInvalidName.WrapMessage("%q", name)
	}
	return nil
}

// invalidate the cached contents checksum of this directory and all its parents
func (t *MutableTree) invalidate() {
	for p := t; p != nil && p.contentsChecksum != ""; p = p.parent {
		p.contentsChecksum = ""
	}
}

// Name of this directory in its parent
func (t *MutableTree) Name() string {
	return t.name
}

// MetadataChecksum of the dirmeta of this directory
func (t *MutableTree) MetadataChecksum() string {
	return t.metaChecksum
}

// SetMetadataChecksum sets the dirmeta of this directory
func (t *MutableTree) SetMetadataChecksum(checksum string) {
	if t.metaChecksum != checksum {
		// the parent dirtree refers to our dirmeta
		if t.parent != nil {
			t.parent.invalidate()
		}
		t.metaChecksum = checksum
	}
}

// SetMetadata writes a dirmeta and sets it for this directory
func (t *MutableTree) SetMetadata(ctx context.Context, w ObjectWriter, meta *model.DirMeta) error {
	res, err := w.WriteMetadata(ctx, meta, nil)
	if err != nil {
		return err
	}
	t.SetMetadataChecksum(res.Key.String())
	return nil
}

// ContentsChecksum is the checksum of the dirtree of this directory,
// or the empty string when it has changed since it was last flushed
func (t *MutableTree) ContentsChecksum() string {
	return t.contentsChecksum
}

// SetContentsChecksum declares the dirtree this directory is known to match
func (t *MutableTree) SetContentsChecksum(checksum string) {
	if t.parent != nil && t.contentsChecksum != checksum {
		t.parent.invalidate()
	}
	t.contentsChecksum = checksum
}

// ReplaceFile adds or replaces a file. It fails if name is a directory.
func (t *MutableTree) ReplaceFile(name, checksum string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := model.ValidateChecksum(checksum); err != nil {
		return err
	}
	if _, isDir := t.subdirs[name]; isDir {
		return ErrIsDirectory.WrapMessage("%q", name)
	}
	if t.files[name] != checksum {
		t.invalidate()
		t.files[name] = checksum
	}
	return nil
}

// EnsureDir returns the subdirectory name, creating it if needed. It fails if name is a file.
func (t *MutableTree) EnsureDir(name string) (*MutableTree, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, isFile := t.files[name]; isFile {
		return nil, ErrNotDirectory.WrapMessage("%q", name)
	}
	if sub, ok := t.subdirs[name]; ok {
		return sub, nil
	}
	t.invalidate()
	return t.newSubdir(name), nil
}

// Lookup returns either the checksum of a file or a subdirectory
func (t *MutableTree) Lookup(name string) (string, *MutableTree, error) {
	if checksum, ok := t.files[name]; ok {
		return checksum, nil, nil
	}
	if sub, ok := t.subdirs[name]; ok {
		return "", sub, nil
	}
	return "", nil, ErrNoSuchEntry.WrapMessage("%q", name)
}

// Remove a file or directory
func (t *MutableTree) Remove(name string, allowMissing bool) error {
	if _, ok := t.files[name]; ok {
		delete(t.files, name)
		t.invalidate()
		return nil
	}
	if sub, ok := t.subdirs[name]; ok {
		sub.parent = nil
		delete(t.subdirs, name)
		t.invalidate()
		return nil
	}
	if allowMissing {
		return nil
	}
	return ErrNoSuchEntry.WrapMessage("%q", name)
}

// EnsureParentDirs creates all the directories leading to the last element of path,
// using metaChecksum as the dirmeta of created directories, and returns the parent directory
func (t *MutableTree) EnsureParentDirs(path []string, metaChecksum string) (*MutableTree, error) {
	cur := t
	for i := 0; i < len(path)-1; i++ {
		existed := cur.subdirs[path[i]] != nil
		next, err := cur.EnsureDir(path[i])
		if err != nil {
			return nil, err
		}
		if !existed {
			next.metaChecksum = metaChecksum
		}
		cur = next
	}
	return cur, nil
}

// Walk returns the subdirectory found by following path, starting at index start
func (t *MutableTree) Walk(path []string, start int) (*MutableTree, error) {
	cur := t
	for i := start; i < len(path); i++ {
		next, ok := cur.subdirs[path[i]]
		if !ok {
			return nil, ErrNoSuchEntry.WrapMessage("%q", strings.Join(path[:i+1], "/"))
		}
		cur = next
	}
	return cur, nil
}

// Files maps names to file checksums
func (t *MutableTree) Files() map[string]string {
	files := make(map[string]string, len(t.files))
	for k, v := range t.files {
		files[k] = v
	}
	return files
}

// Subdirs maps names to subdirectories
func (t *MutableTree) Subdirs() map[string]*MutableTree {
	subdirs := make(map[string]*MutableTree, len(t.subdirs))
	for k, v := range t.subdirs {
		subdirs[k] = v
	}
	return subdirs
}

// Flush writes the dirtrees of this directory and its subdirectories
// and returns the checksums of the dirtree and dirmeta of this directory
func (t *MutableTree) Flush(ctx context.Context, w ObjectWriter) (cafs.Key, cafs.Key, error) {
	if t.metaChecksum == "" {
		return cafs.Key{}, cafs.Key{}, ErrNoMetadata.WrapMessage("%q", t.path())
	}
	metaKey, err := cafs.KeyFromString(t.metaChecksum)
	if err != nil {
		return cafs.Key{}, cafs.Key{}, err
	}
	if t.contentsChecksum != "" {
		treeKey, err := cafs.KeyFromString(t.contentsChecksum)
		return treeKey, metaKey, err
	}
	if err := ctx.Err(); err != nil {
		return cafs.Key{}, cafs.Key{}, err
	}

	dirtree := &model.DirTree{
		Files: make([]model.FileEntry, 0, len(t.files)),
		Dirs:  make([]model.DirEntry, 0, len(t.subdirs)),
	}
	for _, name := range sortedKeys(t.subdirs) {
		subTree, subMeta, err := t.subdirs[name].Flush(ctx, w)
		if err != nil {
			return cafs.Key{}, cafs.Key{}, err
		}
		dirtree.Dirs = append(dirtree.Dirs, model.DirEntry{
			Name:         name,
			TreeChecksum: subTree.String(),
			MetaChecksum: subMeta.String(),
		})
	}
	for _, name := range sortedKeys(t.files) {
		dirtree.Files = append(dirtree.Files, model.FileEntry{Name: name, Checksum: t.files[name]})
	}
	res, err := w.WriteMetadata(ctx, dirtree, nil)
	if err != nil {
		return cafs.Key{}, cafs.Key{}, err
	}
	t.contentsChecksum = res.Key.String()
	return res.Key, metaKey, nil
}

func (t *MutableTree) path() string {
	var parts []string
	for p := t; p != nil && p.parent != nil; p = p.parent {
		parts = append([]string{p.name}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
