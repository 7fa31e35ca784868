package model

import (
	"fmt"
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// ObjectType enumerates the types of stored objects
type ObjectType uint8

// Object types. The numeric values are part of the size table format.
const (
	ObjectFile    ObjectType = 1
	ObjectDirTree ObjectType = 2
	ObjectDirMeta ObjectType = 3
	ObjectCommit  ObjectType = 4
)

// MetadataSizes is the commit metadata key holding the size table of objects introduced by a commit
const MetadataSizes = "sizes"

// Unix file type bits carried by file headers and dirmetas
const (
	ModeTypeMask uint32 = 0170000
	ModeDir      uint32 = 0040000
	ModeRegular  uint32 = 0100000
	ModeSymlink  uint32 = 0120000
	ModePermMask uint32 = 07777
)

// canonical encoding: sorted map keys, no HTML escaping, compact
var canonical = jsoniter.Config{
	SortMapKeys:            true,
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

func (t ObjectType) String() string {
	switch t {
	case ObjectFile:
		return "file"
	case ObjectDirTree:
		return "dirtree"
	case ObjectDirMeta:
		return "dirmeta"
	case ObjectCommit:
		return "commit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid object type
func (t ObjectType) Valid() bool {
	return t >= ObjectFile && t <= ObjectCommit
}

// IsMetadata tells if objects of this type are metadata objects
func (t ObjectType) IsMetadata() bool {
	return t == ObjectDirTree || t == ObjectDirMeta || t == ObjectCommit
}

// Extension of the stored object. Archive repositories store compressed files.
func (t ObjectType) Extension(archive bool) string {
	if t == ObjectFile && archive {
		return ".filez"
	}
	return "." + t.String()
}

// ParseObjectType from its name
func ParseObjectType(s string) (ObjectType, error) {
	for _, t := range []ObjectType{ObjectFile, ObjectDirTree, ObjectDirMeta, ObjectCommit} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, ErrMalformedObject.WrapMessage("unknown object type %q", s)
}

// Xattr is an extended attribute
type Xattr struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

func sortXattrs(x []Xattr) []Xattr {
	if len(x) == 0 {
		return nil
	}
	sorted := make([]Xattr, len(x))
	copy(sorted, x)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}

// FileHeader holds the attributes of a file object
type FileHeader struct {
	Mode          uint32  `json:"mode"`
	UID           uint32  `json:"uid"`
	GID           uint32  `json:"gid"`
	SymlinkTarget string  `json:"symlink,omitempty"`
	Xattrs        []Xattr `json:"xattrs,omitempty"`
}

// RegularFileHeader builds the header of a regular file
func RegularFileHeader(perm os.FileMode, uid, gid uint32) FileHeader {
	return FileHeader{Mode: ModeRegular | uint32(perm.Perm()), UID: uid, GID: gid}
}

// SymlinkHeader builds the header of a symbolic link
func SymlinkHeader(target string, uid, gid uint32) FileHeader {
	return FileHeader{Mode: ModeSymlink | 0777, UID: uid, GID: gid, SymlinkTarget: target}
}

// IsSymlink tells if the header describes a symbolic link
func (h FileHeader) IsSymlink() bool {
	return h.Mode&ModeTypeMask == ModeSymlink
}

// IsRegular tells if the header describes a regular file
func (h FileHeader) IsRegular() bool {
	return h.Mode&ModeTypeMask == ModeRegular
}

// Perm returns the permission bits
func (h FileHeader) Perm() os.FileMode {
	return os.FileMode(h.Mode & ModePermMask)
}

// Validate the header
func (h FileHeader) Validate() error {
	switch {
	case h.IsRegular():
		if h.SymlinkTarget != "" {
			return ErrMalformedObject.WrapMessage("regular file with a symlink target")
		}
	case h.IsSymlink():
		if h.SymlinkTarget == "" {
			return ErrMalformedObject.WrapMessage("symlink without target")
		}
	default:
		return ErrMalformedObject.WrapMessage("unsupported file mode %o", h.Mode)
	}
	return nil
}

// EncodeFileHeader returns the canonical encoding of a file header
func EncodeFileHeader(h FileHeader) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	h.Xattrs = sortXattrs(h.Xattrs)
	return canonical.Marshal(h)
}

// DecodeFileHeader from its canonical encoding
func DecodeFileHeader(b []byte) (FileHeader, error) {
	var h FileHeader
	if err := canonical.Unmarshal(b, &h); err != nil {
		return h, ErrMalformedObject.Wrap(err)
	}
	return h, h.Validate()
}

// MetadataObject is implemented by dirtrees, dirmetas and commits
type MetadataObject interface {
	ObjectType() ObjectType
	canonicalize()
}

// DirMeta holds the attributes of a directory
type DirMeta struct {
	Mode   uint32  `json:"mode"`
	UID    uint32  `json:"uid"`
	GID    uint32  `json:"gid"`
	Xattrs []Xattr `json:"xattrs,omitempty"`
}

// DefaultDirMeta is a 0755 directory owned by root
func DefaultDirMeta() *DirMeta {
	return &DirMeta{Mode: ModeDir | 0755}
}

// ObjectType of a dirmeta
func (*DirMeta) ObjectType() ObjectType { return ObjectDirMeta }

func (m *DirMeta) canonicalize() {
	m.Mode = ModeDir | m.Mode&ModePermMask
	m.Xattrs = sortXattrs(m.Xattrs)
}

// Perm returns the permission bits
func (m DirMeta) Perm() os.FileMode {
	return os.FileMode(m.Mode & ModePermMask)
}

// FileEntry is a file in a dirtree
type FileEntry struct {
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
}

// DirEntry is a subdirectory in a dirtree
type DirEntry struct {
	Name         string `json:"name"`
	TreeChecksum string `json:"tree"`
	MetaChecksum string `json:"meta"`
}

// DirTree lists the content of a directory, sorted by name
type DirTree struct {
	Files []FileEntry `json:"files"`
	Dirs  []DirEntry  `json:"dirs"`
}

// ObjectType of a dirtree
func (*DirTree) ObjectType() ObjectType { return ObjectDirTree }

func (d *DirTree) canonicalize() {
	if d.Files == nil {
		d.Files = []FileEntry{}
	}
	if d.Dirs == nil {
		d.Dirs = []DirEntry{}
	}
	sort.Slice(d.Files, func(i, j int) bool { return d.Files[i].Name < d.Files[j].Name })
	sort.Slice(d.Dirs, func(i, j int) bool { return d.Dirs[i].Name < d.Dirs[j].Name })
}

// Commit is a snapshot of a root directory
type Commit struct {
	Parent    string            `json:"parent,omitempty"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body,omitempty"`
	Timestamp int64             `json:"timestamp"`
	RootTree  string            `json:"root_tree"`
	RootMeta  string            `json:"root_meta"`
	Metadata  map[string][]byte `json:"metadata,omitempty"`
}

// ObjectType of a commit
func (*Commit) ObjectType() ObjectType { return ObjectCommit }

func (c *Commit) canonicalize() {
	if len(c.Metadata) == 0 {
		c.Metadata = nil
	}
}

// EncodeMetadata returns the canonical encoding of a metadata object
func EncodeMetadata(o MetadataObject) ([]byte, error) {
	o.canonicalize()
	return canonical.Marshal(o)
}

// DecodeMetadata decodes a metadata object of the given type
func DecodeMetadata(t ObjectType, b []byte) (MetadataObject, error) {
	var o MetadataObject
	switch t {
	case ObjectDirTree:
		o = &DirTree{}
	case ObjectDirMeta:
		o = &DirMeta{}
	case ObjectCommit:
		o = &Commit{}
	default:
		return nil, ErrMalformedObject.WrapMessage("%v is not a metadata object", t)
	}
	if err := canonical.Unmarshal(b, o); err != nil {
		return nil, ErrMalformedObject.Wrap(err)
	}
	return o, nil
}
