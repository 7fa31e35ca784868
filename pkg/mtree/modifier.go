package mtree

import (
	"os"

	"github.com/oneconcern/treemon/pkg/model"
)

// ModifierFlags alter how directories are imported
type ModifierFlags uint

const (
	// GenerateSizes requests the size table of newly written objects in the next commit
	GenerateSizes ModifierFlags = 1 << iota

	// SkipXattrs ignores extended attributes
	SkipXattrs

	// CanonicalPermissions imports files as 0644 or 0755 and directories as 0755, owned by root
	CanonicalPermissions
)

// FilterResult tells whether to import an entry
type FilterResult int

// Filter results
const (
	FilterAllow FilterResult = iota
	FilterSkip
)

// Modifier alters imported content
type Modifier struct {
	Flags ModifierFlags

	// Filter is called with the path of each entry relative to the imported root, as "/a/b"
	Filter func(path string, info os.FileInfo) FilterResult

	// Xattrs reads the extended attributes of an entry, given its path in the source filesystem
	Xattrs func(path string) ([]model.Xattr, error)
}

// Has some flag
func (m *Modifier) Has(flag ModifierFlags) bool {
	return m != nil && m.Flags&flag != 0
}

func (m *Modifier) filter(path string, info os.FileInfo) FilterResult {
	if m == nil || m.Filter == nil {
		return FilterAllow
	}
	return m.Filter(path, info)
}

func (m *Modifier) xattrs(path string) ([]model.Xattr, error) {
	if m == nil || m.Xattrs == nil || m.Has(SkipXattrs) {
		return nil, nil
	}
	return m.Xattrs(path)
}
