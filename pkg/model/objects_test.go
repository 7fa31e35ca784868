package model

import (
	"testing"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDirTreeIsCanonical(t *testing.T) {
	a := &DirTree{
		Files: []FileEntry{{Name: "b", Checksum: testChecksum}, {Name: "a", Checksum: testChecksum}},
		Dirs:  []DirEntry{{Name: "z", TreeChecksum: testChecksum, MetaChecksum: testChecksum}},
	}
	b := &DirTree{
		Files: []FileEntry{{Name: "a", Checksum: testChecksum}, {Name: "b", Checksum: testChecksum}},
		Dirs:  []DirEntry{{Name: "z", TreeChecksum: testChecksum, MetaChecksum: testChecksum}},
	}
	ea, err := EncodeMetadata(a)
	require.NoError(t, err)
	eb, err := EncodeMetadata(b)
	require.NoError(t, err)
	assert.Equal(t, ea, eb)

	empty1, err := EncodeMetadata(&DirTree{})
	require.NoError(t, err)
	empty2, err := EncodeMetadata(&DirTree{Files: []FileEntry{}, Dirs: []DirEntry{}})
	require.NoError(t, err)
	assert.Equal(t, empty1, empty2)

	decoded, err := DecodeMetadata(ObjectDirTree, ea)
	require.NoError(t, err)
	tree, ok := decoded.(*DirTree)
	require.True(t, ok)
	assert.Equal(t, "a", tree.Files[0].Name)
}

func TestFileHeader(t *testing.T) {
	h := RegularFileHeader(0640, 1000, 1000)
	h.Xattrs = []Xattr{{Name: "user.b", Value: []byte("2")}, {Name: "user.a", Value: []byte("1")}}
	assert.True(t, h.IsRegular())
	assert.False(t, h.IsSymlink())
	assert.Equal(t, "-rw-r-----", h.Perm().String())

	b, err := EncodeFileHeader(h)
	require.NoError(t, err)
	decoded, err := DecodeFileHeader(b)
	require.NoError(t, err)
	require.Len(t, decoded.Xattrs, 2)
	assert.Equal(t, "user.a", decoded.Xattrs[0].Name)

	link := SymlinkHeader("../target", 0, 0)
	assert.True(t, link.IsSymlink())
	require.NoError(t, link.Validate())

	_, err = EncodeFileHeader(FileHeader{Mode: ModeSymlink | 0777})
	assert.True(t, errors.Is(err, errors.ErrCorruption))
	_, err = EncodeFileHeader(FileHeader{Mode: ModeDir | 0755})
	assert.Error(t, err)
}

func TestDecodeMetadataErrors(t *testing.T) {
	_, err := DecodeMetadata(ObjectFile, []byte("{}"))
	assert.True(t, errors.Is(err, ErrMalformedObject))

	_, err = DecodeMetadata(ObjectCommit, []byte("not json"))
	assert.True(t, errors.Is(err, errors.ErrCorruption))
}

func TestObjectType(t *testing.T) {
	for _, typ := range []ObjectType{ObjectFile, ObjectDirTree, ObjectDirMeta, ObjectCommit} {
		parsed, err := ParseObjectType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
		assert.True(t, typ.Valid())
	}
	assert.False(t, ObjectFile.IsMetadata())
	assert.True(t, ObjectCommit.IsMetadata())
	assert.False(t, ObjectType(9).Valid())
}
