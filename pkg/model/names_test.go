package model

import (
	"strings"
	"testing"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRemoteName(t *testing.T) {
	for _, name := range []string{"foo", "hello-world", "origin_2", "a.b"} {
		assert.NoErrorf(t, ValidateRemoteName(name), "remote %q", name)
	}
	for _, name := range []string{"", "foo/bar", "-x", "..", "with space", "a:b"} {
		err := ValidateRemoteName(name)
		require.Errorf(t, err, "remote %q", name)
		assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	}
}

func TestValidateRefName(t *testing.T) {
	for _, name := range []string{"main", "exampleos/x86_64/stable", "v1.0", "a_b-c"} {
		assert.NoErrorf(t, ValidateRefName(name), "ref %q", name)
	}
	for _, name := range []string{"", "/main", "main/", "a//b", "a/../b", "a b", ".hidden"} {
		assert.Errorf(t, ValidateRefName(name), "ref %q", name)
	}
}

func TestValidateChecksum(t *testing.T) {
	require.NoError(t, ValidateChecksum(strings.Repeat("0f", 32)))
	assert.Error(t, ValidateChecksum(strings.Repeat("0F", 32)))
	assert.Error(t, ValidateChecksum(strings.Repeat("0f", 31)))
	assert.Error(t, ValidateChecksum(strings.Repeat("zz", 32)))
}

func TestParseRefspec(t *testing.T) {
	r, err := ParseRefspec("origin:exampleos/stable")
	require.NoError(t, err)
	assert.Equal(t, "origin", r.Remote)
	assert.Equal(t, "exampleos/stable", r.Ref)
	assert.Equal(t, "origin:exampleos/stable", r.String())

	r, err = ParseRefspec("main")
	require.NoError(t, err)
	assert.Empty(t, r.Remote)
	assert.Equal(t, "main", r.String())

	_, err = ParseRefspec("foo/bar:main")
	assert.True(t, errors.Is(err, ErrInvalidRemoteName))
	_, err = ParseRefspec("origin:")
	assert.True(t, errors.Is(err, ErrInvalidRefName))
}
