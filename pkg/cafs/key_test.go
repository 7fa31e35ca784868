package cafs

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "911bc2b07dd96c21ef3ab8b56ffeca4e0b8d1b74ea7667dd67eb2d037c1b4880"

func TestKey_FailsOnIncorrectSize(t *testing.T) {
	data1 := make([]byte, 31)
	data2 := make([]byte, 33)
	data3 := make([]byte, 32)

	for _, b := range [][]byte{data1, data2, data3} {
		_, err := rand.Read(b)
		require.NoError(t, err)
	}

	_, err := NewKey(data1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	_, err = NewKey(data2)
	require.Error(t, err)

	k, err := NewKey(data3)
	require.NoError(t, err)
	assert.Len(t, k, 32)

	assert.Panics(t, func() { MustNewKey(data1) })
	assert.NotPanics(t, func() { MustNewKey(data3) })
}

func TestKey_Succeeds(t *testing.T) {
	data, err := hex.DecodeString(testKey)
	require.NoError(t, err)

	key, err := NewKey(data)
	require.NoError(t, err)
	assert.Equal(t, testKey, key.String())
	assert.False(t, key.IsZero())

	parsed, err := KeyFromString(testKey)
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = KeyFromString(testKey[:10])
	assert.True(t, errors.Is(err, ErrBadKey))
	_, err = KeyFromString("zz" + testKey[2:])
	assert.True(t, errors.Is(err, ErrBadKey))
	assert.True(t, Key{}.IsZero())
}
