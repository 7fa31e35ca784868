package rand

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandLetterBytes(t *testing.T) {
	name := randLetterBytes(20)
	assert.Len(t, name, 20)
	for _, b := range name {
		assert.Contains(t, "abcdefghijklmnopqrstuvwxyz0123456789", string(b))
	}
}

func TestTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	files, err := Tree(fs, "/src", TreeSpec{Depth: 2, DirsPerDir: 2, FilesPerDir: 3, MaxFileSize: 128})
	require.NoError(t, err)
	// 1 + 2 + 4 directories
	assert.Len(t, files, 21)
	for _, f := range files {
		exists, err := afero.Exists(fs, "/src/"+f)
		require.NoError(t, err)
		assert.True(t, exists)
	}
}

func benchmarkRandBytes(b *testing.B, size int) {
	for n := 0; n < b.N; n++ {
		_ = randBytes(size)
	}
}

func BenchmarkRandBytes20(b *testing.B)      { benchmarkRandBytes(b, 20) }
func BenchmarkRandBytes1000(b *testing.B)    { benchmarkRandBytes(b, 1000) }
func BenchmarkRandBytes1000000(b *testing.B) { benchmarkRandBytes(b, 1000000) }

func benchmarkRandLetterString(b *testing.B, size int) {
	for n := 0; n < b.N; n++ {
		_ = randLetterString(size)
	}
}

func BenchmarkRandLetterString20(b *testing.B)   { benchmarkRandLetterString(b, 20) }
func BenchmarkRandLetterString1000(b *testing.B) { benchmarkRandLetterString(b, 1000) }
