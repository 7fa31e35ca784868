// Package rand generates random content for tests.
package rand

import (
	"bytes"
	"fmt"
	"math/rand"
	"path"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Bytes returns a random slice of bytes
func Bytes(n int) []byte {
	return randBytes(n)
}

// String returns a random string
func String(n int) string {
	return randString(n)
}

// LetterBytes returns a random slice of bytes picked in the [0-9]|[a-z] range
func LetterBytes(n int) []byte {
	return randLetterBytes(n)
}

// LetterString returns a random string picked in the [0-9]|[a-z] range
func LetterString(n int) string {
	return randLetterString(n)
}

// TreeSpec describes a random directory tree
type TreeSpec struct {
	Depth       int // levels of subdirectories below the root
	DirsPerDir  int
	FilesPerDir int
	MaxFileSize int
}

// Tree writes a random directory tree under root and returns the paths of the written files,
// relative to root, in the order they were written
func Tree(fs afero.Fs, root string, spec TreeSpec) ([]string, error) {
	var files []string
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if err := fs.MkdirAll(path.Join(root, dir), 0755); err != nil {
			return err
		}
		for i := 0; i < spec.FilesPerDir; i++ {
			name := path.Join(dir, fmt.Sprintf("file-%d-%s", i, randLetterString(6)))
			size := 0
			if spec.MaxFileSize > 0 {
				size = randIntn(spec.MaxFileSize)
			}
			if err := afero.WriteFile(fs, path.Join(root, name), randBytes(size), 0644); err != nil {
				return err
			}
			files = append(files, name)
		}
		if depth >= spec.Depth {
			return nil
		}
		for i := 0; i < spec.DirsPerDir; i++ {
			if err := walk(path.Join(dir, fmt.Sprintf("dir-%d-%s", i, randLetterString(4))), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return files, walk("", 0)
}

var (
	onceSource  sync.Once
	rgen        *rand.Rand
	onceLetters sync.Once
	randMutex   sync.Mutex
)

func seed() {
	src := rand.NewSource(time.Now().UnixNano())
	rgen = rand.New(src) // #nosec
}

func randBytes(n int) []byte {
	onceSource.Do(seed)
	buf := make([]byte, n)
	randMutex.Lock() // the mutex doesn't add any significant time - alternative to mutex: singleton w/ goroutine
	_, _ = rgen.Read(buf)
	randMutex.Unlock()
	return buf
}

func randIntn(n int) int {
	onceSource.Do(seed)
	randMutex.Lock()
	defer randMutex.Unlock()
	return rgen.Intn(n)
}

func randString(n int) string {
	return string(randBytes(n)) // this is not optimal but the cost of this extra copy is only about 10%
}

var letters []byte

func makeLetters() {
	// adds "a" to pad over 256 locations (0-9 U a-z makes up to 252 only and we want to cover the range of uint8)
	// do the "a" is slightly more frequent than other signs. The trade-off here is speed over exact randomness
	letters = bytes.Repeat([]byte("abcdefghijklmnopqrstuvwxyz0123456789a"), 7)
}

func randLetterBytes(n int) []byte {
	onceLetters.Do(makeLetters)
	buf := randBytes(n)
	for i, b := range buf {
		buf[i] = letters[b]
	}
	return buf
}

func randLetterString(n int) string {
	return string(randLetterBytes(n))
}
