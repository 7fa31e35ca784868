package cafs

import (
	"encoding/hex"
	"fmt"

	"github.com/oneconcern/treemon/pkg/errors"
)

const (
	// KeySize for blake2b-256
	KeySize = 32

	// KeySizeHex for hex representation of a key
	KeySizeHex = 64
)

// NewKey creates a new key from data
func NewKey(data []byte) (Key, error) {
	var k Key
	if len(data) != KeySize {
		return Key{}, &BadKeySize{Key: data}
	}
	copy(k[:], data)
	return k, nil
}

// MustNewKey creates a new key from data but panics if there is an error
func MustNewKey(data []byte) Key {
	k, e := NewKey(data)
	if e != nil {
		panic(e.Error())
	}
	return k
}

// KeyFromString parses the hex representation of a key
func KeyFromString(s string) (Key, error) {
	if len(s) != KeySizeHex {
		return Key{}, ErrBadKey.WrapMessage("%q has length %d, expected %d", s, len(s), KeySizeHex)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, ErrBadKey.Wrap(err)
	}
	return NewKey(b)
}

// Key type for CAFS keys
type Key [KeySize]byte

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero tells if the key is unset
func (k Key) IsZero() bool {
	return k == Key{}
}

// BadKeySize is an error that's returned when the key to create has an invalid size.
type BadKeySize struct {
	Key []byte
}

func (b *BadKeySize) Error() string {
	return fmt.Sprintf("%x has invalid size of %d, expected %d", b.Key, len(b.Key), KeySize)
}

// Is an invalid argument
func (b *BadKeySize) Is(target error) bool {
	return target == ErrBadKey || target == errors.ErrInvalidArgument
}
