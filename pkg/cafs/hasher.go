package cafs

import (
	"bufio"
	"encoding/binary"
	"hash"
	"io"

	"github.com/docker/go-units"
	blake2b "github.com/minio/blake2b-simd"
	"github.com/oneconcern/treemon/pkg/model"
)

// maxHeaderSize bounds the size of a file header read back from storage
const maxHeaderSize = 1 * units.MiB

func newHasher() hash.Hash {
	return blake2b.New256()
}

func sumKey(h hash.Hash) Key {
	return MustNewKey(h.Sum(nil))
}

// MetadataKey computes the key of some encoded metadata object
func MetadataKey(data []byte) Key {
	h := newHasher()
	_, _ = h.Write(data)
	return sumKey(h)
}

// frameHeader prefixes an encoded file header with its length
func frameHeader(header model.FileHeader) ([]byte, error) {
	encoded, err := model.EncodeFileHeader(header)
	if err != nil {
		return nil, err
	}
	frame := binary.AppendUvarint(make([]byte, 0, len(encoded)+binary.MaxVarintLen64), uint64(len(encoded)))
	return append(frame, encoded...), nil
}

// readFrame reads a framed file header
func readFrame(r *bufio.Reader) (model.FileHeader, int64, error) {
	l, err := binary.ReadUvarint(r)
	if err != nil {
		return model.FileHeader{}, 0, ErrCorruptedObject.Wrap(err)
	}
	if l > maxHeaderSize {
		return model.FileHeader{}, 0, ErrCorruptedObject.WrapMessage("file header too large: %d bytes", l)
	}
	buf := make([]byte, l)
	if _, err = io.ReadFull(r, buf); err != nil {
		return model.FileHeader{}, 0, ErrCorruptedObject.Wrap(err)
	}
	header, err := model.DecodeFileHeader(buf)
	if err != nil {
		return model.FileHeader{}, 0, err
	}
	var scratch [binary.MaxVarintLen64]byte
	return header, int64(binary.PutUvarint(scratch[:], l)) + int64(l), nil
}

// FileKey computes the key of a file object from its header and content
func FileKey(header model.FileHeader, content io.Reader) (Key, error) {
	frame, err := frameHeader(header)
	if err != nil {
		return Key{}, err
	}
	h := newHasher()
	_, _ = h.Write(frame)
	if content != nil {
		if _, err = io.Copy(h, content); err != nil {
			return Key{}, err
		}
	}
	return sumKey(h), nil
}
