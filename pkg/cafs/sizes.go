package cafs

import (
	"encoding/binary"

	"github.com/oneconcern/treemon/pkg/model"
)

// SizeEntry records the sizes of an object introduced by a commit
type SizeEntry struct {
	Key          Key
	Compressed   uint64
	Uncompressed uint64
	Type         model.ObjectType // zero when the table does not carry types
}

// EncodeSizes builds the size table stored in commit metadata.
//
// Each entry is the 32 bytes of the key, the compressed and uncompressed sizes as
// unsigned varints, then the object type as a single byte when withType is set.
// Entries are prefixed by their length as an unsigned varint.
func EncodeSizes(entries []SizeEntry, withType bool) []byte {
	var buf []byte
	entry := make([]byte, 0, KeySize+2*binary.MaxVarintLen64+1)
	for _, e := range entries {
		entry = append(entry[:0], e.Key[:]...)
		entry = binary.AppendUvarint(entry, e.Compressed)
		entry = binary.AppendUvarint(entry, e.Uncompressed)
		if withType {
			entry = append(entry, byte(e.Type))
		}
		buf = binary.AppendUvarint(buf, uint64(len(entry)))
		buf = append(buf, entry...)
	}
	return buf
}

// DecodeSizes parses a size table
func DecodeSizes(data []byte) ([]SizeEntry, error) {
	var entries []SizeEntry
	for len(data) > 0 {
		l, n := binary.Uvarint(data)
		if n <= 0 || uint64(len(data)-n) < l {
			return nil, ErrCorruptedObject.WrapMessage("truncated size table")
		}
		entry := data[n : n+int(l)]
		data = data[n+int(l):]

		e, err := decodeSizeEntry(entry)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// EntryLen returns the length of an encoded entry, without its length prefix
func (e SizeEntry) EntryLen(withType bool) int {
	var scratch [binary.MaxVarintLen64]byte
	l := KeySize + binary.PutUvarint(scratch[:], e.Compressed) + binary.PutUvarint(scratch[:], e.Uncompressed)
	if withType {
		l++
	}
	return l
}

func decodeSizeEntry(entry []byte) (SizeEntry, error) {
	var e SizeEntry
	if len(entry) < KeySize {
		return e, ErrCorruptedObject.WrapMessage("size entry too short: %d bytes", len(entry))
	}
	e.Key = MustNewKey(entry[:KeySize])
	rest := entry[KeySize:]

	var n int
	if e.Compressed, n = binary.Uvarint(rest); n <= 0 {
		return e, ErrCorruptedObject.WrapMessage("invalid compressed size in size entry")
	}
	rest = rest[n:]
	if e.Uncompressed, n = binary.Uvarint(rest); n <= 0 {
		return e, ErrCorruptedObject.WrapMessage("invalid uncompressed size in size entry")
	}
	rest = rest[n:]

	switch len(rest) {
	case 0:
	case 1:
		e.Type = model.ObjectType(rest[0])
		if !e.Type.Valid() {
			return e, ErrCorruptedObject.WrapMessage("invalid object type %d in size entry", rest[0])
		}
	default:
		return e, ErrCorruptedObject.WrapMessage("trailing bytes in size entry")
	}
	return e, nil
}
