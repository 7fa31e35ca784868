// Package cafs provides a content-addressable object store.
//
// All content is indexed by its blake2b-256 checksum
// (https://github.com/minio/blake2b-simd).
//
// Four types of objects are stored: files, dirtrees, dirmetas and commits.
// Each object is stored on the backend store under objects/{2 hex}/{62 hex}.{type}.
//
// The checksum of a file covers a small header (mode, ownership, extended attributes,
// symlink target) followed by the file content. Metadata objects are checksummed
// over their canonical encoding.
//
// The store operates in one of two modes:
//   - bare: files are stored uncompressed
//   - archive: file content is compressed with snappy (https://github.com/golang/snappy)
//
// Writing an object which already exists is a no-op, after the existing object has been checked.
package cafs
