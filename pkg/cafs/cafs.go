package cafs

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/docker/go-units"
	lru "github.com/hashicorp/golang-lru"
	"github.com/oneconcern/treemon/pkg/dlogger"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/storage"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// Mode of a store
type Mode string

const (
	// ModeBare stores files uncompressed
	ModeBare Mode = "bare"

	// ModeArchive stores file contents compressed
	ModeArchive Mode = "archive"

	// DefaultCacheSize is the default number of metadata objects kept in memory
	DefaultCacheSize = 4096

	// stagingPrefix holds objects being written, before their key is known
	stagingPrefix = "tmp/staging"
)

// ParseMode parses the name of a store mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBare, ModeArchive:
		return Mode(s), nil
	case "":
		return ModeBare, nil
	default:
		return "", ErrUnknownMode.WrapMessage("%q", s)
	}
}

// ObjectRef identifies a stored object
type ObjectRef struct {
	Key  Key
	Type model.ObjectType
}

func (o ObjectRef) String() string {
	return o.Key.String() + "." + o.Type.String()
}

// WriteResult holds the result from a write operation
type WriteResult struct {
	Key              Key
	Type             model.ObjectType
	Found            bool  // the object was already stored
	CompressedSize   int64 // bytes of content on storage, without the file header
	UncompressedSize int64 // bytes of content
}

// SizeEntry returns the size table entry of the written object
func (r WriteResult) SizeEntry() SizeEntry {
	return SizeEntry{
		Key:          r.Key,
		Compressed:   uint64(r.CompressedSize),
		Uncompressed: uint64(r.UncompressedSize),
		Type:         r.Type,
	}
}

// Store is a content-addressable object store
type Store struct {
	backend        storage.Store
	mode           Mode
	cacheSize      int
	verifyExisting bool
	cache          *lru.Cache
	l              *zap.Logger
}

func defaultsForStore() *Store {
	return &Store{
		mode:      ModeBare,
		cacheSize: DefaultCacheSize,
		l:         dlogger.MustGetLogger("info"),
	}
}

// New builds a content-addressable store
func New(opts ...Option) (*Store, error) {
	s := defaultsForStore()
	for _, apply := range opts {
		apply(s)
	}
	if s.backend == nil {
		return nil, errors.ErrInvalidArgument.WrapMessage("a backend store is required")
	}
	if _, err := ParseMode(string(s.mode)); err != nil {
		return nil, err
	}
	if s.cacheSize > 0 {
		cache, err := lru.New(s.cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// Mode of the store
func (s *Store) Mode() Mode {
	return s.mode
}

func (s *Store) archive() bool {
	return s.mode == ModeArchive
}

func (s *Store) String() string {
	return "cafs(" + string(s.mode) + ")@" + s.backend.String()
}

// ObjectPath is the storage key of an object
func (s *Store) ObjectPath(key Key, t model.ObjectType) string {
	return model.ObjectPath(key.String(), t, s.archive())
}

func checkExpected(computed Key, expected *Key) error {
	if expected != nil && *expected != computed {
		return ErrChecksumMismatch.WrapMessage("expected %v, computed %v", *expected, computed)
	}
	return nil
}

// WriteMetadata stores a dirtree, dirmeta or commit.
//
// When expected is not nil, the computed key must match it.
func (s *Store) WriteMetadata(ctx context.Context, o model.MetadataObject, expected *Key) (WriteResult, error) {
	data, err := model.EncodeMetadata(o)
	if err != nil {
		return WriteResult{}, err
	}
	return s.writeMetadata(ctx, o.ObjectType(), data, expected)
}

// WriteMetadataBytes stores an already encoded metadata object
func (s *Store) WriteMetadataBytes(ctx context.Context, t model.ObjectType, data []byte, expected *Key) (WriteResult, error) {
	if _, err := model.DecodeMetadata(t, data); err != nil {
		return WriteResult{}, err
	}
	return s.writeMetadata(ctx, t, data, expected)
}

func (s *Store) writeMetadata(ctx context.Context, t model.ObjectType, data []byte, expected *Key) (WriteResult, error) {
	key := MetadataKey(data)
	if err := checkExpected(key, expected); err != nil {
		return WriteResult{}, err
	}
	res := WriteResult{
		Key:              key,
		Type:             t,
		CompressedSize:   int64(len(data)),
		UncompressedSize: int64(len(data)),
	}
	found, err := s.checkExisting(ctx, key, t, res.CompressedSize)
	if err != nil {
		return WriteResult{}, err
	}
	if found {
		res.Found = true
		return res, nil
	}
	s.l.Debug("writing metadata object", zap.Stringer("key", key), zap.Stringer("type", t))
	if err := s.backend.Put(ctx, s.ObjectPath(key, t), bytes.NewReader(data), storage.OverWrite); err != nil {
		return WriteResult{}, err
	}
	if s.cache != nil {
		s.cache.Add(ObjectRef{Key: key, Type: t}, data)
	}
	return res, nil
}

// WriteFile stores a file object, streaming its content from payload.
//
// When expected is not nil, the computed key must match it: on mismatch nothing is stored.
func (s *Store) WriteFile(ctx context.Context, header model.FileHeader, payload io.Reader, expected *Key) (WriteResult, error) {
	w, err := s.newFileWriter(ctx, header)
	if err != nil {
		return WriteResult{}, err
	}
	if payload != nil {
		if _, err = io.Copy(w, payload); err != nil {
			_ = w.Abort()
			return WriteResult{}, err
		}
	}
	return w.Finish(expected)
}

// NewFileWriter returns an incremental writer for a file object.
//
// This is only supported by bare stores.
func (s *Store) NewFileWriter(ctx context.Context, header model.FileHeader) (*FileWriter, error) {
	if s.archive() {
		return nil, ErrStreamingNotSupported
	}
	return s.newFileWriter(ctx, header)
}

// checkExisting tells if an object is already present and sound.
//
// Empty objects and objects with an unexpected size are considered absent and will be overwritten.
func (s *Store) checkExisting(ctx context.Context, key Key, t model.ObjectType, size int64) (bool, error) {
	attrs, err := s.backend.GetAttr(ctx, s.ObjectPath(key, t))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	switch {
	case attrs.Size == 0:
		s.l.Warn("overwriting empty object", zap.Stringer("key", key), zap.Stringer("type", t))
		return false, nil
	case attrs.Size != size:
		s.l.Warn("overwriting object with unexpected size", zap.Stringer("key", key), zap.Stringer("type", t),
			zap.String("stored", units.BytesSize(float64(attrs.Size))), zap.String("expected", units.BytesSize(float64(size))))
		return false, nil
	}
	if !s.verifyExisting {
		return true, nil
	}
	if err := s.Verify(ctx, key, t); err != nil {
		s.l.Warn("overwriting corrupted object", zap.Stringer("key", key), zap.Stringer("type", t), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// LoadMetadataBytes returns the encoded form of a metadata object, after checking its checksum
func (s *Store) LoadMetadataBytes(ctx context.Context, key Key, t model.ObjectType) ([]byte, error) {
	ref := ObjectRef{Key: key, Type: t}
	if s.cache != nil {
		if cached, ok := s.cache.Get(ref); ok {
			return cached.([]byte), nil
		}
	}
	data, err := storage.ReadAll(ctx, s.backend, s.ObjectPath(key, t))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, ErrObjectNotFound.WrapMessage("%v", ref)
		}
		return nil, err
	}
	if computed := MetadataKey(data); computed != key {
		return nil, ErrCorruptedObject.WrapMessage("%v hashes to %v", ref, computed)
	}
	if s.cache != nil {
		s.cache.Add(ref, data)
	}
	return data, nil
}

// LoadMetadata returns a decoded metadata object
func (s *Store) LoadMetadata(ctx context.Context, key Key, t model.ObjectType) (model.MetadataObject, error) {
	data, err := s.LoadMetadataBytes(ctx, key, t)
	if err != nil {
		return nil, err
	}
	return model.DecodeMetadata(t, data)
}

// LoadDirTree returns a dirtree object
func (s *Store) LoadDirTree(ctx context.Context, key Key) (*model.DirTree, error) {
	o, err := s.LoadMetadata(ctx, key, model.ObjectDirTree)
	if err != nil {
		return nil, err
	}
	return o.(*model.DirTree), nil
}

// LoadDirMeta returns a dirmeta object
func (s *Store) LoadDirMeta(ctx context.Context, key Key) (*model.DirMeta, error) {
	o, err := s.LoadMetadata(ctx, key, model.ObjectDirMeta)
	if err != nil {
		return nil, err
	}
	return o.(*model.DirMeta), nil
}

// LoadCommit returns a commit object
func (s *Store) LoadCommit(ctx context.Context, key Key) (*model.Commit, error) {
	o, err := s.LoadMetadata(ctx, key, model.ObjectCommit)
	if err != nil {
		return nil, err
	}
	return o.(*model.Commit), nil
}

// Has tells if an object is stored
func (s *Store) Has(ctx context.Context, key Key, t model.ObjectType) (bool, error) {
	return s.backend.Has(ctx, s.ObjectPath(key, t))
}

// Size returns the number of bytes used on storage by an object
func (s *Store) Size(ctx context.Context, key Key, t model.ObjectType) (int64, error) {
	attrs, err := s.backend.GetAttr(ctx, s.ObjectPath(key, t))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return 0, ErrObjectNotFound.WrapMessage("%v", ObjectRef{Key: key, Type: t})
		}
		return 0, err
	}
	return attrs.Size, nil
}

// Delete an object
func (s *Store) Delete(ctx context.Context, key Key, t model.ObjectType) error {
	if s.cache != nil {
		s.cache.Remove(ObjectRef{Key: key, Type: t})
	}
	return s.backend.Delete(ctx, s.ObjectPath(key, t))
}

// List all stored objects
func (s *Store) List(ctx context.Context) ([]ObjectRef, error) {
	keys, err := s.backend.Keys(ctx, model.ObjectsDir+"/")
	if err != nil {
		return nil, err
	}
	refs := make([]ObjectRef, 0, len(keys))
	for _, k := range keys {
		checksum, t, err := model.ParseObjectPath(k)
		if err != nil {
			s.l.Debug("skipping unexpected entry in objects", zap.String("key", k))
			continue
		}
		key, err := KeyFromString(checksum)
		if err != nil {
			continue
		}
		refs = append(refs, ObjectRef{Key: key, Type: t})
	}
	return refs, nil
}

// CleanupStaging removes leftovers from interrupted writes
func (s *Store) CleanupStaging(ctx context.Context) (int, error) {
	keys, err := s.backend.Keys(ctx, stagingPrefix+"/")
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := s.backend.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	if len(keys) > 0 {
		s.l.Warn("removed stale staged objects", zap.Int("count", len(keys)))
	}
	return len(keys), nil
}

func stagingKey() string {
	return path.Join(stagingPrefix, ksuid.New().String())
}
