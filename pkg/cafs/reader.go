package cafs

import (
	"bufio"
	"context"
	"io"

	"github.com/golang/snappy"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/storage"
)

type fileReader struct {
	io.Reader
	closer io.Closer
}

func (r *fileReader) Close() error {
	return r.closer.Close()
}

// LoadFile returns the header of a file object and a reader on its content
func (s *Store) LoadFile(ctx context.Context, key Key) (model.FileHeader, io.ReadCloser, error) {
	rc, err := s.backend.Get(ctx, s.ObjectPath(key, model.ObjectFile))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return model.FileHeader{}, nil, ErrObjectNotFound.WrapMessage("%v", ObjectRef{Key: key, Type: model.ObjectFile})
		}
		return model.FileHeader{}, nil, err
	}
	br := bufio.NewReader(rc)
	header, _, err := readFrame(br)
	if err != nil {
		_ = rc.Close()
		return model.FileHeader{}, nil, err
	}
	var payload io.Reader = br
	if s.archive() {
		payload = snappy.NewReader(br)
	}
	return header, &fileReader{Reader: payload, closer: rc}, nil
}

// ReadFile returns the header and full content of a file object
func (s *Store) ReadFile(ctx context.Context, key Key) (model.FileHeader, []byte, error) {
	header, rc, err := s.LoadFile(ctx, key)
	if err != nil {
		return header, nil, err
	}
	defer func() {
		_ = rc.Close()
	}()
	content, err := io.ReadAll(rc)
	if err != nil {
		return header, nil, ErrCorruptedObject.Wrap(err)
	}
	return header, content, nil
}

// Verify re-hashes a stored object and checks it against its key
func (s *Store) Verify(ctx context.Context, key Key, t model.ObjectType) error {
	ref := ObjectRef{Key: key, Type: t}
	if t.IsMetadata() {
		data, err := storage.ReadAll(ctx, s.backend, s.ObjectPath(key, t))
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return ErrObjectNotFound.WrapMessage("%v", ref)
			}
			return err
		}
		if computed := MetadataKey(data); computed != key {
			return ErrCorruptedObject.WrapMessage("%v hashes to %v", ref, computed)
		}
		if _, err = model.DecodeMetadata(t, data); err != nil {
			return ErrCorruptedObject.Wrap(err)
		}
		return nil
	}

	header, rc, err := s.LoadFile(ctx, key)
	if err != nil {
		if errors.Is(err, errors.ErrCorruption) {
			return ErrCorruptedObject.Wrap(err)
		}
		return err
	}
	defer func() {
		_ = rc.Close()
	}()
	computed, err := FileKey(header, rc)
	if err != nil {
		return ErrCorruptedObject.Wrap(err)
	}
	if computed != key {
		return ErrCorruptedObject.WrapMessage("%v hashes to %v", ref, computed)
	}
	return nil
}
