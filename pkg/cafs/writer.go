package cafs

import (
	"context"
	"hash"
	"io"

	"github.com/golang/snappy"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/storage"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// FileWriter writes a file object incrementally.
//
// The key of the object is known only when Finish is called.
type FileWriter struct {
	ctx          context.Context
	store        *Store
	staged       storage.Writer
	stageKey     string
	hasher       hash.Hash
	stored       *countingWriter
	compressor   *snappy.Writer
	frameLen     int64
	uncompressed int64
	done         bool
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (s *Store) newFileWriter(ctx context.Context, header model.FileHeader) (*FileWriter, error) {
	frame, err := frameHeader(header)
	if err != nil {
		return nil, err
	}
	stageKey := stagingKey()
	staged, err := s.backend.Writer(ctx, stageKey)
	if err != nil {
		return nil, err
	}
	w := &FileWriter{
		ctx:      ctx,
		store:    s,
		staged:   staged,
		stageKey: stageKey,
		hasher:   newHasher(),
		stored:   &countingWriter{w: staged},
	}
	_, _ = w.hasher.Write(frame)
	if _, err = w.stored.Write(frame); err != nil {
		return nil, errs.Combine(err, staged.Abort())
	}
	w.frameLen = int64(len(frame))
	if s.archive() {
		w.compressor = snappy.NewBufferedWriter(w.stored)
	}
	return w, nil
}

// Write a chunk of file content
func (w *FileWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, ErrWriterDone
	}
	_, _ = w.hasher.Write(p)
	var (
		n   int
		err error
	)
	if w.compressor != nil {
		n, err = w.compressor.Write(p)
	} else {
		n, err = w.stored.Write(p)
	}
	w.uncompressed += int64(n)
	return n, err
}

// Abort the write: nothing is stored
func (w *FileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.staged.Abort()
}

// Finish the write and store the object under its key.
//
// When expected is not nil, the computed key must match it: on mismatch nothing is stored.
func (w *FileWriter) Finish(expected *Key) (WriteResult, error) {
	if w.done {
		return WriteResult{}, ErrWriterDone
	}
	w.done = true
	if w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			return WriteResult{}, errs.Combine(err, w.staged.Abort())
		}
	}
	key := sumKey(w.hasher)
	if err := checkExpected(key, expected); err != nil {
		return WriteResult{}, errs.Combine(err, w.staged.Abort())
	}
	if err := w.staged.Close(); err != nil {
		return WriteResult{}, err
	}

	s := w.store
	res := WriteResult{
		Key:              key,
		Type:             model.ObjectFile,
		CompressedSize:   w.stored.n - w.frameLen,
		UncompressedSize: w.uncompressed,
	}
	found, err := s.checkExisting(w.ctx, key, model.ObjectFile, w.stored.n)
	if err != nil {
		return WriteResult{}, errs.Combine(err, s.backend.Delete(w.ctx, w.stageKey))
	}
	if found {
		res.Found = true
		return res, s.backend.Delete(w.ctx, w.stageKey)
	}
	s.l.Debug("writing file object", zap.Stringer("key", key), zap.Int64("size", res.UncompressedSize))
	if err := s.backend.Rename(w.ctx, w.stageKey, s.ObjectPath(key, model.ObjectFile)); err != nil {
		return WriteResult{}, errs.Combine(err, s.backend.Delete(w.ctx, w.stageKey))
	}
	return res, nil
}
