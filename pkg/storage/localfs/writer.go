// Copyright © 2018 One Concern

package localfs

import (
	"github.com/oneconcern/treemon/pkg/storage"
	"github.com/oneconcern/treemon/pkg/storage/status"
	"github.com/spf13/afero"
	"github.com/zeebo/errs"
)

var _ storage.Writer = &stagedWriter{}

// stagedWriter writes into the staging area and publishes on Close
type stagedWriter struct {
	store     *localFS
	file      afero.File
	stageKey  string
	key       string
	exclusive bool
	done      bool
}

func (w *stagedWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, status.ErrWriterClosed
	}
	n, err := w.file.Write(p)
	if err != nil {
		return n, status.ErrStorageAPI.Wrap(err)
	}
	return n, nil
}

func (w *stagedWriter) Close() error {
	if w.done {
		return status.ErrWriterClosed
	}
	w.done = true
	if w.store.fsync {
		if err := w.file.Sync(); err != nil {
			return errs.Combine(status.ErrStorageAPI.Wrap(err), w.file.Close(), w.store.fs.Remove(w.stageKey))
		}
	}
	if err := w.file.Close(); err != nil {
		return errs.Combine(status.ErrStorageAPI.Wrap(err), w.store.fs.Remove(w.stageKey))
	}
	if err := w.store.publish(w.stageKey, w.key, w.exclusive); err != nil {
		return errs.Combine(err, w.store.fs.Remove(w.stageKey))
	}
	return nil
}

func (w *stagedWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	return errs.Combine(w.file.Close(), w.store.fs.Remove(w.stageKey))
}
