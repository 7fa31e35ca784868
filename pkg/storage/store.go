// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"time"
)

// Overwrite policies for Put
const (
	OverWrite   = false
	NoOverWrite = true
)

// Attributes of a stored object
type Attributes struct {
	Size    int64
	Updated time.Time
	Mode    uint32
}

// Writer is an incremental writer to some key.
//
// Close publishes the content atomically. Abort discards it.
type Writer interface {
	io.WriteCloser
	Abort() error
}

// Store implementations know how to write entries to a K/V model.
//
// Typically this is something file system-like.
// Implementations of this interface are assumed to be fairly simple.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	GetAttr(context.Context, string) (Attributes, error)
	Put(context.Context, string, io.Reader, bool) error
	Writer(context.Context, string) (Writer, error)
	Delete(context.Context, string) error
	Rename(context.Context, string, string) error
	Keys(context.Context, string) ([]string, error)
}

// ReadAll retrieves the full content of some key
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()
	return io.ReadAll(reader)
}
