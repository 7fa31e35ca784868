// Copyright © 2018 One Concern

// Package storage provides interface to handle backend storage objects.
//
// Keys are slash-separated relative paths. Writes are atomic: a reader
// either sees the previous content of a key or the complete new content.
//
// This package supports the following backends:
//   - local file system (any afero.Fs)
package storage
