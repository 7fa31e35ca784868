//go:build !linux

package core

import "github.com/oneconcern/treemon/pkg/model"

// OSXattrs reads the extended attributes of a file on the host. They are only supported on linux.
func OSXattrs(string) ([]model.Xattr, error) {
	return nil, nil
}
