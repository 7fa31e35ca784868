//go:build linux

package core

import (
	"bytes"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"golang.org/x/sys/unix"
)

// OSXattrs reads the extended attributes of a file on the host, without following symlinks
func OSXattrs(pth string) ([]model.Xattr, error) {
	size, err := unix.Llistxattr(pth, nil)
	if err != nil {
		if err == unix.ENOTSUP || err == unix.EOPNOTSUPP {
			return nil, nil
		}
		return nil, errors.ErrIO.WrapMessage("listing xattrs of %q: %v", pth, err)
	}
	if size == 0 {
		return nil, nil
	}
	names := make([]byte, size)
	if size, err = unix.Llistxattr(pth, names); err != nil {
		return nil, errors.ErrIO.WrapMessage("listing xattrs of %q: %v", pth, err)
	}

	var xattrs []model.Xattr
	for _, name := range bytes.Split(names[:size], []byte{0}) {
		if len(name) == 0 {
			continue
		}
		value, err := lgetxattr(pth, string(name))
		if err != nil {
			return nil, err
		}
		xattrs = append(xattrs, model.Xattr{Name: string(name), Value: value})
	}
	return xattrs, nil
}

func lgetxattr(pth, name string) ([]byte, error) {
	size, err := unix.Lgetxattr(pth, name, nil)
	if err != nil {
		if err == unix.ENODATA {
			return nil, nil
		}
		return nil, errors.ErrIO.WrapMessage("reading xattr %s of %q: %v", name, pth, err)
	}
	value := make([]byte, size)
	if size, err = unix.Lgetxattr(pth, name, value); err != nil {
		return nil, errors.ErrIO.WrapMessage("reading xattr %s of %q: %v", name, pth, err)
	}
	return value[:size], nil
}
