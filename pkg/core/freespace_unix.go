//go:build !windows

package core

import (
	"github.com/oneconcern/treemon/pkg/errors"
	"golang.org/x/sys/unix"
)

// freeSpace returns the bytes available to unprivileged users on the filesystem holding path
func freeSpace(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, errors.ErrIO.WrapMessage("statfs %q: %v", path, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
