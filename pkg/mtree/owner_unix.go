//go:build !windows

package mtree

import (
	"os"
	"syscall"
)

func owner(info os.FileInfo) (uint32, uint32) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Uid, st.Gid
	}
	return 0, 0
}
