//go:build !windows

package hasher

import (
	"io/fs"
	"syscall"
)

func inodeKeyFromInfo(info fs.FileInfo) (inodeKey, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return inodeKey{}, false
	}
	return inodeKey{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}, true
}
