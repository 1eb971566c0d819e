//go:build linux

package fsops

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// BirthTimeMs returns the creation time in epoch milliseconds when the
// kernel and filesystem report one through statx. Symlinks are not followed.
func BirthTimeMs(path string, _ fs.FileInfo) *int64 {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx); err != nil {
		return nil
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return nil
	}
	ms := stx.Btime.Sec*1000 + int64(stx.Btime.Nsec)/1e6
	return &ms
}
