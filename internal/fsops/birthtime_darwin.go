//go:build darwin

package fsops

import (
	"io/fs"
	"syscall"
	"time"
)

// BirthTimeMs returns the creation time in epoch milliseconds where the
// platform records one.
func BirthTimeMs(_ string, info fs.FileInfo) *int64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	ms := time.Unix(stat.Birthtimespec.Unix()).UnixMilli()
	return &ms
}
