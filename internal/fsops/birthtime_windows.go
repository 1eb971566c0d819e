//go:build windows

package fsops

import (
	"io/fs"
	"syscall"
)

// BirthTimeMs returns the creation time in epoch milliseconds where the
// platform records one.
func BirthTimeMs(_ string, info fs.FileInfo) *int64 {
	attrs, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return nil
	}
	ms := attrs.CreationTime.Nanoseconds() / 1e6
	return &ms
}
