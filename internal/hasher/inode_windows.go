//go:build windows

package hasher

import "io/fs"

// Hardlink detection is not supported on Windows.
func inodeKeyFromInfo(_ fs.FileInfo) (inodeKey, bool) {
	return inodeKey{}, false
}
