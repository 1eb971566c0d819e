//go:build !darwin && !windows && !linux

package fsops

import "io/fs"

// BirthTimeMs is unavailable on this platform.
func BirthTimeMs(_ string, _ fs.FileInfo) *int64 {
	return nil
}
