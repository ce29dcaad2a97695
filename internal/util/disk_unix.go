//go:build unix

package util

import "golang.org/x/sys/unix"

// GetAvailableSpace returns the available bytes on the filesystem containing
// path, or 0 when the path cannot be statted.
func GetAvailableSpace(path string) uint64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0
	}
	return st.Bavail * uint64(st.Bsize)
}
