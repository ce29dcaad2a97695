//go:build !unix

package util

// GetAvailableSpace returns 0 on platforms without statfs support, which
// callers treat as "unknown".
func GetAvailableSpace(path string) uint64 {
	return 0
}
