package util

// HasEnoughSpace reports whether the filesystem containing path has at least
// requiredBytes available. Paths whose free space cannot be determined are
// treated as having enough, so the check never blocks an encode on
// unsupported platforms.
func HasEnoughSpace(path string, requiredBytes uint64) bool {
	available := GetAvailableSpace(path)
	if available == 0 {
		return true
	}
	return available >= requiredBytes
}
