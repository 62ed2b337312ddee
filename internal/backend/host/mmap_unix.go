//go:build unix

package host

import (
	"golang.org/x/sys/unix"
)

// mapRegion maps anonymous private memory large enough to hold size bytes
// at the given alignment. Mappings are page aligned, so padding is only
// added for alignments beyond the page size.
func mapRegion(size, alignment uint64) ([]byte, error) {
	page := uint64(unix.Getpagesize())
	length := size
	if alignment > page {
		length += alignment
	}
	if length == 0 {
		length = page
	}
	return unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE) //nolint:gosec // G115: length bounded by caller
}

// unmapRegion releases a mapping made by mapRegion.
func unmapRegion(region []byte) error {
	return unix.Munmap(region)
}
