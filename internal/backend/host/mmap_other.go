//go:build !unix

package host

// mapRegion allocates Go memory with room to align the data pointer when
// anonymous mappings are not available.
func mapRegion(size, alignment uint64) ([]byte, error) {
	return make([]byte, size+alignment), nil
}

// unmapRegion drops the region; the garbage collector reclaims it.
func unmapRegion([]byte) error {
	return nil
}
