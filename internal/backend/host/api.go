// Package host implements the CPU device backend: host memory for the
// memory layer, and a texture memory scope laid out as pitched 2D images.
package host

import (
	"fmt"
	"math"
	"math/bits"
	"sync"
	"unsafe"

	"github.com/born-ml/devmem/internal/device"
	"github.com/born-ml/devmem/internal/tensor"
)

// TextureScope is the memory scope of pitched 2D image views.
const TextureScope = "global.texture"

// TextureRowPitch is the row alignment of texture memory in bytes.
const TextureRowPitch = 256

// API is the host device API. Every allocation is its own mapping, so
// freeing returns the pages to the OS immediately.
type API struct {
	mu      sync.Mutex
	regions map[unsafe.Pointer][]byte // aligned data pointer -> whole mapping
}

// NewAPI creates a host device API.
func NewAPI() *API {
	return &API{regions: make(map[unsafe.Pointer][]byte)}
}

// AllocDataSpace maps size bytes of zeroed host memory aligned to alignment.
func (a *API) AllocDataSpace(_ tensor.Device, size, alignment uint64, _ tensor.DataType) (unsafe.Pointer, error) {
	if alignment == 0 {
		alignment = tensor.AllocAlignment
	}
	if alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("host: alignment %d is not a power of two", alignment)
	}

	region, err := mapRegion(size, alignment)
	if err != nil {
		return nil, fmt.Errorf("host: allocate %d bytes: %w", size, err)
	}

	ptr := unsafe.Pointer(&region[0])
	if off := uintptr(ptr) & uintptr(alignment-1); off != 0 {
		ptr = unsafe.Add(ptr, uintptr(alignment)-off)
	}

	a.mu.Lock()
	a.regions[ptr] = region
	a.mu.Unlock()
	return ptr, nil
}

// FreeDataSpace unmaps memory returned by AllocDataSpace.
func (a *API) FreeDataSpace(_ tensor.Device, ptr unsafe.Pointer) error {
	a.mu.Lock()
	region, ok := a.regions[ptr]
	delete(a.regions, ptr)
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("host: free of unknown pointer %p", ptr)
	}
	return unmapRegion(region)
}

// DataSize returns the bytes a tensor needs in flat or texture memory.
func (a *API) DataSize(shape tensor.Shape, dtype tensor.DataType, scope string) (uint64, error) {
	if scope == TextureScope {
		layout, err := TextureLayoutOf(shape, dtype)
		if err != nil {
			return 0, err
		}
		return layout.Size(), nil
	}
	return device.FlatDataSize(shape, dtype, scope)
}

// Live returns the number of allocations not yet freed.
func (a *API) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.regions)
}

// TextureLayout describes a tensor stored as a 2D image: one row per
// innermost vector, each row padded to TextureRowPitch.
type TextureLayout struct {
	Rows     uint64
	RowBytes uint64
	Pitch    uint64
}

// TextureLayoutOf computes the texture layout of a tensor. The last
// dimension forms a row; all outer dimensions are flattened into rows.
func TextureLayoutOf(shape tensor.Shape, dtype tensor.DataType) (TextureLayout, error) {
	// The dense size bounds every row, so only padding can overflow below.
	if _, err := tensor.DataSize(shape, dtype); err != nil {
		return TextureLayout{}, err
	}
	rows, width := uint64(1), uint64(1)
	if n := len(shape); n > 0 {
		width = uint64(shape[n-1])
		rows = uint64(shape[:n-1].NumElements())
	}
	rowBytes := width * dtype.ElemBytes()
	if rowBytes > math.MaxUint64-(TextureRowPitch-1) {
		return TextureLayout{}, fmt.Errorf("%w: texture row of %d bytes", tensor.ErrShapeOverflow, rowBytes)
	}
	pitch := (rowBytes + TextureRowPitch - 1) / TextureRowPitch * TextureRowPitch
	if hi, _ := bits.Mul64(rows, pitch); hi != 0 {
		return TextureLayout{}, fmt.Errorf("%w: %d texture rows of %d bytes", tensor.ErrShapeOverflow, rows, pitch)
	}
	return TextureLayout{Rows: rows, RowBytes: rowBytes, Pitch: pitch}, nil
}

// Size returns the total bytes of the layout.
func (l TextureLayout) Size() uint64 {
	return l.Rows * l.Pitch
}
