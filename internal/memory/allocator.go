package memory

import (
	"fmt"
	"unsafe"

	"github.com/born-ml/devmem/internal/device"
	"github.com/born-ml/devmem/internal/tensor"
)

// Allocator turns size or shape requests into device Buffers and takes them back.
//
// Implementations:
//   - NaiveAllocator: one device call per Alloc and Free
//   - PooledAllocator: free list of returned buffers, drained by Clear
//   - device backends may wrap either to support extra memory scopes
type Allocator interface {
	// Type returns the allocation strategy.
	Type() AllocatorType

	// Alloc allocates size bytes aligned to alignment on dev.
	Alloc(dev tensor.Device, size, alignment uint64, typeHint tensor.DataType) (Buffer, error)

	// AllocScoped allocates space for a tensor of shape and dtype in a memory scope.
	AllocScoped(dev tensor.Device, shape tensor.Shape, typeHint tensor.DataType, scope string) (Buffer, error)

	// Free gives buf back to the allocator.
	Free(buf Buffer) error

	// AllowMemoryScope reports whether AllocScoped accepts scope.
	AllowMemoryScope(scope string) bool

	// CreateView returns a scope-specific view over buf.
	CreateView(buf Buffer, shape tensor.Shape, dtype tensor.DataType, scope string) (unsafe.Pointer, error)

	// FreeView releases a view returned by CreateView.
	FreeView(dev tensor.Device, data unsafe.Pointer) error

	// Clear returns cached but unused memory to the device.
	Clear()

	// UsedMemory returns the bytes currently held on the device.
	UsedMemory() uint64
}

// flatScopes provides the scope behavior of allocators that only know flat memory.
type flatScopes struct{}

func (flatScopes) AllowMemoryScope(scope string) bool {
	return isGlobalScope(scope)
}

func (flatScopes) CreateView(_ Buffer, _ tensor.Shape, _ tensor.DataType, scope string) (unsafe.Pointer, error) {
	return nil, fmt.Errorf("%w: cannot create view with memory scope %q", ErrUnsupportedScope, scope)
}

func (flatScopes) FreeView(_ tensor.Device, _ unsafe.Pointer) error {
	return fmt.Errorf("%w: cannot free view", ErrUnsupportedScope)
}

// RedirectScoped implements AllocScoped for allocators whose scoped requests
// can be served from flat memory: when a accepts scope, it sizes the request
// with the device's data size oracle and forwards it to a.Alloc.
func RedirectScoped(a Allocator, api device.API, dev tensor.Device, shape tensor.Shape,
	typeHint tensor.DataType, scope string) (Buffer, error) {
	if !a.AllowMemoryScope(scope) {
		return Buffer{}, fmt.Errorf("%w: allocator cannot allocate data space with memory scope %q",
			ErrUnsupportedScope, scope)
	}
	size, err := api.DataSize(shape, typeHint, scope)
	if err != nil {
		return Buffer{}, fmt.Errorf("memory: data size for %v %s: %w", shape, typeHint, err)
	}
	return a.Alloc(dev, size, typeHint.Alignment(), typeHint)
}

// Empty allocates a standalone tensor through alloc. The returned handle owns
// its buffer and frees it through alloc when its last reference is released.
func Empty(alloc Allocator, shape tensor.Shape, dtype tensor.DataType, dev tensor.Device, scope string) (*Handle, error) {
	if err := dtype.Verify(); err != nil {
		return nil, err
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}

	var (
		buf Buffer
		err error
	)
	if isGlobalScope(scope) {
		api, apiErr := device.Get(dev.Type)
		if apiErr != nil {
			return nil, apiErr
		}
		size, sizeErr := api.DataSize(shape, dtype, scope)
		if sizeErr != nil {
			return nil, fmt.Errorf("memory: data size for %v %s: %w", shape, dtype, sizeErr)
		}
		buf, err = alloc.Alloc(dev, size, dtype.Alignment(), dtype)
	} else {
		buf, err = alloc.AllocScoped(dev, shape, dtype, scope)
	}
	if err != nil {
		return nil, err
	}

	return newHandle(buf.Data, 0, shape, dtype, dev, ownerBuffer{buf: buf, alloc: alloc}), nil
}
