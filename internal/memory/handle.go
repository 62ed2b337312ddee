package memory

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/devmem/internal/tensor"
)

// owner records where a handle's memory came from and therefore how it is
// given back when the handle dies.
type owner interface {
	isOwner()
}

// ownerBuffer: the handle owns buf outright.
type ownerBuffer struct {
	buf   Buffer
	alloc Allocator
}

// ownerStorage: the handle is a flat view into a storage buffer.
type ownerStorage struct {
	storage *Storage
}

// ownerScopedView: the handle wraps a view made by Allocator.CreateView.
type ownerScopedView struct {
	storage *Storage
}

func (ownerBuffer) isOwner()     {}
func (ownerStorage) isOwner()    {}
func (ownerScopedView) isOwner() {}

// Handle is a reference-counted tensor view over device memory.
// A new handle carries one reference held by the caller.
type Handle struct {
	data       unsafe.Pointer
	byteOffset uint64
	shape      tensor.Shape
	dtype      tensor.DataType
	device     tensor.Device

	refCount atomic.Int32
	owner    owner
}

func newHandle(data unsafe.Pointer, byteOffset uint64, shape tensor.Shape, dtype tensor.DataType,
	dev tensor.Device, o owner) *Handle {
	h := &Handle{
		data:       data,
		byteOffset: byteOffset,
		shape:      shape.Clone(),
		dtype:      dtype,
		device:     dev,
		owner:      o,
	}
	h.refCount.Store(1)
	return h
}

// Data returns the device data pointer.
func (h *Handle) Data() unsafe.Pointer { return h.data }

// ByteOffset returns the offset of the tensor's first byte from Data.
func (h *Handle) ByteOffset() uint64 { return h.byteOffset }

// Shape returns the tensor's shape.
func (h *Handle) Shape() tensor.Shape { return h.shape }

// DType returns the tensor's data type.
func (h *Handle) DType() tensor.DataType { return h.dtype }

// Device returns the device the memory lives on.
func (h *Handle) Device() tensor.Device { return h.device }

// ByteSize returns the densely packed size of the tensor in bytes.
func (h *Handle) ByteSize() uint64 {
	size, _ := tensor.DataSize(h.shape, h.dtype) // checked before the handle was made
	return size
}

// RefCount returns the current number of references.
func (h *Handle) RefCount() int32 { return h.refCount.Load() }

// Bytes returns the tensor's memory as a byte slice. Only flat host memory
// is addressable this way; other devices and scoped views return nil, since
// the data pointer of a scoped view is the allocator's view object.
// WARNING: Direct access to underlying memory. Use with caution.
func (h *Handle) Bytes() []byte {
	if _, scoped := h.owner.(ownerScopedView); scoped {
		return nil
	}
	size := h.ByteSize()
	if h.device.Type != tensor.CPU || h.data == nil || size == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice over host memory, bounds checked at view creation
	return unsafe.Slice((*byte)(unsafe.Add(h.data, h.byteOffset)), size)
}

// Retain adds a reference and returns h.
func (h *Handle) Retain() *Handle {
	if h.refCount.Add(1) <= 1 {
		panic("memory: retain of released handle")
	}
	return h
}

// Release drops a reference. The last release gives the memory back
// according to the handle's provenance: an owned buffer is freed through its
// allocator, a storage view drops its storage reference, and a scoped view
// is destroyed with FreeView before the storage reference is dropped.
func (h *Handle) Release() error {
	n := h.refCount.Add(-1)
	if n > 0 {
		return nil
	}
	if n < 0 {
		panic("memory: handle released more times than retained")
	}

	switch o := h.owner.(type) {
	case ownerBuffer:
		return o.alloc.Free(o.buf)
	case ownerStorage:
		return o.storage.Release()
	case ownerScopedView:
		viewErr := o.storage.alloc.FreeView(h.device, h.data)
		return errors.Join(viewErr, o.storage.Release())
	default:
		return nil
	}
}
