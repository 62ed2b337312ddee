package memory

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/devmem/internal/device"
	"github.com/born-ml/devmem/internal/tensor"
)

// Storage is a reference-counted owner of one Buffer that tensor views can
// be carved out of. The buffer is freed through the allocator that produced
// it when the last reference is released.
type Storage struct {
	buf      Buffer
	alloc    Allocator
	refCount atomic.Int32
}

// NewStorage takes ownership of buf. The caller holds the initial reference.
func NewStorage(buf Buffer, alloc Allocator) *Storage {
	s := &Storage{buf: buf, alloc: alloc}
	s.refCount.Store(1)
	return s
}

// AllocStorage allocates size bytes through alloc and wraps them in a Storage.
func AllocStorage(alloc Allocator, dev tensor.Device, size, alignment uint64, typeHint tensor.DataType) (*Storage, error) {
	buf, err := alloc.Alloc(dev, size, alignment, typeHint)
	if err != nil {
		return nil, err
	}
	return NewStorage(buf, alloc), nil
}

// Buffer returns the backing buffer.
func (s *Storage) Buffer() Buffer { return s.buf }

// Allocator returns the allocator the buffer will be freed through.
func (s *Storage) Allocator() Allocator { return s.alloc }

// RefCount returns the current number of references.
func (s *Storage) RefCount() int32 { return s.refCount.Load() }

// Retain adds a reference.
func (s *Storage) Retain() {
	if s.refCount.Add(1) <= 1 {
		panic("memory: retain of released storage")
	}
}

// Release drops a reference and frees the buffer when none are left.
func (s *Storage) Release() error {
	n := s.refCount.Add(-1)
	if n > 0 {
		return nil
	}
	if n < 0 {
		panic("memory: storage released more times than retained")
	}
	return s.alloc.Free(s.buf)
}

// AllocTensor returns a flat view of shape and dtype starting offset bytes
// into the storage buffer. The view holds a storage reference until released.
func (s *Storage) AllocTensor(offset uint64, shape tensor.Shape, dtype tensor.DataType) (*Handle, error) {
	if err := s.checkView(offset, shape, dtype, ""); err != nil {
		return nil, err
	}

	data, byteOffset := s.buf.Data, offset
	if !s.buf.Device.Type.HasByteOffset() {
		data = unsafe.Add(data, offset)
		byteOffset = 0
	}

	h := newHandle(data, byteOffset, shape, dtype, s.buf.Device, ownerStorage{storage: s})
	s.Retain()
	return h, nil
}

// AllocTensorScoped returns a view in the given memory scope. Global scope
// views are plain flat views; other scopes are created by the allocator's
// CreateView and destroyed with FreeView.
func (s *Storage) AllocTensorScoped(offset uint64, shape tensor.Shape, dtype tensor.DataType, scope string) (*Handle, error) {
	if isGlobalScope(scope) {
		return s.AllocTensor(offset, shape, dtype)
	}
	if err := s.checkView(offset, shape, dtype, scope); err != nil {
		return nil, err
	}

	data, err := s.alloc.CreateView(s.buf, shape, dtype, scope)
	if err != nil {
		return nil, err
	}

	h := newHandle(data, offset, shape, dtype, s.buf.Device, ownerScopedView{storage: s})
	s.Retain()
	return h, nil
}

// checkView validates a view request against the buffer bounds.
func (s *Storage) checkView(offset uint64, shape tensor.Shape, dtype tensor.DataType, scope string) error {
	if err := dtype.Verify(); err != nil {
		return err
	}
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}

	api, err := device.Get(s.buf.Device.Type)
	if err != nil {
		return err
	}
	needed, err := api.DataSize(shape, dtype, scope)
	if err != nil {
		return fmt.Errorf("memory: data size for %v %s: %w", shape, dtype, err)
	}

	if offset > s.buf.Size || needed > s.buf.Size-offset {
		return &AllocationError{Offset: offset, Needed: needed, Size: s.buf.Size}
	}
	return nil
}
