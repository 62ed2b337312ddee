package memory

import (
	"errors"
	"fmt"

	"github.com/born-ml/devmem/internal/device"
	"github.com/born-ml/devmem/internal/tensor"
)

// Common errors.
var (
	ErrInvalidDataType      = tensor.ErrInvalidDataType
	ErrShapeOverflow        = tensor.ErrShapeOverflow
	ErrNoDeviceAPI          = device.ErrNoDeviceAPI
	ErrUnsupportedScope     = errors.New("memory: unsupported memory scope")
	ErrUnknownAllocatorType = errors.New("memory: unknown allocator type")
	ErrAllocatorNotFound    = errors.New("memory: allocator has not been created yet")
	ErrOutOfBounds          = errors.New("memory: storage allocation out of bounds")
)

// AllocationError reports a tensor view that does not fit in its storage.
type AllocationError struct {
	Offset uint64 // Requested byte offset into the storage buffer
	Needed uint64 // Bytes the view requires
	Size   uint64 // Size of the storage buffer
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	return fmt.Sprintf("storage allocation failure, attempted to allocate %d at offset %d in region that is %dbytes",
		e.Needed, e.Offset, e.Size)
}

// Unwrap lets errors.Is match ErrOutOfBounds.
func (e *AllocationError) Unwrap() error {
	return ErrOutOfBounds
}
