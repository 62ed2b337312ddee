package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/born-ml/devmem/internal/device"
	"github.com/born-ml/devmem/internal/logger"
	"github.com/born-ml/devmem/internal/tensor"
)

// NaiveAllocator passes every request straight to the device.
type NaiveAllocator struct {
	flatScopes

	api  device.API
	used atomic.Uint64
}

// NewNaiveAllocator creates a direct allocator over api.
func NewNaiveAllocator(api device.API) *NaiveAllocator {
	return &NaiveAllocator{api: api}
}

// Type returns Naive.
func (a *NaiveAllocator) Type() AllocatorType { return Naive }

// Alloc issues one device allocation.
func (a *NaiveAllocator) Alloc(dev tensor.Device, size, alignment uint64, typeHint tensor.DataType) (Buffer, error) {
	ptr, err := a.api.AllocDataSpace(dev, size, alignment, typeHint)
	if err != nil {
		return Buffer{}, fmt.Errorf("memory: allocate %d bytes on %s: %w", size, dev, err)
	}
	a.used.Add(size)
	return Buffer{
		Device:    dev,
		Size:      size,
		Alignment: alignment,
		Data:      ptr,
		Type:      Naive,
	}, nil
}

// AllocScoped serves global-scope requests as flat allocations.
func (a *NaiveAllocator) AllocScoped(dev tensor.Device, shape tensor.Shape, typeHint tensor.DataType, scope string) (Buffer, error) {
	return RedirectScoped(a, a.api, dev, shape, typeHint, scope)
}

// Free releases the device allocation immediately.
func (a *NaiveAllocator) Free(buf Buffer) error {
	if err := a.api.FreeDataSpace(buf.Device, buf.Data); err != nil {
		return fmt.Errorf("memory: free %d bytes on %s: %w", buf.Size, buf.Device, err)
	}
	a.used.Add(-buf.Size)
	logger.L.Debug("naive free", "device", buf.Device.String(), "bytes", buf.Size)
	return nil
}

// Clear is a no-op: nothing is cached.
func (a *NaiveAllocator) Clear() {}

// UsedMemory returns the bytes currently allocated through a.
func (a *NaiveAllocator) UsedMemory() uint64 {
	return a.used.Load()
}
