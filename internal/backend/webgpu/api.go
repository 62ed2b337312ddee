//go:build windows

// Package webgpu implements the WebGPU device backend for the memory layer.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/devmem/internal/device"
	"github.com/born-ml/devmem/internal/logger"
	"github.com/born-ml/devmem/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// storageUsage is the usage of every buffer handed to the memory layer.
const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// bufferSizeAlignment is the WebGPU requirement on buffer sizes.
const bufferSizeAlignment = 4

// API allocates WebGPU storage buffers. The data pointer of a buffer is its
// *wgpu.Buffer handle; WebGPU memory is not host addressable.
type API struct {
	device *wgpu.Device

	mu      sync.Mutex
	buffers map[unsafe.Pointer]*wgpu.Buffer

	// Memory tracking
	totalAllocatedBytes uint64
	activeBuffers       int64
}

// NewAPI creates a device API over an initialized WebGPU device.
func NewAPI(dev *wgpu.Device) *API {
	return &API{
		device:  dev,
		buffers: make(map[unsafe.Pointer]*wgpu.Buffer),
	}
}

// AllocDataSpace creates a storage buffer of at least size bytes.
// WebGPU buffers are always suitably aligned for storage binding, so the
// requested alignment is only validated.
func (a *API) AllocDataSpace(dev tensor.Device, size, alignment uint64, _ tensor.DataType) (unsafe.Pointer, error) {
	if alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("webgpu: alignment %d is not a power of two", alignment)
	}
	size = (size + bufferSizeAlignment - 1) / bufferSizeAlignment * bufferSizeAlignment
	if size == 0 {
		size = bufferSizeAlignment
	}

	buffer := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: storageUsage,
		Size:  size,
	})
	if buffer == nil {
		return nil, fmt.Errorf("webgpu: failed to create %d byte buffer on %s", size, dev)
	}

	ptr := unsafe.Pointer(buffer)
	a.mu.Lock()
	a.buffers[ptr] = buffer
	a.totalAllocatedBytes += size
	a.activeBuffers++
	a.mu.Unlock()
	return ptr, nil
}

// FreeDataSpace releases a buffer created by AllocDataSpace.
func (a *API) FreeDataSpace(_ tensor.Device, ptr unsafe.Pointer) error {
	a.mu.Lock()
	buffer, ok := a.buffers[ptr]
	delete(a.buffers, ptr)
	if ok {
		a.activeBuffers--
	}
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("webgpu: free of unknown buffer %p", ptr)
	}
	buffer.Release()
	return nil
}

// DataSize returns the flat size of a tensor. WebGPU exposes no other scopes.
func (a *API) DataSize(shape tensor.Shape, dtype tensor.DataType, scope string) (uint64, error) {
	return device.FlatDataSize(shape, dtype, scope)
}

// Buffer returns the WebGPU buffer behind a data pointer from AllocDataSpace.
func (a *API) Buffer(ptr unsafe.Pointer) (*wgpu.Buffer, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buffer, ok := a.buffers[ptr]
	return buffer, ok
}

// Stats returns the bytes ever allocated and the number of live buffers.
func (a *API) Stats() (totalAllocated uint64, active int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalAllocatedBytes, a.activeBuffers
}

// Register installs a WebGPU device API for WebGPU devices. There is no
// allocator factory: the manager's default naive and pooled allocators
// serve WebGPU buffers directly.
func Register(dev *wgpu.Device) *API {
	api := NewAPI(dev)
	device.Register(tensor.WebGPU, api)
	logger.L.Debug("webgpu backend registered")
	return api
}
