// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package memory

import (
	"github.com/born-ml/devmem/internal/backend/host"
	"github.com/born-ml/devmem/internal/memory"
	"github.com/born-ml/devmem/internal/tensor"
)

// Type aliases for public API

// Device is a concrete device instance.
type Device = tensor.Device

// DeviceType identifies a class of compute device.
type DeviceType = tensor.DeviceType

// Device type constants.
const (
	CPU     DeviceType = tensor.CPU
	CUDA    DeviceType = tensor.CUDA
	OpenCL  DeviceType = tensor.OpenCL
	Vulkan  DeviceType = tensor.Vulkan
	Metal   DeviceType = tensor.Metal
	WebGPU  DeviceType = tensor.WebGPU
	Hexagon DeviceType = tensor.Hexagon
	ExtDev  DeviceType = tensor.ExtDev
)

// DataType describes a tensor element type.
type DataType = tensor.DataType

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// AllocatorType selects an allocation strategy.
type AllocatorType = memory.AllocatorType

// Allocator strategies.
const (
	Naive  AllocatorType = memory.Naive
	Pooled AllocatorType = memory.Pooled
)

// Buffer describes one physical device allocation.
type Buffer = memory.Buffer

// Allocator produces and reclaims Buffers for a device.
type Allocator = memory.Allocator

// AllocatorFactory builds device-specific allocators.
type AllocatorFactory = memory.AllocatorFactory

// Manager owns one allocator per (device, strategy) pair.
type Manager = memory.Manager

// ManagerOption configures a Manager.
type ManagerOption = memory.ManagerOption

// PoolConfig tunes pooled allocators.
type PoolConfig = memory.PoolConfig

// PoolStats is a snapshot of pooled allocator counters.
type PoolStats = memory.PoolStats

// AllocatorStats describes one allocator owned by a Manager.
type AllocatorStats = memory.AllocatorStats

// Storage is a reference-counted buffer that tensor views share.
type Storage = memory.Storage

// Handle is a reference-counted tensor view.
type Handle = memory.Handle

// AllocationError reports a view that does not fit in its storage.
type AllocationError = memory.AllocationError

// Errors.
var (
	ErrInvalidDataType      = memory.ErrInvalidDataType
	ErrShapeOverflow        = memory.ErrShapeOverflow
	ErrNoDeviceAPI          = memory.ErrNoDeviceAPI
	ErrUnsupportedScope     = memory.ErrUnsupportedScope
	ErrUnknownAllocatorType = memory.ErrUnknownAllocatorType
	ErrAllocatorNotFound    = memory.ErrAllocatorNotFound
	ErrOutOfBounds          = memory.ErrOutOfBounds
)

// TextureScope is the host backend's pitched 2D image memory scope.
const TextureScope = host.TextureScope

// Data type constructors.
var (
	Float16  = tensor.Float16
	Float32  = tensor.Float32
	Float64  = tensor.Float64
	BFloat16 = tensor.BFloat16
	Int8     = tensor.Int8
	Int32    = tensor.Int32
	Int64    = tensor.Int64
	Uint8    = tensor.Uint8
	Bool     = tensor.Bool
	Vector   = tensor.Vector
)

// Manager access.
var (
	NewManager           = memory.NewManager
	WithPoolConfig       = memory.WithPoolConfig
	Global               = memory.Global
	GetOrCreateAllocator = memory.GetOrCreateAllocator
	GetAllocator         = memory.GetAllocator
	Clear                = memory.Clear
	DefaultPoolConfig    = memory.DefaultPoolConfig
	ParseAllocatorType   = memory.ParseAllocatorType
	ParseDeviceType      = tensor.ParseDeviceType

	RegisterAllocatorFactory = memory.RegisterAllocatorFactory
)

// Allocation.
var (
	Empty        = memory.Empty
	NewStorage   = memory.NewStorage
	AllocStorage = memory.AllocStorage
)

// UseHost installs the host backend for CPU devices. It is safe to call
// more than once.
func UseHost() {
	host.Register()
}
