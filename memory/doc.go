// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package memory provides device memory allocation and buffer lifetime
// management for the Born tensor runtime.
//
// # Overview
//
// Memory is obtained from an Allocator, one per (device, strategy) pair,
// owned by the process-wide Manager:
//   - Naive allocators call the device for every allocation and free
//   - Pooled allocators recycle freed buffers until Clear is called
//
// A standalone tensor is created with Empty. Executors that plan memory
// ahead of time allocate one Storage and carve many tensor views out of it;
// the storage buffer is freed when the last view and the creator's own
// reference are released.
//
// # Basic Usage
//
//	memory.UseHost()
//	cpu := memory.Device{Type: memory.CPU}
//
//	alloc, err := memory.GetOrCreateAllocator(cpu, memory.Pooled)
//	if err != nil {
//	    return err
//	}
//
//	arena, err := memory.AllocStorage(alloc, cpu, 1<<20, 64, memory.Float32())
//	if err != nil {
//	    return err
//	}
//	defer arena.Release()
//
//	x, err := arena.AllocTensor(0, memory.Shape{256, 256}, memory.Float32())
//	if err != nil {
//	    return err
//	}
//	defer x.Release()
//
// # Errors
//
// A view that does not fit in its storage is rejected with an
// *AllocationError matching ErrOutOfBounds; no handle is returned.
package memory
