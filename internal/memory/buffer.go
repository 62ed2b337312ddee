// Package memory implements device memory allocation and buffer lifetime:
// allocators, the process-wide allocator manager, and reference-counted
// storage that many tensor views can share.
package memory

import (
	"fmt"
	"unsafe"

	"github.com/born-ml/devmem/internal/tensor"
)

// AllocatorType selects an allocation strategy.
type AllocatorType int

// Supported allocator types.
const (
	// Naive issues one device allocation per request and frees immediately.
	Naive AllocatorType = iota + 1
	// Pooled recycles freed buffers and only returns memory to the device on Clear.
	Pooled
)

// String returns the strategy name.
func (t AllocatorType) String() string {
	switch t {
	case Naive:
		return "naive"
	case Pooled:
		return "pooled"
	default:
		return fmt.Sprintf("AllocatorType(%d)", int(t))
	}
}

// ParseAllocatorType converts "naive" or "pooled" to an AllocatorType.
func ParseAllocatorType(name string) (AllocatorType, error) {
	switch name {
	case "naive":
		return Naive, nil
	case "pooled":
		return Pooled, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAllocatorType, name)
	}
}

// Buffer describes one physical device allocation.
// The zero value is an empty placeholder with a nil Data pointer.
type Buffer struct {
	Device    tensor.Device
	Size      uint64 // Bytes actually allocated on the device
	Alignment uint64
	Data      unsafe.Pointer
	Type      AllocatorType // Strategy of the allocator that produced it
}

// isGlobalScope reports whether scope names flat linear memory.
func isGlobalScope(scope string) bool {
	return scope == "" || scope == "global"
}

// roundUp rounds n up to a multiple of m.
func roundUp(n, m uint64) uint64 {
	if m == 0 {
		return n
	}
	return (n + m - 1) / m * m
}
