package memory

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/born-ml/devmem/internal/device"
	"github.com/born-ml/devmem/internal/logger"
	"github.com/born-ml/devmem/internal/tensor"
)

// DefaultPageSize is the granularity pooled allocations are rounded up to.
const DefaultPageSize = 4096

// PoolConfig tunes a PooledAllocator.
type PoolConfig struct {
	// PageSize is the size class granularity. Requests are rounded up to it.
	PageSize uint64
	// MaxPooledPerSize caps the free buffers kept per size class.
	// Buffers freed into a full class go back to the device. 0 means no cap.
	MaxPooledPerSize int
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{PageSize: DefaultPageSize}
}

// PoolStats is a snapshot of pooled allocator counters.
type PoolStats struct {
	Hits         uint64 // Requests served from the pool
	Misses       uint64 // Requests that went to the device
	DeviceAllocs uint64
	DeviceFrees  uint64
	Pooled       int    // Free buffers currently cached
	PooledBytes  uint64 // Bytes held by cached buffers
	UsedBytes    uint64 // Bytes held on the device, cached or live
}

// PooledAllocator recycles freed buffers by page-rounded size.
// It is safe for concurrent use.
type PooledAllocator struct {
	flatScopes

	api    device.API
	config PoolConfig

	mu    sync.Mutex
	pool  map[uint64][]Buffer // rounded size -> free buffers
	used  uint64
	stats PoolStats
}

// NewPooledAllocator creates a pooling allocator over api.
func NewPooledAllocator(api device.API, config PoolConfig) *PooledAllocator {
	if config.PageSize == 0 {
		config.PageSize = DefaultPageSize
	}
	return &PooledAllocator{
		api:    api,
		config: config,
		pool:   make(map[uint64][]Buffer),
	}
}

// Type returns Pooled.
func (a *PooledAllocator) Type() AllocatorType { return Pooled }

// Alloc returns a pooled buffer of the same size class with a compatible
// alignment, or allocates a new one from the device on a miss.
func (a *PooledAllocator) Alloc(dev tensor.Device, size, alignment uint64, typeHint tensor.DataType) (Buffer, error) {
	rounded := roundUp(size, a.config.PageSize)

	a.mu.Lock()
	defer a.mu.Unlock()

	if buf, ok := a.take(rounded, alignment); ok {
		a.stats.Hits++
		return buf, nil
	}

	a.stats.Misses++
	ptr, err := a.api.AllocDataSpace(dev, rounded, alignment, typeHint)
	if err != nil {
		return Buffer{}, fmt.Errorf("memory: allocate %d bytes on %s: %w", rounded, dev, err)
	}
	a.stats.DeviceAllocs++
	a.used += rounded

	return Buffer{
		Device:    dev,
		Size:      rounded,
		Alignment: alignment,
		Data:      ptr,
		Type:      Pooled,
	}, nil
}

// AllocScoped serves global-scope requests as flat allocations.
func (a *PooledAllocator) AllocScoped(dev tensor.Device, shape tensor.Shape, typeHint tensor.DataType, scope string) (Buffer, error) {
	return RedirectScoped(a, a.api, dev, shape, typeHint, scope)
}

// Free returns buf to the pool. Device memory is kept unless the size class is full.
func (a *PooledAllocator) Free(buf Buffer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := a.pool[buf.Size]
	if a.config.MaxPooledPerSize > 0 && len(bucket) >= a.config.MaxPooledPerSize {
		// Pool is full - release buffer immediately
		return a.freeDevice(buf)
	}
	a.pool[buf.Size] = append(bucket, buf)
	return nil
}

// Clear frees every pooled buffer back to the device.
func (a *PooledAllocator) Clear() {
	if err := a.ReleaseAll(); err != nil {
		logger.L.Error("pooled allocator clear", "error", err)
	}
}

// ReleaseAll frees every pooled buffer back to the device and empties the pool.
func (a *PooledAllocator) ReleaseAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	released := 0
	for size, bucket := range a.pool {
		// Buffers the device refused to free stay pooled and accounted for.
		var kept []Buffer
		for _, buf := range bucket {
			if err := a.freeDevice(buf); err != nil {
				errs = append(errs, err)
				kept = append(kept, buf)
				continue
			}
			released++
		}
		if len(kept) == 0 {
			delete(a.pool, size)
		} else {
			a.pool[size] = kept
		}
	}
	logger.L.Debug("pooled allocator released buffers", "count", released, "used", a.used)
	return errors.Join(errs...)
}

// UsedMemory returns the bytes held on the device, including pooled buffers.
func (a *PooledAllocator) UsedMemory() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Stats returns a snapshot of the pool counters.
func (a *PooledAllocator) Stats() PoolStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.stats
	stats.UsedBytes = a.used
	for size, bucket := range a.pool {
		stats.Pooled += len(bucket)
		stats.PooledBytes += size * uint64(len(bucket))
	}
	return stats
}

// take removes and returns a pooled buffer of at least size bytes whose
// alignment satisfies the request. The exact size class is tried first, then
// the smallest larger class. Callers hold a.mu.
func (a *PooledAllocator) take(size, alignment uint64) (Buffer, bool) {
	if alignment == 0 {
		alignment = 1
	}
	if buf, ok := a.takeFrom(size, alignment); ok {
		return buf, true
	}

	classes := make([]uint64, 0, len(a.pool))
	for class := range a.pool {
		if class > size {
			classes = append(classes, class)
		}
	}
	slices.Sort(classes)
	for _, class := range classes {
		if buf, ok := a.takeFrom(class, alignment); ok {
			return buf, true
		}
	}
	return Buffer{}, false
}

// takeFrom removes the most recently freed buffer of one size class with a
// compatible alignment. Callers hold a.mu.
func (a *PooledAllocator) takeFrom(class, alignment uint64) (Buffer, bool) {
	bucket := a.pool[class]
	for i := len(bucket) - 1; i >= 0; i-- {
		buf := bucket[i]
		if buf.Alignment >= alignment && buf.Alignment%alignment == 0 {
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(a.pool, class)
			} else {
				a.pool[class] = bucket
			}
			return buf, true
		}
	}
	return Buffer{}, false
}

// freeDevice returns buf to the device. Callers hold a.mu.
func (a *PooledAllocator) freeDevice(buf Buffer) error {
	if err := a.api.FreeDataSpace(buf.Device, buf.Data); err != nil {
		return fmt.Errorf("memory: free %d bytes on %s: %w", buf.Size, buf.Device, err)
	}
	a.stats.DeviceFrees++
	a.used -= buf.Size
	return nil
}
