package memory

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/born-ml/devmem/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPooledReuse(t *testing.T) {
	api := useFakeAPI(t, tensor.ExtDev)
	pool := NewPooledAllocator(api, DefaultPoolConfig())

	first, err := pool.Alloc(extDev, 4096, 64, tensor.Float32())
	require.NoError(t, err)
	require.NoError(t, pool.Free(first))

	second, err := pool.Alloc(extDev, 2048, 64, tensor.Float32())
	require.NoError(t, err)

	allocs, frees, _ := api.counts()
	assert.Equal(t, 1, allocs, "second request must be served from the pool")
	assert.Zero(t, frees)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, uint64(4096), second.Size)

	stats := pool.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0, stats.Pooled)

	// After Clear the same size must go back to the device.
	require.NoError(t, pool.Free(second))
	pool.Clear()
	allocs, frees, live := api.counts()
	assert.Equal(t, 1, frees)
	assert.Zero(t, live)
	assert.Zero(t, pool.UsedMemory())

	_, err = pool.Alloc(extDev, 2048, 64, tensor.Float32())
	require.NoError(t, err)
	allocsAfter, _, _ := api.counts()
	assert.Equal(t, allocs+1, allocsAfter)
}

func TestPooledReusesLargerClass(t *testing.T) {
	api := useFakeAPI(t, tensor.ExtDev)
	pool := NewPooledAllocator(api, DefaultPoolConfig())

	large, err := pool.Alloc(extDev, 8192, 64, tensor.Float32())
	require.NoError(t, err)
	huge, err := pool.Alloc(extDev, 16384, 64, tensor.Float32())
	require.NoError(t, err)
	require.NoError(t, pool.Free(huge))
	require.NoError(t, pool.Free(large))

	small, err := pool.Alloc(extDev, 2048, 64, tensor.Float32())
	require.NoError(t, err)
	assert.Equal(t, large.Data, small.Data, "smallest fitting class is reused")
	assert.Equal(t, uint64(8192), small.Size, "buffer keeps its real size")

	allocs, _, _ := api.counts()
	assert.Equal(t, 2, allocs)

	// Freed back into its own class, not the requested one.
	require.NoError(t, pool.Free(small))
	stats := pool.Stats()
	assert.Equal(t, 2, stats.Pooled)
	assert.Equal(t, uint64(8192+16384), stats.PooledBytes)

	again, err := pool.Alloc(extDev, 8192, 64, tensor.Float32())
	require.NoError(t, err)
	assert.Equal(t, large.Data, again.Data)
	assert.Equal(t, uint64(2), pool.Stats().Hits)
}

func TestPooledRoundsToPage(t *testing.T) {
	api := useFakeAPI(t, tensor.ExtDev)
	pool := NewPooledAllocator(api, PoolConfig{PageSize: 1024})

	buf, err := pool.Alloc(extDev, 1500, 64, tensor.Uint8())
	require.NoError(t, err)
	assert.Equal(t, uint64(2048), buf.Size)
	assert.Equal(t, Pooled, buf.Type)
	require.NoError(t, pool.Free(buf))

	// Different size class: miss.
	other, err := pool.Alloc(extDev, 3000, 64, tensor.Uint8())
	require.NoError(t, err)
	assert.NotEqual(t, buf.Data, other.Data)
	assert.Equal(t, uint64(2048+3072), pool.UsedMemory())

	stats := pool.Stats()
	assert.Equal(t, 1, stats.Pooled)
	assert.Equal(t, uint64(2048), stats.PooledBytes)
	assert.Equal(t, uint64(2), stats.DeviceAllocs)
}

func TestPooledAlignment(t *testing.T) {
	api := useFakeAPI(t, tensor.ExtDev)
	pool := NewPooledAllocator(api, DefaultPoolConfig())

	buf, err := pool.Alloc(extDev, 4096, 64, tensor.Float32())
	require.NoError(t, err)
	require.NoError(t, pool.Free(buf))

	// Stricter alignment cannot reuse the 64-byte aligned buffer.
	strict, err := pool.Alloc(extDev, 4096, 128, tensor.Float32())
	require.NoError(t, err)
	assert.NotEqual(t, buf.Data, strict.Data)
	assert.Zero(t, uintptr(strict.Data)%128)

	// Looser alignment reuses it and keeps the original guarantee.
	loose, err := pool.Alloc(extDev, 4096, 32, tensor.Float32())
	require.NoError(t, err)
	assert.Equal(t, buf.Data, loose.Data)
	assert.Equal(t, uint64(64), loose.Alignment)
}

func TestPooledMaxPerSize(t *testing.T) {
	api := useFakeAPI(t, tensor.ExtDev)
	pool := NewPooledAllocator(api, PoolConfig{PageSize: 4096, MaxPooledPerSize: 1})

	a, err := pool.Alloc(extDev, 100, 64, tensor.Float32())
	require.NoError(t, err)
	b, err := pool.Alloc(extDev, 100, 64, tensor.Float32())
	require.NoError(t, err)

	require.NoError(t, pool.Free(a))
	require.NoError(t, pool.Free(b))

	_, frees, live := api.counts()
	assert.Equal(t, 1, frees, "second buffer overflows the size class")
	assert.Equal(t, 1, live)
	assert.Equal(t, 1, pool.Stats().Pooled)
}

func TestPooledDeviceError(t *testing.T) {
	api := useFakeAPI(t, tensor.ExtDev)
	api.limit = 1
	pool := NewPooledAllocator(api, DefaultPoolConfig())

	held, err := pool.Alloc(extDev, 4096, 64, tensor.Float32())
	require.NoError(t, err)

	_, err = pool.Alloc(extDev, 4096, 64, tensor.Float32())
	require.ErrorIs(t, err, errDeviceOOM)

	require.NoError(t, pool.Free(held))
	again, err := pool.Alloc(extDev, 4096, 64, tensor.Float32())
	require.NoError(t, err)
	assert.Equal(t, held.Data, again.Data)
}

func TestPooledConcurrentNoAlias(t *testing.T) {
	api := useFakeAPI(t, tensor.ExtDev)
	pool := NewPooledAllocator(api, DefaultPoolConfig())

	var (
		live sync.Map
		wg   sync.WaitGroup
	)
	errs := make(chan string, 64)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				buf, err := pool.Alloc(extDev, 4096, 64, tensor.Float32())
				if err != nil {
					errs <- err.Error()
					return
				}
				if _, loaded := live.LoadOrStore(uintptr(buf.Data), struct{}{}); loaded {
					errs <- "buffer handed out twice"
					return
				}
				live.Delete(uintptr(buf.Data))
				if err := pool.Free(buf); err != nil {
					errs <- err.Error()
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
	stats := pool.Stats()
	assert.Equal(t, uint64(1600), stats.Hits+stats.Misses)
	assert.LessOrEqual(t, stats.DeviceAllocs, uint64(8))
}

func TestPooledFreeForeignPointer(t *testing.T) {
	api := useFakeAPI(t, tensor.ExtDev)
	pool := NewPooledAllocator(api, DefaultPoolConfig())

	var x [64]byte
	require.NoError(t, pool.Free(Buffer{Device: extDev, Size: 4096, Alignment: 64, Data: unsafe.Pointer(&x[0])}))
	assert.Error(t, pool.ReleaseAll())
}

func TestPooledReleaseAllKeepsFailedBuffers(t *testing.T) {
	api := useFakeAPI(t, tensor.ExtDev)
	pool := NewPooledAllocator(api, DefaultPoolConfig())

	good, err := pool.Alloc(extDev, 4096, 64, tensor.Float32())
	require.NoError(t, err)
	require.NoError(t, pool.Free(good))

	var x [64]byte
	stray := Buffer{Device: extDev, Size: 4096, Alignment: 64, Data: unsafe.Pointer(&x[0])}
	require.NoError(t, pool.Free(stray))

	require.Error(t, pool.ReleaseAll())
	_, frees, live := api.counts()
	assert.Equal(t, 1, frees)
	assert.Zero(t, live)

	stats := pool.Stats()
	assert.Equal(t, 1, stats.Pooled, "buffer the device refused stays pooled")
	assert.Equal(t, uint64(4096), stats.PooledBytes)
	assert.Equal(t, uint64(1), stats.DeviceFrees)

	require.Error(t, pool.ReleaseAll(), "release is retried on the next call")
}
