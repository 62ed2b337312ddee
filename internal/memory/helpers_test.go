package memory

import (
	"errors"
	"sync"
	"testing"
	"unsafe"

	"github.com/born-ml/devmem/internal/device"
	"github.com/born-ml/devmem/internal/tensor"
)

var errDeviceOOM = errors.New("fake device: out of memory")

// fakeAPI is an instrumented device API backed by Go memory.
type fakeAPI struct {
	mu     sync.Mutex
	live   map[unsafe.Pointer][]byte
	allocs int
	frees  int
	limit  int // max live allocations, 0 = unlimited
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{live: make(map[unsafe.Pointer][]byte)}
}

// useFakeAPI registers a fresh fakeAPI for t for the duration of the test.
func useFakeAPI(t *testing.T, dt tensor.DeviceType) *fakeAPI {
	t.Helper()
	api := newFakeAPI()
	device.Register(dt, api)
	t.Cleanup(func() { device.Unregister(dt) })
	return api
}

func (f *fakeAPI) AllocDataSpace(_ tensor.Device, size, alignment uint64, _ tensor.DataType) (unsafe.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.limit > 0 && len(f.live) >= f.limit {
		return nil, errDeviceOOM
	}
	if alignment == 0 {
		alignment = 1
	}
	mem := make([]byte, size+alignment)
	ptr := unsafe.Pointer(&mem[0])
	if off := uintptr(ptr) % uintptr(alignment); off != 0 {
		ptr = unsafe.Add(ptr, uintptr(alignment)-off)
	}
	f.live[ptr] = mem
	f.allocs++
	return ptr, nil
}

func (f *fakeAPI) FreeDataSpace(_ tensor.Device, ptr unsafe.Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.live[ptr]; !ok {
		return errors.New("fake device: free of unknown pointer")
	}
	delete(f.live, ptr)
	f.frees++
	return nil
}

func (f *fakeAPI) DataSize(shape tensor.Shape, dtype tensor.DataType, _ string) (uint64, error) {
	return tensor.DataSize(shape, dtype)
}

func (f *fakeAPI) counts() (allocs, frees, live int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocs, f.frees, len(f.live)
}

// viewAllocator is a naive allocator that also supports a "texture" scope
// and counts view creation and destruction.
type viewAllocator struct {
	*NaiveAllocator
	api device.API

	mu      sync.Mutex
	views   map[unsafe.Pointer]*textureView
	created int
	freed   int
}

type textureView struct {
	base  unsafe.Pointer
	shape tensor.Shape
}

func newViewAllocator(api device.API) *viewAllocator {
	return &viewAllocator{
		NaiveAllocator: NewNaiveAllocator(api),
		api:            api,
		views:          make(map[unsafe.Pointer]*textureView),
	}
}

func (a *viewAllocator) AllowMemoryScope(scope string) bool {
	return isGlobalScope(scope) || scope == "texture"
}

func (a *viewAllocator) AllocScoped(dev tensor.Device, shape tensor.Shape, typeHint tensor.DataType, scope string) (Buffer, error) {
	return RedirectScoped(a, a.api, dev, shape, typeHint, scope)
}

func (a *viewAllocator) CreateView(buf Buffer, shape tensor.Shape, _ tensor.DataType, scope string) (unsafe.Pointer, error) {
	if scope != "texture" {
		return nil, ErrUnsupportedScope
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	v := &textureView{base: buf.Data, shape: shape.Clone()}
	ptr := unsafe.Pointer(v)
	a.views[ptr] = v
	a.created++
	return ptr, nil
}

func (a *viewAllocator) FreeView(_ tensor.Device, data unsafe.Pointer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.views[data]; !ok {
		return errors.New("unknown view")
	}
	delete(a.views, data)
	a.freed++
	return nil
}

// countingAllocator wraps an allocator and counts Free calls.
type countingAllocator struct {
	Allocator
	mu    sync.Mutex
	freed int
}

func (c *countingAllocator) Free(buf Buffer) error {
	c.mu.Lock()
	c.freed++
	c.mu.Unlock()
	return c.Allocator.Free(buf)
}

func (c *countingAllocator) frees() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freed
}
