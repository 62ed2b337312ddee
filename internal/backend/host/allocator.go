package host

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/devmem/internal/device"
	"github.com/born-ml/devmem/internal/logger"
	"github.com/born-ml/devmem/internal/memory"
	"github.com/born-ml/devmem/internal/tensor"
)

// Image2D is the view object handed out for TextureScope tensors.
type Image2D struct {
	Base   unsafe.Pointer // First byte of the image inside the storage buffer
	Layout TextureLayout
}

// Row returns row i of the image as a byte slice.
func (img *Image2D) Row(i uint64) []byte {
	//nolint:gosec // unsafe.Slice over host memory sized by the texture layout
	return unsafe.Slice((*byte)(unsafe.Add(img.Base, i*img.Layout.Pitch)), img.Layout.RowBytes)
}

// TextureAllocator decorates a host allocator with TextureScope support.
type TextureAllocator struct {
	memory.Allocator

	api device.API

	mu    sync.Mutex
	views map[unsafe.Pointer]*Image2D
}

// NewTextureAllocator wraps inner. Flat requests go straight to inner.
func NewTextureAllocator(inner memory.Allocator, api device.API) *TextureAllocator {
	return &TextureAllocator{
		Allocator: inner,
		api:       api,
		views:     make(map[unsafe.Pointer]*Image2D),
	}
}

// Unwrap returns the decorated allocator.
func (a *TextureAllocator) Unwrap() memory.Allocator { return a.Allocator }

// AllowMemoryScope accepts global memory and TextureScope.
func (a *TextureAllocator) AllowMemoryScope(scope string) bool {
	return scope == "" || scope == "global" || scope == TextureScope
}

// AllocScoped allocates flat memory sized for the scope's layout.
func (a *TextureAllocator) AllocScoped(dev tensor.Device, shape tensor.Shape, typeHint tensor.DataType, scope string) (memory.Buffer, error) {
	return memory.RedirectScoped(a, a.api, dev, shape, typeHint, scope)
}

// CreateView returns an *Image2D over the start of buf.
func (a *TextureAllocator) CreateView(buf memory.Buffer, shape tensor.Shape, dtype tensor.DataType, scope string) (unsafe.Pointer, error) {
	if scope != TextureScope {
		return nil, fmt.Errorf("%w: host cannot create view with memory scope %q", memory.ErrUnsupportedScope, scope)
	}
	layout, err := TextureLayoutOf(shape, dtype)
	if err != nil {
		return nil, err
	}
	img := &Image2D{Base: buf.Data, Layout: layout}
	ptr := unsafe.Pointer(img)

	a.mu.Lock()
	a.views[ptr] = img
	a.mu.Unlock()
	return ptr, nil
}

// FreeView forgets a view made by CreateView.
func (a *TextureAllocator) FreeView(_ tensor.Device, data unsafe.Pointer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.views[data]; !ok {
		return fmt.Errorf("host: free of unknown view %p", data)
	}
	delete(a.views, data)
	return nil
}

// Views returns the number of live texture views.
func (a *TextureAllocator) Views() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.views)
}

var registerOnce sync.Once

// Register installs the host device API and the host allocator factory for
// CPU devices. Later calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		api := NewAPI()
		device.Register(tensor.CPU, api)
		memory.RegisterAllocatorFactory(tensor.CPU, Factory(api))
		logger.L.Debug("host backend registered")
	})
}

// Factory returns an allocator factory building texture capable host
// allocators over api. Pooled allocators use the manager's pool config.
func Factory(api device.API) memory.AllocatorFactory {
	return func(_ tensor.Device, typ memory.AllocatorType, config memory.PoolConfig) (memory.Allocator, error) {
		switch typ {
		case memory.Naive:
			return NewTextureAllocator(memory.NewNaiveAllocator(api), api), nil
		case memory.Pooled:
			return NewTextureAllocator(memory.NewPooledAllocator(api, config), api), nil
		default:
			return nil, nil
		}
	}
}
