// Package device is the registry of per-device-type low-level memory APIs.
//
// A backend installs its API once at startup with Register; the memory layer
// resolves it with Get whenever it needs raw allocations or tensor sizes.
package device

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/devmem/internal/tensor"
)

// ErrNoDeviceAPI is returned by Get when no API is registered for a device type.
var ErrNoDeviceAPI = errors.New("device: no API registered")

// API is the raw memory interface of one device type.
type API interface {
	// AllocDataSpace allocates size bytes aligned to alignment on dev.
	AllocDataSpace(dev tensor.Device, size, alignment uint64, typeHint tensor.DataType) (unsafe.Pointer, error)

	// FreeDataSpace releases memory obtained from AllocDataSpace.
	FreeDataSpace(dev tensor.Device, ptr unsafe.Pointer) error

	// DataSize returns the bytes a tensor of shape and dtype needs in the
	// given memory scope. An empty scope means flat global memory.
	DataSize(shape tensor.Shape, dtype tensor.DataType, scope string) (uint64, error)
}

var (
	mu   sync.RWMutex
	apis = make(map[tensor.DeviceType]API)
)

// Register installs api for every device of type t, replacing any earlier registration.
func Register(t tensor.DeviceType, api API) {
	mu.Lock()
	defer mu.Unlock()
	apis[t] = api
}

// Unregister removes the API for t.
func Unregister(t tensor.DeviceType) {
	mu.Lock()
	defer mu.Unlock()
	delete(apis, t)
}

// Get returns the API registered for t.
func Get(t tensor.DeviceType) (API, error) {
	mu.RLock()
	defer mu.RUnlock()
	api, ok := apis[t]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoDeviceAPI, t)
	}
	return api, nil
}

// FlatDataSize is the data size oracle for devices whose only memory kind
// is flat linear memory. Any scope other than "" or "global" is rejected.
func FlatDataSize(shape tensor.Shape, dtype tensor.DataType, scope string) (uint64, error) {
	if scope != "" && scope != "global" {
		return 0, fmt.Errorf("device: memory scope %q not supported", scope)
	}
	return tensor.DataSize(shape, dtype)
}
