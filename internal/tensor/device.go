package tensor

import "fmt"

// DeviceType identifies a class of compute device.
type DeviceType int

// Supported device types.
const (
	CPU DeviceType = iota
	CUDA
	OpenCL
	Vulkan
	Metal
	WebGPU
	Hexagon
	// ExtDev is reserved for out-of-tree backends and tests.
	ExtDev
)

// String returns a human-readable device type name.
func (t DeviceType) String() string {
	switch t {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	case OpenCL:
		return "opencl"
	case Vulkan:
		return "vulkan"
	case Metal:
		return "metal"
	case WebGPU:
		return "webgpu"
	case Hexagon:
		return "hexagon"
	case ExtDev:
		return "ext_dev"
	default:
		return "unknown"
	}
}

// ParseDeviceType converts a name produced by DeviceType.String back to a DeviceType.
func ParseDeviceType(name string) (DeviceType, error) {
	for t := CPU; t <= ExtDev; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown device type %q", name)
}

// HasByteOffset reports whether tensors on this device type address their
// data through a separate byte offset field. Devices that don't (Hexagon)
// expect the offset folded into the data pointer.
func (t DeviceType) HasByteOffset() bool {
	return t != Hexagon
}

// Device is a concrete device instance: a type plus an ordinal.
type Device struct {
	Type DeviceType
	ID   int
}

// String renders the device as "type:id".
func (d Device) String() string {
	return fmt.Sprintf("%s:%d", d.Type, d.ID)
}
