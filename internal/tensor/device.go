package tensor

import "fmt"

// Device identifies the execution device tensors and models live on.
type Device int

// Supported execution devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	case Vulkan:
		return "vulkan"
	case Metal:
		return "metal"
	case WebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// ParseDevice resolves a device identifier string into a Device.
// Identifiers are validated before any state depending on them is mutated.
func ParseDevice(name string) (Device, error) {
	switch name {
	case "cpu":
		return CPU, nil
	case "cuda":
		return CUDA, nil
	case "vulkan":
		return Vulkan, nil
	case "metal":
		return Metal, nil
	case "webgpu":
		return WebGPU, nil
	default:
		return CPU, fmt.Errorf("unknown device %q (supported: cpu, cuda, vulkan, metal, webgpu)", name)
	}
}
