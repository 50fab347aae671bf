// Package tensor provides the tensor primitives used across the attribution
// toolkit: raw row-major tensors, shapes, data types and execution devices.
//
// This package wraps the internal tensor implementation and provides a clean
// public API.
//
// Example usage:
//
//	import "github.com/Bots-Avatar/inseq/tensor"
//
//	t, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, tensor.CPU)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(t.Shape(), t.AsFloat32())
package tensor

import (
	"github.com/Bots-Avatar/inseq/internal/tensor"
)

// RawTensor is the low-level tensor representation used throughout the
// attribution pipeline.
type RawTensor = tensor.RawTensor

// Shape describes tensor dimensions.
type Shape = tensor.Shape

// DataType identifies a tensor element type.
type DataType = tensor.DataType

// Device identifies an execution device.
type Device = tensor.Device

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
)

// Supported devices.
const (
	CPU    = tensor.CPU
	CUDA   = tensor.CUDA
	Vulkan = tensor.Vulkan
	Metal  = tensor.Metal
	WebGPU = tensor.WebGPU
)

// NewRaw creates a zero-initialized tensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromFloat32 creates a Float32 tensor from a flat slice.
func FromFloat32(values []float32, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromFloat32(values, shape, device)
}

// FromInt32 creates an Int32 tensor from a flat slice.
func FromInt32(values []int32, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromInt32(values, shape, device)
}

// ParseDevice resolves a device by name ("cpu", "cuda", "vulkan", "metal",
// "webgpu"). Unknown names fail without side effects.
func ParseDevice(name string) (Device, error) {
	return tensor.ParseDevice(name)
}
