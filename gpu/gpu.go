//go:build !nogpu

// Package gpu registers the wgpu compute device.
//
// Import this package to run escape-time evaluation and orbit tracing on
// the GPU through wgpu/hal compute shaders.
//
// If GPU initialization fails (no Vulkan adapter available), the
// registration is skipped with a warning and bbrot falls back to the
// software device.
//
// Usage:
//
//	import _ "github.com/gogpu/bbrot/gpu" // enable GPU compute
package gpu

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/bbrot"
	gpuimpl "github.com/gogpu/bbrot/internal/gpu"
)

func init() {
	dev := &gpuimpl.Device{}
	if err := bbrot.RegisterDevice(dev); err != nil {
		bbrot.Logger().Warn("GPU device not available", "err", err)
	}
}

// SetDeviceProvider configures the GPU device to use a shared GPU device
// from an external provider (e.g., gogpu). This avoids creating a separate
// GPU instance.
//
// The provider should also implement HalDevice() any and HalQueue() any
// for direct HAL access.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	return bbrot.SetDeviceProvider(provider)
}
