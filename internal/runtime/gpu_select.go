package runtime

import (
	"github.com/openxrd/openxrd/internal/gpu"
	"github.com/openxrd/openxrd/internal/gpu/swgpu"
	"github.com/openxrd/openxrd/internal/gpu/vkgpu"
	"github.com/openxrd/openxrd/internal/telemetry"
)

// GPUBackend selects which internal/gpu.Bundle the runtime allocates
// swapchains against.
type GPUBackend int

const (
	// GPUAuto tries Vulkan first and falls back to the software bundle
	// if no Vulkan-capable device is present, so the server still
	// starts on a CI box or a headless container.
	GPUAuto GPUBackend = iota
	GPUVulkan
	GPUSoftware
)

// selectBundle constructs the graphics bundle named by backend.
func selectBundle(backend GPUBackend) (gpu.Bundle, error) {
	switch backend {
	case GPUVulkan:
		return vkgpu.New()
	case GPUSoftware:
		return swgpu.New(), nil
	default:
		b, err := vkgpu.New()
		if err != nil {
			telemetry.Warnf("runtime: vulkan unavailable (%v), falling back to the software graphics bundle", err)
			return swgpu.New(), nil
		}
		return b, nil
	}
}
