// Package gpu defines the graphics bundle the runtime consumes: image
// allocation, view/sampler creation, timeline semaphores, command
// submission, and device-idle waits. The exact graphics API is
// replaceable; internal/gpu/vkgpu implements it over Vulkan and
// internal/gpu/swgpu implements it in plain Go for hosts and tests
// with no GPU.
package gpu

import "time"

// Format is an opaque pixel-format token the caller negotiates out of
// band; the bundle only needs to know whether it can allocate it.
type Format int32

// AddressMode selects a sampler's texture address mode.
type AddressMode int32

const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
)

// ImageCreateInfo describes one swapchain image array to allocate.
type ImageCreateInfo struct {
	Width, Height uint32
	ArrayLayers   uint32
	Format        Format
	Protected     bool // protected-content requested
	StaticImage   bool
}

// Image is one allocated or imported native image, plus the views and
// exportable handle the swapchain engine needs.
type Image struct {
	Native       NativeHandle
	ColorView    ViewHandle // alpha-preserving view
	StraightView ViewHandle // view forcing A = 1
	Dedicated    bool
	Size         uint64
}

// NativeHandle is a platform image/buffer handle usable across processes.
type NativeHandle uint64

// ViewHandle identifies a created image view.
type ViewHandle uint64

// SamplerHandle identifies a created sampler.
type SamplerHandle uint64

// SemaphoreHandle identifies a created timeline semaphore.
type SemaphoreHandle uint64

// FenceHandle identifies an imported fence.
type FenceHandle uint64

// CommandBuffer identifies a recorded, not-yet-submitted command buffer.
type CommandBuffer uint64

// ErrorClass distinguishes the swapchain-creation failure classes a
// client can act on.
type ErrorClass int

const (
	ErrNone ErrorClass = iota
	ErrFlagUnsupported
	ErrFormatUnsupported
	ErrGPU
)

// BundleError carries one of the distinguishable swapchain-creation
// failure classes.
type BundleError struct {
	Class ErrorClass
	Msg   string
}

func (e *BundleError) Error() string { return e.Msg }

// Bundle is the abstract graphics back-end consumed by
// internal/swapchain, internal/compositor, and internal/sync2.
type Bundle interface {
	// AllocateImages creates count images per info, returning one Image
	// per array-layer-aware view pair, plus the two samplers shared by
	// the whole swapchain.
	AllocateImages(info ImageCreateInfo, count int) ([]Image, [2]SamplerHandle, error)

	// ImportImages wraps caller-provided native images with the same
	// view/sampler setup AllocateImages would have created.
	ImportImages(info ImageCreateInfo, natives []NativeHandle) ([]Image, [2]SamplerHandle, error)

	// TransitionToShaderReadOnly submits a one-shot command buffer that
	// transitions every image to the shader-read-only layout.
	TransitionToShaderReadOnly(images []Image) error

	// DestroyImages releases views, samplers, and native handles for a
	// swapchain's images. Called only by garbage collection, never while
	// GPU work touching them could still be in flight.
	DestroyImages(images []Image, samplers [2]SamplerHandle) error

	// CreateSemaphore creates a timeline semaphore with an exported
	// native sync handle.
	CreateSemaphore() (SemaphoreHandle, NativeHandle, error)
	// ImportFence wraps a native sync handle imported from a client.
	ImportFence(native NativeHandle) (FenceHandle, error)
	// WaitSemaphore blocks until the timeline semaphore reaches value or
	// timeout elapses.
	WaitSemaphore(sem SemaphoreHandle, value uint64, timeout time.Duration) error
	// WaitFence blocks until the imported fence signals or timeout
	// elapses.
	WaitFence(fence FenceHandle, timeout time.Duration) error
	DestroySemaphore(sem SemaphoreHandle) error
	DestroyFence(fence FenceHandle) error

	// DeviceWaitIdle blocks until all submitted GPU work has completed.
	// The deferred-destruction stack must call this before destroying
	// any view/sampler/image.
	DeviceWaitIdle() error
}

// ErrTimeout is returned by WaitSemaphore/WaitFence when the timeout
// elapses before the signal, distinctly from a GPU error.
var ErrTimeout = &BundleError{Class: ErrNone, Msg: "gpu: wait timed out"}
