// Package compositor implements the common parts of the native
// compositor interface: per-frame layer accumulation into the slot
// ring, frame pacing, and the swapchain/sync plumbing concrete
// presentation back-ends (internal/sysconrad) build on.
package compositor

import (
	"fmt"
	"sync"
	"time"

	"github.com/openxrd/openxrd/internal/gpu"
	"github.com/openxrd/openxrd/internal/shm"
	"github.com/openxrd/openxrd/internal/swapchain"
	"github.com/openxrd/openxrd/internal/sync2"
)

// SwapchainCreateProperties is the result of
// get_swapchain_create_properties.
type SwapchainCreateProperties struct {
	ImageCount int
}

// Presenter is implemented by the concrete system compositor
// (internal/sysconrad and its headless/ebitenpresent back-ends): the
// piece that actually owns a native window or output surface.
type Presenter interface {
	// Predict returns a wake-up time for the next frame and the
	// nominal refresh period.
	Predict(now time.Time) (wake time.Time, period time.Duration)
	// MarkWoke notifies the concrete compositor that wait_frame's
	// sleep returned, so it can update its timing model.
	MarkWoke(actual time.Time)
	// Present hands a fully-built layer slot to the presentation
	// back-end.
	Present(slot shm.LayerSlot)
	// SetClientState pushes one session's arbiter-computed
	// visible/focused pair down to the presentation back-end.
	SetClientState(clientIndex int, visible, focused bool)
	// SetClientZOrder is the companion z-order push for the same
	// session.
	SetClientZOrder(clientIndex int, z int64)
}

// Base implements the shared compositor operations; concrete
// compositors embed it and supply a Presenter.
type Base struct {
	bundle    gpu.Bundle
	destroy   *swapchain.DestroyStack
	presenter Presenter
	ring      *shm.Ring

	// mu serializes the in-flight slot across client listener threads;
	// ring publication stays single-writer under it. Held only for
	// slot bookkeeping, never across a semaphore wait.
	mu       sync.Mutex
	current  shm.LayerSlot
	building bool
}

// NewBase wires a Base to the graphics bundle it allocates swapchains
// against, the ring it publishes committed slots into, and the
// concrete presenter.
func NewBase(bundle gpu.Bundle, ring *shm.Ring, presenter Presenter) *Base {
	return &Base{
		bundle:    bundle,
		destroy:   swapchain.NewDestroyStack(bundle),
		presenter: presenter,
		ring:      ring,
	}
}

// GetSwapchainCreateProperties derives image_count: 1 if
// CreateInfo.StaticImage is set, else 3. Concrete compositors may
// override by wrapping Base.
func (b *Base) GetSwapchainCreateProperties(info swapchain.CreateInfo) SwapchainCreateProperties {
	return SwapchainCreateProperties{ImageCount: swapchain.DefaultImageCount(info)}
}

// CreateSwapchain forwards to the swapchain engine.
func (b *Base) CreateSwapchain(info swapchain.CreateInfo) (*swapchain.Swapchain, error) {
	props := b.GetSwapchainCreateProperties(info)
	return swapchain.Create(b.bundle, info, props.ImageCount)
}

// ImportSwapchain forwards to the swapchain engine.
func (b *Base) ImportSwapchain(info swapchain.CreateInfo, natives []gpu.NativeHandle) (*swapchain.Swapchain, error) {
	return swapchain.Import(b.bundle, info, natives)
}

// CreateSemaphore forwards to internal/sync2.
func (b *Base) CreateSemaphore() (*sync2.CompositorSemaphore, error) {
	return sync2.NewCompositorSemaphore(b.bundle)
}

// ImportFence forwards to internal/sync2.
func (b *Base) ImportFence(native gpu.NativeHandle) (*sync2.ImportedFence, error) {
	return sync2.NewImportedFence(b.bundle, native)
}

// ErrSlotFull is returned by a layer_<kind> call once layer_count has
// reached shm.MaxLayers for the in-flight slot.
var ErrSlotFull = fmt.Errorf("compositor: layer slot full")

// LayerBegin resets the in-flight slot: layer_count = 0, and records
// frame_id, display_time and blend mode.
func (b *Base) LayerBegin(frameID uint64, displayTime int64, blend shm.BlendMode) {
	b.mu.Lock()
	b.current = shm.LayerSlot{
		FrameID:          frameID,
		DisplayTimeNanos: displayTime,
		BlendMode:        blend,
	}
	b.building = true
	b.mu.Unlock()
}

// AppendLayer appends one layer entry to the in-flight slot, storing
// up to four swapchain references and the layer's kind and owning
// device. Fails with ErrSlotFull once layer_count reaches
// shm.MaxLayers.
func (b *Base) AppendLayer(ref shm.LayerRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.building {
		return fmt.Errorf("compositor: AppendLayer called outside layer_begin/layer_commit")
	}
	if b.current.LayerCount >= shm.MaxLayers {
		return ErrSlotFull
	}
	b.current.Layers[b.current.LayerCount] = ref
	b.current.LayerCount++
	return nil
}

// LayerCommit waits on syncSem (if non-nil) at syncValue before handing
// the slot to the system compositor, then advances the slot ring. If
// no sync handle is given, the caller is assumed to have already
// finished rendering on the CPU.
func (b *Base) LayerCommit(syncSem *sync2.CompositorSemaphore, syncValue uint64, timeout time.Duration) (int, error) {
	b.mu.Lock()
	building := b.building
	b.mu.Unlock()
	if !building {
		return 0, fmt.Errorf("compositor: LayerCommit called outside layer_begin")
	}
	if syncSem != nil {
		// The GPU-side wait happens outside mu so a slow client
		// semaphore never stalls other sessions' slot work.
		if err := syncSem.Wait(syncValue, timeout); err != nil {
			return 0, err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.building {
		// A concurrent discard raced the semaphore wait.
		return 0, fmt.Errorf("compositor: LayerCommit called outside layer_begin")
	}
	idx := b.ring.Commit(b.current)
	b.presenter.Present(b.current)
	b.building = false
	return idx, nil
}

// WaitFrame calls Predict on the concrete compositor, sleeps precisely
// to that wake-up time via internal/compositor/pacer.go's high-precision
// sleeper, then calls MarkWoke so the concrete compositor can update
// its timing model, returning the predicted display time and period.
func (b *Base) WaitFrame() (displayTime time.Time, period time.Duration) {
	now := time.Now()
	wake, per := b.presenter.Predict(now)
	Sleep(wake)
	actual := time.Now()
	b.presenter.MarkWoke(actual)
	return wake, per
}

// Predict is the non-blocking half of WaitFrame: it asks the concrete
// compositor for the next predicted display time without sleeping,
// backing compositor_predict_frame so a client can start CPU-side work
// against the predicted time before it blocks on compositor_wait_woke.
func (b *Base) Predict() (displayTime time.Time, period time.Duration) {
	return b.presenter.Predict(time.Now())
}

// WaitWoke is the blocking half: sleep until wake, then notify the
// concrete compositor, backing compositor_wait_woke.
func (b *Base) WaitWoke(wake time.Time) {
	Sleep(wake)
	b.presenter.MarkWoke(time.Now())
}

// DiscardFrame abandons an in-flight layer_begin without committing it
// to the ring, backing compositor_discard_frame.
func (b *Base) DiscardFrame() {
	b.mu.Lock()
	b.building = false
	b.mu.Unlock()
}

// GarbageCollect drains the deferred-destruction stack. Called exactly
// once per frame by the render thread, outside any GPU-submission
// critical section.
func (b *Base) GarbageCollect() error {
	return b.destroy.GarbageCollect()
}

// DestroyStack exposes the stack so a session can enqueue a dropped
// swapchain's final DropRef.
func (b *Base) DestroyStack() *swapchain.DestroyStack {
	return b.destroy
}

// ClientHandle is a session's native compositor reference: a thin
// handle attached at session_create and dropped at cleanup, used to
// forward the global arbiter's visibility/focus/z-order decisions and
// the overlay resync broadcast to the shared Presenter without the
// session package depending on the presenter's full surface.
type ClientHandle struct {
	base  *Base
	index int
}

// NewClientHandle returns a handle attached to clientIndex. Sessions
// hold the returned pointer as their xc reference and discard it
// during cleanup.
func (b *Base) NewClientHandle(clientIndex int) *ClientHandle {
	return &ClientHandle{base: b, index: clientIndex}
}

// SetState forwards visible/focused to the attached presenter.
func (h *ClientHandle) SetState(visible, focused bool) {
	h.base.presenter.SetClientState(h.index, visible, focused)
}

// SetZOrder forwards a z-order change to the attached presenter.
func (h *ClientHandle) SetZOrder(z int64) {
	h.base.presenter.SetClientZOrder(h.index, z)
}

// Resync flips visibility off then on, the overlay re-synchronization
// broadcast fired whenever the primary designation changes under an
// overlay.
func (h *ClientHandle) Resync(visible bool) {
	h.base.presenter.SetClientState(h.index, false, false)
	h.base.presenter.SetClientState(h.index, visible, visible)
}
