// Package sync2 implements the runtime's refcounted synchronization
// objects, the compositor timeline semaphore and the imported client
// fence, as thin wrappers over internal/gpu.Bundle.
// It is named sync2 to avoid shadowing the standard sync package
// throughout the runtime's import graph.
package sync2

import (
	"sync/atomic"
	"time"

	"github.com/openxrd/openxrd/internal/gpu"
)

// CompositorSemaphore wraps a timeline semaphore plus its exported
// native sync handle, refcounted like every other resource a session
// owns.
type CompositorSemaphore struct {
	bundle   gpu.Bundle
	handle   gpu.SemaphoreHandle
	native   gpu.NativeHandle
	refCount atomic.Int32
}

// NewCompositorSemaphore creates a timeline semaphore via the bundle's
// create_semaphore and returns it with refcount 1.
func NewCompositorSemaphore(bundle gpu.Bundle) (*CompositorSemaphore, error) {
	handle, native, err := bundle.CreateSemaphore()
	if err != nil {
		return nil, err
	}
	cs := &CompositorSemaphore{bundle: bundle, handle: handle, native: native}
	cs.refCount.Store(1)
	return cs, nil
}

// Native returns the semaphore's exported native sync handle, which
// compositor_semaphore_create reports to the client as an inline value
// in its reply payload.
func (cs *CompositorSemaphore) Native() gpu.NativeHandle { return cs.native }

// AddRef increments the refcount: another owner, e.g. a layer-commit
// referencing this semaphore's wait, now holds it.
func (cs *CompositorSemaphore) AddRef() { cs.refCount.Add(1) }

// Wait blocks on the GPU-side timeline semaphore for the given value,
// distinguishing TIMEOUT from a GPU error via gpu.ErrTimeout.
func (cs *CompositorSemaphore) Wait(value uint64, timeout time.Duration) error {
	return cs.bundle.WaitSemaphore(cs.handle, value, timeout)
}

// DropRef decrements the refcount; at zero it waits for device idle
// and destroys the underlying primitive.
func (cs *CompositorSemaphore) DropRef() error {
	if cs.refCount.Add(-1) != 0 {
		return nil
	}
	if err := cs.bundle.DeviceWaitIdle(); err != nil {
		return err
	}
	return cs.bundle.DestroySemaphore(cs.handle)
}

// ImportedFence wraps a native sync handle imported from a client; its
// only operation is waiting for signal with a timeout.
type ImportedFence struct {
	bundle gpu.Bundle
	handle gpu.FenceHandle
}

// NewImportedFence imports native via the bundle's import_fence.
func NewImportedFence(bundle gpu.Bundle, native gpu.NativeHandle) (*ImportedFence, error) {
	handle, err := bundle.ImportFence(native)
	if err != nil {
		return nil, err
	}
	return &ImportedFence{bundle: bundle, handle: handle}, nil
}

// Wait blocks until the fence signals or timeout elapses.
func (f *ImportedFence) Wait(timeout time.Duration) error {
	return f.bundle.WaitFence(f.handle, timeout)
}

// Close destroys the imported fence handle.
func (f *ImportedFence) Close() error {
	return f.bundle.DestroyFence(f.handle)
}
