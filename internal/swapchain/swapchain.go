// Package swapchain implements the per-session GPU swapchain engine:
// image allocation against an internal/gpu.Bundle, the acquire FIFO,
// per-image use-counts with condition-variable waits, and a lock-free
// deferred-destruction stack drained once per frame by the render
// thread.
package swapchain

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openxrd/openxrd/internal/gpu"
)

// ID identifies one swapchain within a client session's owned array.
type ID uint32

// CreateInfo mirrors gpu.ImageCreateInfo plus the STATIC_IMAGE flag
// get_swapchain_create_properties inspects.
type CreateInfo struct {
	gpu.ImageCreateInfo
}

// DefaultImageCount derives image_count per spec: 1 for static
// content, 3 otherwise.
func DefaultImageCount(info CreateInfo) int {
	if info.StaticImage {
		return 1
	}
	return 3
}

// Swapchain is a bounded collection of GPU image slots plus the
// acquire FIFO and per-image use-count bookkeeping.
type Swapchain struct {
	bundle   gpu.Bundle
	images   []gpu.Image
	samplers [2]gpu.SamplerHandle

	mu           sync.Mutex
	fifo         []int  // queue of currently-released image indices
	inFifo       []bool // membership, indexed by image index
	useCount     []int
	lastReleased int // most recently Release()d index, -1 if none yet
	cond         *sync.Cond

	refCount atomic.Int32
}

// Sentinel errors the dispatch boundary translates to their own
// status codes.
var (
	ErrNoImageAvailable = &gpu.BundleError{Class: gpu.ErrNone, Msg: "swapchain: acquire FIFO empty"}
	ErrFifoFull         = &gpu.BundleError{Class: gpu.ErrNone, Msg: "swapchain: release FIFO overflow"}
)

// Create allocates image_count images per info and primes the acquire
// FIFO with every index, then transitions all images to
// shader-read-only in one submit.
func Create(bundle gpu.Bundle, info CreateInfo, imageCount int) (*Swapchain, error) {
	images, samplers, err := bundle.AllocateImages(info.ImageCreateInfo, imageCount)
	if err != nil {
		return nil, err
	}
	if err := bundle.TransitionToShaderReadOnly(images); err != nil {
		bundle.DestroyImages(images, samplers)
		return nil, err
	}
	return newSwapchain(bundle, images, samplers), nil
}

// Import wraps caller-provided native images with the same
// view/sampler setup and FIFO priming Create performs.
func Import(bundle gpu.Bundle, info CreateInfo, natives []gpu.NativeHandle) (*Swapchain, error) {
	images, samplers, err := bundle.ImportImages(info.ImageCreateInfo, natives)
	if err != nil {
		return nil, err
	}
	return newSwapchain(bundle, images, samplers), nil
}

func newSwapchain(bundle gpu.Bundle, images []gpu.Image, samplers [2]gpu.SamplerHandle) *Swapchain {
	sc := &Swapchain{
		bundle:       bundle,
		images:       images,
		samplers:     samplers,
		fifo:         make([]int, 0, len(images)),
		inFifo:       make([]bool, len(images)),
		useCount:     make([]int, len(images)),
		lastReleased: -1,
	}
	sc.cond = sync.NewCond(&sc.mu)
	for i := range images {
		sc.fifo = append(sc.fifo, i)
		sc.inFifo[i] = true
	}
	sc.refCount.Store(1)
	return sc
}

// ImageCount reports the number of image slots.
func (sc *Swapchain) ImageCount() int { return len(sc.images) }

// Images returns the swapchain's allocated images, for exporting
// native handles back to the client.
func (sc *Swapchain) Images() []gpu.Image { return sc.images }

// Acquire pops the oldest index from the FIFO. It does not touch
// use-count: a freshly acquired image is owned by the application, not
// referenced by any in-flight GPU submission, so swapchain_wait_image
// on it must return immediately.
func (sc *Swapchain) Acquire() (int, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if len(sc.fifo) == 0 {
		return 0, ErrNoImageAvailable
	}
	idx := sc.fifo[0]
	sc.fifo = sc.fifo[1:]
	sc.inFifo[idx] = false
	return idx, nil
}

// Submit marks the most recently Release()d image as referenced by a
// layer commit, bumping its use-count so a concurrent WaitImage blocks
// until MarkSubmissionComplete clears it. A layer reference only
// carries a swapchain ID, not a specific image index; the referenced
// image is always whichever image this swapchain last released,
// matching the xrEndFrame contract.
func (sc *Swapchain) Submit() (int, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.lastReleased < 0 {
		return 0, ErrNoImageAvailable
	}
	idx := sc.lastReleased
	sc.useCount[idx]++
	return idx, nil
}

// WaitImage blocks on the swapchain's condition variable until the
// image's use_count reaches 0 or timeout elapses. use_count is driven by
// Submit/MarkSubmissionComplete, not by Acquire, using the
// condvar-with-timer pattern of internal/gpu/swgpu's waitCond.
func (sc *Swapchain) WaitImage(index int, timeout time.Duration) error {
	if index < 0 || index >= len(sc.images) {
		return fmt.Errorf("swapchain: image index %d out of range [0, %d)", index, len(sc.images))
	}
	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		close(done)
		sc.cond.Broadcast()
	})
	defer timer.Stop()

	sc.mu.Lock()
	defer sc.mu.Unlock()
	for sc.useCount[index] > 0 {
		select {
		case <-done:
			return gpu.ErrTimeout
		default:
		}
		sc.cond.Wait()
	}
	return nil
}

// MarkSubmissionComplete decrements an image's use-count when GPU
// work that referenced it finishes, waking any WaitImage callers.
func (sc *Swapchain) MarkSubmissionComplete(index int) {
	sc.mu.Lock()
	if sc.useCount[index] > 0 {
		sc.useCount[index]--
	}
	sc.cond.Broadcast()
	sc.mu.Unlock()
}

// Release pushes index to the FIFO tail. Overflow (index already
// present, or the FIFO already holds every index) is a protocol
// error on the client's part, per spec.
func (sc *Swapchain) Release(index int) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if index < 0 || index >= len(sc.images) {
		return fmt.Errorf("swapchain: image index %d out of range [0, %d)", index, len(sc.images))
	}
	if sc.inFifo[index] || len(sc.fifo) >= len(sc.images) {
		return ErrFifoFull
	}
	sc.fifo = append(sc.fifo, index)
	sc.inFifo[index] = true
	sc.lastReleased = index
	return nil
}

// AddRef increments the swapchain's reference count (a new
// layer-commit referencing it, independent of the owning session).
func (sc *Swapchain) AddRef() { sc.refCount.Add(1) }

// DropRef drops a reference; when it reaches zero the swapchain is
// enqueued on stack for the render thread's next garbage_collect.
func (sc *Swapchain) DropRef(stack *DestroyStack) {
	if sc.refCount.Add(-1) == 0 {
		stack.push(sc)
	}
}

// destroy frees views, samplers and native handles. Only
// DestroyStack.GarbageCollect calls this, after DeviceWaitIdle.
func (sc *Swapchain) destroy() error {
	return sc.bundle.DestroyImages(sc.images, sc.samplers)
}

// destroyStackNode is one lock-free LIFO stack node.
type destroyStackNode struct {
	sc   *Swapchain
	next *destroyStackNode
}

// DestroyStack is the unbounded lock-free LIFO stack of
// swapchains-to-destroy, implemented with a CAS loop over
// *destroyStackNode. One stack is shared by every client session.
type DestroyStack struct {
	head   atomic.Pointer[destroyStackNode]
	bundle gpu.Bundle
}

// NewDestroyStack returns an empty stack bound to bundle, used by
// GarbageCollect to call DeviceWaitIdle before destroying anything.
func NewDestroyStack(bundle gpu.Bundle) *DestroyStack {
	return &DestroyStack{bundle: bundle}
}

func (s *DestroyStack) push(sc *Swapchain) {
	node := &destroyStackNode{sc: sc}
	for {
		old := s.head.Load()
		node.next = old
		if s.head.CompareAndSwap(old, node) {
			return
		}
	}
}

// popAll atomically removes and returns the whole stack (LIFO order is
// preserved by the caller draining the returned list front-to-back).
func (s *DestroyStack) popAll() *destroyStackNode {
	for {
		old := s.head.Load()
		if s.head.CompareAndSwap(old, nil) {
			return old
		}
	}
}

// GarbageCollect drains the stack, waits for device idle once, then
// destroys every popped swapchain's views/samplers/native handles.
// Called exactly once per frame by the render thread, outside any
// GPU-submission critical section, so no view or sampler is ever
// destroyed while the GPU could still be reading it.
func (s *DestroyStack) GarbageCollect() error {
	node := s.popAll()
	if node == nil {
		return nil
	}
	if err := s.bundle.DeviceWaitIdle(); err != nil {
		return err
	}
	for n := node; n != nil; n = n.next {
		if err := n.sc.destroy(); err != nil {
			return err
		}
	}
	return nil
}
