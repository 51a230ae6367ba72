// Package swgpu is a software graphics bundle: it allocates plain Go
// byte slices in place of native GPU images and tracks timeline
// semaphores with a condition variable instead of real GPU sync
// primitives. It exists so internal/swapchain, internal/compositor,
// and internal/sync2 can be exercised on any host, with no GPU and no
// cgo, behind the same interface the Vulkan bundle implements.
package swgpu

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/openxrd/openxrd/internal/gpu"
	xdraw "golang.org/x/image/draw"
)

// Bundle is the software graphics bundle.
type Bundle struct {
	mu         sync.Mutex
	nextHandle uint64
	backing    map[gpu.NativeHandle][]byte
	semaphores map[gpu.SemaphoreHandle]*timelineSemaphore
	fences     map[gpu.FenceHandle]*importedFence
}

type timelineSemaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value uint64
}

type importedFence struct {
	mu       sync.Mutex
	cond     *sync.Cond
	signaled bool
}

// New returns a ready software bundle.
func New() *Bundle {
	b := &Bundle{
		backing:    make(map[gpu.NativeHandle][]byte),
		semaphores: make(map[gpu.SemaphoreHandle]*timelineSemaphore),
		fences:     make(map[gpu.FenceHandle]*importedFence),
	}
	return b
}

func (b *Bundle) allocHandle() uint64 {
	b.nextHandle++
	return b.nextHandle
}

func (b *Bundle) AllocateImages(info gpu.ImageCreateInfo, count int) ([]gpu.Image, [2]gpu.SamplerHandle, error) {
	if info.Width == 0 || info.Height == 0 {
		return nil, [2]gpu.SamplerHandle{}, &gpu.BundleError{Class: gpu.ErrFormatUnsupported, Msg: "swgpu: zero-sized image requested"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	size := uint64(info.Width) * uint64(info.Height) * uint64(info.ArrayLayers) * 4
	images := make([]gpu.Image, count)
	for i := range images {
		native := gpu.NativeHandle(b.allocHandle())
		b.backing[native] = make([]byte, size)
		images[i] = gpu.Image{
			Native:       native,
			ColorView:    gpu.ViewHandle(b.allocHandle()),
			StraightView: gpu.ViewHandle(b.allocHandle()),
			Dedicated:    info.Protected,
			Size:         size,
		}
	}
	samplers := [2]gpu.SamplerHandle{gpu.SamplerHandle(b.allocHandle()), gpu.SamplerHandle(b.allocHandle())}
	return images, samplers, nil
}

func (b *Bundle) ImportImages(info gpu.ImageCreateInfo, natives []gpu.NativeHandle) ([]gpu.Image, [2]gpu.SamplerHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	images := make([]gpu.Image, len(natives))
	for i, native := range natives {
		if _, ok := b.backing[native]; !ok {
			size := uint64(info.Width) * uint64(info.Height) * uint64(info.ArrayLayers) * 4
			b.backing[native] = make([]byte, size)
		}
		images[i] = gpu.Image{
			Native:       native,
			ColorView:    gpu.ViewHandle(b.allocHandle()),
			StraightView: gpu.ViewHandle(b.allocHandle()),
		}
	}
	samplers := [2]gpu.SamplerHandle{gpu.SamplerHandle(b.allocHandle()), gpu.SamplerHandle(b.allocHandle())}
	return images, samplers, nil
}

func (b *Bundle) TransitionToShaderReadOnly(images []gpu.Image) error {
	return nil // no real layout state to transition in software
}

func (b *Bundle) DestroyImages(images []gpu.Image, samplers [2]gpu.SamplerHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, img := range images {
		delete(b.backing, img.Native)
	}
	return nil
}

func (b *Bundle) CreateSemaphore() (gpu.SemaphoreHandle, gpu.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := gpu.SemaphoreHandle(b.allocHandle())
	ts := &timelineSemaphore{}
	ts.cond = sync.NewCond(&ts.mu)
	b.semaphores[h] = ts
	return h, gpu.NativeHandle(h), nil
}

func (b *Bundle) ImportFence(native gpu.NativeHandle) (gpu.FenceHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := gpu.FenceHandle(b.allocHandle())
	f := &importedFence{}
	f.cond = sync.NewCond(&f.mu)
	b.fences[h] = f
	return h, nil
}

// Signal advances a semaphore's timeline value; a test harness drives it
// to stand in for GPU completion.
func (b *Bundle) Signal(sem gpu.SemaphoreHandle, value uint64) error {
	b.mu.Lock()
	ts, ok := b.semaphores[sem]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("swgpu: unknown semaphore %d", sem)
	}
	ts.mu.Lock()
	if value > ts.value {
		ts.value = value
	}
	ts.cond.Broadcast()
	ts.mu.Unlock()
	return nil
}

// SignalFence marks an imported fence signaled.
func (b *Bundle) SignalFence(fence gpu.FenceHandle) error {
	b.mu.Lock()
	f, ok := b.fences[fence]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("swgpu: unknown fence %d", fence)
	}
	f.mu.Lock()
	f.signaled = true
	f.cond.Broadcast()
	f.mu.Unlock()
	return nil
}

func (b *Bundle) WaitSemaphore(sem gpu.SemaphoreHandle, value uint64, timeout time.Duration) error {
	b.mu.Lock()
	ts, ok := b.semaphores[sem]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("swgpu: unknown semaphore %d", sem)
	}
	return waitCond(&ts.mu, ts.cond, timeout, func() bool { return ts.value >= value })
}

func (b *Bundle) WaitFence(fence gpu.FenceHandle, timeout time.Duration) error {
	b.mu.Lock()
	f, ok := b.fences[fence]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("swgpu: unknown fence %d", fence)
	}
	return waitCond(&f.mu, f.cond, timeout, func() bool { return f.signaled })
}

// waitCond blocks on cond until predicate() is true or timeout elapses,
// returning gpu.ErrTimeout in the latter case. sync.Cond has no native
// timeout, so a watcher goroutine wakes the waiter at the deadline.
func waitCond(mu *sync.Mutex, cond *sync.Cond, timeout time.Duration, predicate func() bool) error {
	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		close(done)
		cond.Broadcast()
	})
	defer timer.Stop()

	mu.Lock()
	defer mu.Unlock()
	for !predicate() {
		select {
		case <-done:
			return gpu.ErrTimeout
		default:
		}
		cond.Wait()
	}
	return nil
}

func (b *Bundle) DestroySemaphore(sem gpu.SemaphoreHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.semaphores, sem)
	return nil
}

func (b *Bundle) DestroyFence(fence gpu.FenceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fences, fence)
	return nil
}

func (b *Bundle) DeviceWaitIdle() error {
	return nil
}

// Composite blits the src image's srcW x srcH RGBA backing store into
// dst's dstW x dstH backing store at destRect, scaling if the
// rectangle's size differs from the source. It stands in for the GPU
// composite a real back-end would issue as a draw call.
func (b *Bundle) Composite(dst gpu.NativeHandle, dstW, dstH int, src gpu.NativeHandle, srcW, srcH int, destRect image.Rectangle) error {
	b.mu.Lock()
	dstBuf, ok := b.backing[dst]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("swgpu: unknown destination image %d", dst)
	}
	srcBuf, ok := b.backing[src]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("swgpu: unknown source image %d", src)
	}

	dstImg := &image.RGBA{Pix: dstBuf, Stride: dstW * 4, Rect: image.Rect(0, 0, dstW, dstH)}
	srcImg := &image.RGBA{Pix: srcBuf, Stride: srcW * 4, Rect: image.Rect(0, 0, srcW, srcH)}

	if destRect.Dx() == srcW && destRect.Dy() == srcH {
		draw.Draw(dstImg, destRect, srcImg, image.Point{}, draw.Over)
		return nil
	}
	xdraw.CatmullRom.Scale(dstImg, destRect, srcImg, srcImg.Bounds(), xdraw.Over, nil)
	return nil
}

// Backing returns the set of native handles with live backing
// storage, for tests asserting that destruction actually frees image
// memory.
func (b *Bundle) Backing() map[gpu.NativeHandle][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[gpu.NativeHandle][]byte, len(b.backing))
	for k, v := range b.backing {
		out[k] = v
	}
	return out
}

var _ gpu.Bundle = (*Bundle)(nil)
