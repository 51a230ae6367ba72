package swgpu

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/openxrd/openxrd/internal/gpu"
)

func TestAllocateImages(t *testing.T) {
	b := New()
	images, samplers, err := b.AllocateImages(gpu.ImageCreateInfo{Width: 4, Height: 4, ArrayLayers: 1}, 3)
	if err != nil {
		t.Fatalf("AllocateImages: %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("got %d images, want 3", len(images))
	}
	if samplers[0] == samplers[1] {
		t.Fatal("expected two distinct samplers")
	}
	if err := b.DestroyImages(images, samplers); err != nil {
		t.Fatalf("DestroyImages: %v", err)
	}
}

func TestAllocateImagesRejectsZeroSize(t *testing.T) {
	b := New()
	_, _, err := b.AllocateImages(gpu.ImageCreateInfo{Width: 0, Height: 4}, 1)
	if err == nil {
		t.Fatal("expected error for zero-width image")
	}
	var bundleErr *gpu.BundleError
	if be, ok := err.(*gpu.BundleError); !ok || be.Class != gpu.ErrFormatUnsupported {
		t.Fatalf("got %v (%T), want ErrFormatUnsupported", err, bundleErr)
	}
}

func TestSemaphoreWaitSignal(t *testing.T) {
	b := New()
	sem, _, err := b.CreateSemaphore()
	if err != nil {
		t.Fatalf("CreateSemaphore: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- b.WaitSemaphore(sem, 42, time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := b.Signal(sem, 42); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WaitSemaphore returned error: %v", err)
	}
}

func TestSemaphoreWaitTimesOut(t *testing.T) {
	b := New()
	sem, _, _ := b.CreateSemaphore()
	err := b.WaitSemaphore(sem, 1, 20*time.Millisecond)
	if err != gpu.ErrTimeout {
		t.Fatalf("got %v, want gpu.ErrTimeout", err)
	}
}

func TestCompositeDirectCopy(t *testing.T) {
	b := New()
	dstImages, _, _ := b.AllocateImages(gpu.ImageCreateInfo{Width: 2, Height: 2, ArrayLayers: 1}, 1)
	srcImages, _, _ := b.AllocateImages(gpu.ImageCreateInfo{Width: 2, Height: 2, ArrayLayers: 1}, 1)

	srcBuf := b.Backing()[srcImages[0].Native]
	red := color.RGBA{R: 255, A: 255}
	for i := 0; i < len(srcBuf); i += 4 {
		srcBuf[i] = red.R
		srcBuf[i+3] = red.A
	}

	if err := b.Composite(dstImages[0].Native, 2, 2, srcImages[0].Native, 2, 2, image.Rect(0, 0, 2, 2)); err != nil {
		t.Fatalf("Composite: %v", err)
	}
	dstBuf := b.Backing()[dstImages[0].Native]
	if dstBuf[0] != 255 || dstBuf[3] != 255 {
		t.Fatalf("composite did not copy red pixel: %v", dstBuf[:4])
	}
}

func TestCompositeScales(t *testing.T) {
	b := New()
	dstImages, _, _ := b.AllocateImages(gpu.ImageCreateInfo{Width: 4, Height: 4, ArrayLayers: 1}, 1)
	srcImages, _, _ := b.AllocateImages(gpu.ImageCreateInfo{Width: 2, Height: 2, ArrayLayers: 1}, 1)

	if err := b.Composite(dstImages[0].Native, 4, 4, srcImages[0].Native, 2, 2, image.Rect(0, 0, 4, 4)); err != nil {
		t.Fatalf("Composite with scaling: %v", err)
	}
}

func TestFenceWaitSignal(t *testing.T) {
	b := New()
	fence, err := b.ImportFence(gpu.NativeHandle(1))
	if err != nil {
		t.Fatalf("ImportFence: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- b.WaitFence(fence, time.Second) }()
	time.Sleep(10 * time.Millisecond)
	b.SignalFence(fence)
	if err := <-done; err != nil {
		t.Fatalf("WaitFence: %v", err)
	}
}
