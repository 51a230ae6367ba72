package sync2

import (
	"testing"
	"time"

	"github.com/openxrd/openxrd/internal/gpu/swgpu"
)

func TestCompositorSemaphoreWaitSignal(t *testing.T) {
	b := swgpu.New()
	cs, err := NewCompositorSemaphore(b)
	if err != nil {
		t.Fatalf("NewCompositorSemaphore: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cs.Wait(7, time.Second) }()
	time.Sleep(10 * time.Millisecond)
	if err := b.Signal(cs.handle, 7); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := cs.DropRef(); err != nil {
		t.Fatalf("DropRef: %v", err)
	}
}

func TestCompositorSemaphoreRefcountKeepsAlive(t *testing.T) {
	b := swgpu.New()
	cs, err := NewCompositorSemaphore(b)
	if err != nil {
		t.Fatalf("NewCompositorSemaphore: %v", err)
	}
	cs.AddRef()
	if err := cs.DropRef(); err != nil {
		t.Fatalf("DropRef (1/2): %v", err)
	}
	// Still referenced once; Wait must still function.
	go b.Signal(cs.handle, 1)
	if err := cs.Wait(1, time.Second); err != nil {
		t.Fatalf("Wait after first DropRef: %v", err)
	}
	if err := cs.DropRef(); err != nil {
		t.Fatalf("DropRef (2/2): %v", err)
	}
}

func TestImportedFenceWaitSignal(t *testing.T) {
	b := swgpu.New()
	fence, err := NewImportedFence(b, 99)
	if err != nil {
		t.Fatalf("NewImportedFence: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- fence.Wait(time.Second) }()
	time.Sleep(10 * time.Millisecond)
	if err := b.SignalFence(fence.handle); err != nil {
		t.Fatalf("SignalFence: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := fence.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
