package session

import (
	"testing"

	"github.com/openxrd/openxrd/internal/gpu"
	"github.com/openxrd/openxrd/internal/gpu/swgpu"
	"github.com/openxrd/openxrd/internal/swapchain"
)

func TestStateMachineHappyPath(t *testing.T) {
	s := New("demo-app", 1234, false, 0)
	if got := s.State(); got != Ready {
		t.Fatalf("initial state = %s, want READY", got)
	}
	if err := s.Accept(3); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if got := s.State(); got != Starting {
		t.Fatalf("state after Accept = %s, want STARTING", got)
	}
	if err := s.EnterReadLoop(); err != nil {
		t.Fatalf("EnterReadLoop: %v", err)
	}
	if got := s.State(); got != Running {
		t.Fatalf("state after EnterReadLoop = %s, want RUNNING", got)
	}
	if err := s.BeginStop(); err != nil {
		t.Fatalf("BeginStop: %v", err)
	}
	if got := s.State(); got != Stopping {
		t.Fatalf("state after BeginStop = %s, want STOPPING", got)
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	s := New("demo-app", 1, false, 0)
	if err := s.EnterReadLoop(); err == nil {
		t.Fatal("expected error entering read loop before Accept")
	}
	if err := s.BeginStop(); err == nil {
		t.Fatal("expected error stopping a session still in READY")
	}
}

func TestCleanupReturnsToReadyAndDropsOwnedResources(t *testing.T) {
	bundle := swgpu.New()
	stack := swapchain.NewDestroyStack(bundle)

	s := New("demo-app", 42, false, 0)
	_ = s.Accept(0)
	_ = s.EnterReadLoop()
	s.Active, s.Visible, s.Focused = true, true, true

	sc, err := swapchain.Create(bundle, swapchain.CreateInfo{gpu.ImageCreateInfo{Width: 4, Height: 4, ArrayLayers: 1}}, 2)
	if err != nil {
		t.Fatalf("swapchain.Create: %v", err)
	}
	if err := s.AddSwapchain(0, sc); err != nil {
		t.Fatalf("AddSwapchain: %v", err)
	}

	deactivated := false
	if err := s.Cleanup(stack, func() { deactivated = true }); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if got := s.State(); got != Ready {
		t.Fatalf("state after Cleanup = %s, want READY", got)
	}
	if s.Active || s.Visible || s.Focused {
		t.Fatal("Cleanup did not clear Active/Visible/Focused")
	}
	if !deactivated {
		t.Fatal("Cleanup did not call deactivate")
	}
	if err := stack.GarbageCollect(); err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
}

func TestAddSwapchainBoundsCheck(t *testing.T) {
	s := New("demo-app", 1, false, 0)
	if err := s.AddSwapchain(-1, nil); err == nil {
		t.Fatal("expected error for negative slot")
	}
	if err := s.AddSwapchain(32, nil); err == nil {
		t.Fatal("expected error for slot at cap")
	}
}
