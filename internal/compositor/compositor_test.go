package compositor

import (
	"testing"
	"time"

	"github.com/openxrd/openxrd/internal/gpu"
	"github.com/openxrd/openxrd/internal/gpu/swgpu"
	"github.com/openxrd/openxrd/internal/shm"
	"github.com/openxrd/openxrd/internal/swapchain"
)

type fakePresenter struct {
	presented []shm.LayerSlot
	woke      int

	clientVisible map[int]bool
	clientFocused map[int]bool
	clientZOrder  map[int]int64
}

func (f *fakePresenter) Predict(now time.Time) (time.Time, time.Duration) {
	return now.Add(time.Millisecond), 16 * time.Millisecond
}
func (f *fakePresenter) MarkWoke(time.Time) { f.woke++ }
func (f *fakePresenter) Present(slot shm.LayerSlot) {
	f.presented = append(f.presented, slot)
}
func (f *fakePresenter) SetClientState(clientIndex int, visible, focused bool) {
	if f.clientVisible == nil {
		f.clientVisible = map[int]bool{}
		f.clientFocused = map[int]bool{}
	}
	f.clientVisible[clientIndex] = visible
	f.clientFocused[clientIndex] = focused
}
func (f *fakePresenter) SetClientZOrder(clientIndex int, z int64) {
	if f.clientZOrder == nil {
		f.clientZOrder = map[int]int64{}
	}
	f.clientZOrder[clientIndex] = z
}

func newTestBase(t *testing.T) (*Base, *fakePresenter) {
	t.Helper()
	b := swgpu.New()
	presenter := &fakePresenter{}
	return NewBase(b, shm.NewRing(), presenter), presenter
}

func TestLayerBeginCommitRoundTrip(t *testing.T) {
	base, presenter := newTestBase(t)
	base.LayerBegin(1, 1000, shm.BlendOpaque)
	if err := base.AppendLayer(shm.LayerRef{Kind: shm.LayerQuad, SwapchainCount: 1}); err != nil {
		t.Fatalf("AppendLayer: %v", err)
	}
	idx, err := base.LayerCommit(nil, 0, time.Second)
	if err != nil {
		t.Fatalf("LayerCommit: %v", err)
	}
	if idx != 0 {
		t.Fatalf("first committed slot index = %d, want 0", idx)
	}
	if len(presenter.presented) != 1 {
		t.Fatalf("Present called %d times, want 1", len(presenter.presented))
	}
	if presenter.presented[0].LayerCount != 1 {
		t.Fatalf("presented LayerCount = %d, want 1", presenter.presented[0].LayerCount)
	}
}

// TestLayerSlotCapacity submits MaxLayers+1 layers in one frame: the
// first MaxLayers succeed and the extra one fails.
func TestLayerSlotCapacity(t *testing.T) {
	base, presenter := newTestBase(t)
	base.LayerBegin(2, 2000, shm.BlendOpaque)

	for i := 0; i < shm.MaxLayers; i++ {
		if err := base.AppendLayer(shm.LayerRef{Kind: shm.LayerQuad, SwapchainCount: 1}); err != nil {
			t.Fatalf("AppendLayer %d: %v", i, err)
		}
	}
	if err := base.AppendLayer(shm.LayerRef{Kind: shm.LayerQuad, SwapchainCount: 1}); err != ErrSlotFull {
		t.Fatalf("AppendLayer past capacity = %v, want ErrSlotFull", err)
	}

	if _, err := base.LayerCommit(nil, 0, time.Second); err != nil {
		t.Fatalf("LayerCommit: %v", err)
	}
	if presenter.presented[0].LayerCount != shm.MaxLayers {
		t.Fatalf("presented LayerCount = %d, want %d", presenter.presented[0].LayerCount, shm.MaxLayers)
	}
}

func TestAppendLayerOutsideBeginFails(t *testing.T) {
	base, _ := newTestBase(t)
	if err := base.AppendLayer(shm.LayerRef{}); err == nil {
		t.Fatal("expected error appending a layer before layer_begin")
	}
}

// TestLayerCommitWaitsOnSyncHandle checks that commit waits on the
// provided semaphore at the given value before handing the slot to the
// presenter.
func TestLayerCommitWaitsOnSyncHandle(t *testing.T) {
	base, presenter := newTestBase(t)
	sem, err := base.CreateSemaphore()
	if err != nil {
		t.Fatalf("CreateSemaphore: %v", err)
	}

	base.LayerBegin(3, 3000, shm.BlendOpaque)
	if err := base.AppendLayer(shm.LayerRef{Kind: shm.LayerStereoProjection, SwapchainCount: 2}); err != nil {
		t.Fatalf("AppendLayer: %v", err)
	}

	commitDone := make(chan error, 1)
	go func() {
		_, err := base.LayerCommit(sem, 42, time.Second)
		commitDone <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if len(presenter.presented) != 0 {
		t.Fatal("Present called before sync handle was signaled")
	}

	if err := base.bundle.(*swgpu.Bundle).Signal(gpu.SemaphoreHandle(sem.Native()), 42); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := <-commitDone; err != nil {
		t.Fatalf("LayerCommit: %v", err)
	}
	if len(presenter.presented) != 1 {
		t.Fatal("Present was not called after the sync handle was signaled")
	}
}

func TestGarbageCollectDrainsDestroyedSwapchains(t *testing.T) {
	base, _ := newTestBase(t)
	sc, err := base.CreateSwapchain(swapchain.CreateInfo{gpu.ImageCreateInfo{Width: 4, Height: 4, ArrayLayers: 1}})
	if err != nil {
		t.Fatalf("CreateSwapchain: %v", err)
	}
	sc.DropRef(base.DestroyStack())
	if err := base.GarbageCollect(); err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
}
