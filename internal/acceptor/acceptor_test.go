package acceptor

import (
	"context"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openxrd/openxrd/internal/wire"
)

func listenerPair(t *testing.T) (net.Listener, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acceptor.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	return ln, path
}

// TestAdmitAssignsSlotsAndDropsOverflow fills every thread slot and
// checks that the next peer is closed instead of queued.
func TestAdmitAssignsSlotsAndDropsOverflow(t *testing.T) {
	ln, path := listenerPair(t)

	var handled atomic.Int32
	a := New(ln, 2, func(ctx context.Context, slotIndex int, ch *wire.Channel) {
		handled.Add(1)
		<-ctx.Done()
	})

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	conns := make([]net.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		c, err := net.DialTimeout("unix", path, time.Second)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conns = append(conns, c)
		defer c.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.OccupiedSlots() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := a.OccupiedSlots(); got != 2 {
		t.Fatalf("OccupiedSlots = %d, want 2 (third peer must be dropped)", got)
	}

	// The overflow peer's connection was closed server-side; a read
	// must fail promptly rather than block.
	overflow := conns[2]
	overflow.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := overflow.Read(buf); err == nil {
		t.Fatal("expected the overflow peer's connection to be closed")
	}

	a.Shutdown()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if handled.Load() != 2 {
		t.Fatalf("handler ran %d times, want 2", handled.Load())
	}
	if got := a.OccupiedSlots(); got != 0 {
		t.Fatalf("OccupiedSlots after Shutdown = %d, want 0", got)
	}
}

// TestSlotReusedAfterHandlerExits frees a slot once its handler
// returns, so a later peer can take it.
func TestSlotReusedAfterHandlerExits(t *testing.T) {
	ln, path := listenerPair(t)

	release := make(chan struct{})
	var accepted atomic.Int32
	a := New(ln, 1, func(ctx context.Context, slotIndex int, ch *wire.Channel) {
		if accepted.Add(1) == 1 {
			// First peer: exit on demand so its slot frees up.
			select {
			case <-release:
			case <-ctx.Done():
			}
			return
		}
		<-ctx.Done()
	})

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	first, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()

	deadline := time.Now().Add(2 * time.Second)
	for a.OccupiedSlots() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	for a.OccupiedSlots() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	second, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial (reuse): %v", err)
	}
	defer second.Close()
	for a.OccupiedSlots() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := a.OccupiedSlots(); got != 1 {
		t.Fatalf("OccupiedSlots after reuse = %d, want 1", got)
	}

	a.Shutdown()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestReleaseBoundsCheck(t *testing.T) {
	ln, _ := listenerPair(t)
	a := New(ln, 1, func(context.Context, int, *wire.Channel) {})
	defer ln.Close()
	if err := a.Release(-1); err == nil {
		t.Fatal("expected error for negative slot")
	}
	if err := a.Release(1); err == nil {
		t.Fatal("expected error for slot at cap")
	}
	if err := a.Release(0); err != nil {
		t.Fatalf("Release(0): %v", err)
	}
}
