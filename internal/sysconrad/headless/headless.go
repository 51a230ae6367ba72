// Package headless is the null system compositor: it satisfies
// internal/compositor.Presenter without opening any window or output
// surface, for CI and "exit on disconnect" test-mode runs.
package headless

import (
	"sync"
	"time"

	"github.com/openxrd/openxrd/internal/compositor"
	"github.com/openxrd/openxrd/internal/shm"
)

// Presenter is a Presenter that records state transitions and frame
// predictions in memory, for tests and headless operation.
type Presenter struct {
	mu sync.Mutex

	refreshPeriod time.Duration
	lastWoke      time.Time
	frames        []shm.LayerSlot

	visible map[int]bool
	focused map[int]bool
	zOrder  map[int]int64
}

// New returns a Presenter ticking at refreshRate Hz (60 if zero).
func New(refreshRate int) *Presenter {
	if refreshRate <= 0 {
		refreshRate = 60
	}
	return &Presenter{
		refreshPeriod: time.Second / time.Duration(refreshRate),
		visible:       map[int]bool{},
		focused:       map[int]bool{},
		zOrder:        map[int]int64{},
	}
}

// Predict returns now + one refresh period: the simplest possible
// timing model, adequate for a headless/test run where nothing is
// actually scanning out to a display.
func (p *Presenter) Predict(now time.Time) (time.Time, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Add(p.refreshPeriod), p.refreshPeriod
}

// MarkWoke records the last wake time.
func (p *Presenter) MarkWoke(actual time.Time) {
	p.mu.Lock()
	p.lastWoke = actual
	p.mu.Unlock()
}

// Present records the presented slot; tests can inspect Frames().
func (p *Presenter) Present(slot shm.LayerSlot) {
	p.mu.Lock()
	p.frames = append(p.frames, slot)
	p.mu.Unlock()
}

// SetClientState records a session's visible/focused state.
func (p *Presenter) SetClientState(clientIndex int, visible, focused bool) {
	p.mu.Lock()
	p.visible[clientIndex] = visible
	p.focused[clientIndex] = focused
	p.mu.Unlock()
}

// SetClientZOrder records a session's z-order.
func (p *Presenter) SetClientZOrder(clientIndex int, z int64) {
	p.mu.Lock()
	p.zOrder[clientIndex] = z
	p.mu.Unlock()
}

// Frames returns every slot Present has received so far.
func (p *Presenter) Frames() []shm.LayerSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shm.LayerSlot, len(p.frames))
	copy(out, p.frames)
	return out
}

// ClientState returns the last visible/focused pair recorded for
// clientIndex.
func (p *Presenter) ClientState(clientIndex int) (visible, focused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[clientIndex], p.focused[clientIndex]
}

// ClientZOrder returns the last z-order recorded for clientIndex.
func (p *Presenter) ClientZOrder(clientIndex int) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zOrder[clientIndex]
}

var _ compositor.Presenter = (*Presenter)(nil)
