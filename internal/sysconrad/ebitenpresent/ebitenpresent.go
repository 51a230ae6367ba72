//go:build !headless

// Package ebitenpresent is a windowed debug presenter built on
// github.com/hajimehoshi/ebiten/v2: an ebiten.Game driven by
// ebiten.RunGame in its own goroutine, synchronized to the caller
// through a buffered vsync-style channel. It only needs to show that
// a layer slot arrived, not rasterize it.
package ebitenpresent

import (
	"image/color"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"github.com/openxrd/openxrd/internal/compositor"
	"github.com/openxrd/openxrd/internal/shm"
)

// Presenter opens one window showing a frame counter; client
// visibility, focus and z-order are recorded but not drawn. It stands
// in for the real
// projection/compositing pass a production system compositor
// performs.
type Presenter struct {
	mu sync.Mutex

	refreshPeriod time.Duration
	frameCount    uint64
	lastSlot      shm.LayerSlot

	visible map[int]bool
	focused map[int]bool
	zOrder  map[int]int64

	vsyncChan chan struct{}
	started   bool
}

// New returns a presenter ticking at refreshRate Hz (60 if zero). The
// window is not opened until Run is called.
func New(refreshRate int) *Presenter {
	if refreshRate <= 0 {
		refreshRate = 60
	}
	return &Presenter{
		refreshPeriod: time.Second / time.Duration(refreshRate),
		visible:       map[int]bool{},
		focused:       map[int]bool{},
		zOrder:        map[int]int64{},
		vsyncChan:     make(chan struct{}, 1),
	}
}

// Run opens the debug window and blocks until it is closed. Callers
// invoke this from a dedicated goroutine.
func (p *Presenter) Run(title string) error {
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowSize(480, 270)
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	return ebiten.RunGame(p)
}

// Update advances ebiten's per-tick hook; nothing to poll here since
// Present already records state.
func (p *Presenter) Update() error { return nil }

// Draw paints the frame counter so a human watching the debug window
// can confirm frames are flowing.
func (p *Presenter) Draw(screen *ebiten.Image) {
	screen.Fill(color.Black)
	p.mu.Lock()
	n := p.frameCount
	p.mu.Unlock()
	ebitenutil.DebugPrint(screen, "openxrd debug presenter\nframe "+itoa(n))
}

// Layout fixes the debug window's logical size.
func (p *Presenter) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 480, 270
}

// Predict returns now + one refresh period.
func (p *Presenter) Predict(now time.Time) (time.Time, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Add(p.refreshPeriod), p.refreshPeriod
}

// MarkWoke is a no-op: this presenter has no separate timing model to
// correct.
func (p *Presenter) MarkWoke(actual time.Time) {}

// Present records the latest slot and bumps the frame counter.
func (p *Presenter) Present(slot shm.LayerSlot) {
	p.mu.Lock()
	p.lastSlot = slot
	p.frameCount++
	p.mu.Unlock()
	select {
	case p.vsyncChan <- struct{}{}:
	default:
	}
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

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

var _ compositor.Presenter = (*Presenter)(nil)
var _ ebiten.Game = (*Presenter)(nil)
