// Package session implements the per-connection client session state
// machine (READY, STARTING, RUNNING, STOPPING, back to READY) plus
// the owned-resource arrays (swapchains, compositor semaphores) a
// session releases on cleanup.
package session

import (
	"fmt"
	"sync"

	"github.com/openxrd/openxrd/internal/compositor"
	"github.com/openxrd/openxrd/internal/swapchain"
	"github.com/openxrd/openxrd/internal/sync2"
)

// State is one of the four connection-lifecycle states.
type State int32

const (
	Ready State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

const (
	maxOwnedSwapchains = 32
	maxOwnedSemaphores = 8
)

// Capabilities is a small bitset a client declares at session_create,
// generalizing overlay-ness/z-order into a broader negotiation
// surface; system_set_client_info updates it after the fact.
type Capabilities uint32

const (
	CapSupportsDepthLayers Capabilities = 1 << iota
	CapSupportsOverlay
)

// Session is per-connection state: the state machine, owned resource
// arrays, and the booleans driven by the global arbiter.
type Session struct {
	mu sync.Mutex

	state       State
	threadIndex int
	appName     string
	pid         int

	overlay        bool
	declaredZOrder int64
	zOrder         int64 // current, arbiter-assigned z-order
	caps           Capabilities

	// session_active: the client has called predict_frame at least
	// once since session_begin. Set by BeginSession/EndSession, read
	// by internal/arbiter via SessionActive.
	Active bool
	// Visible/Focused are written only by internal/arbiter's
	// Recompute, under the global lock.
	Visible bool
	Focused bool

	swapchains [maxOwnedSwapchains]*swapchain.Swapchain
	semaphores [maxOwnedSemaphores]*sync2.CompositorSemaphore

	xc *compositor.ClientHandle

	ioActive bool
}

// New creates a session parked in READY, not yet assigned a thread.
func New(appName string, pid int, overlay bool, zOrder int64) *Session {
	return &Session{
		state:          Ready,
		appName:        appName,
		pid:            pid,
		overlay:        overlay,
		declaredZOrder: zOrder,
		zOrder:         zOrder,
		threadIndex:    -1,
	}
}

// SetCapabilities records the bitset a client declared at
// session_create.
func (s *Session) SetCapabilities(caps Capabilities) {
	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()
}

// Capabilities returns the bitset a client declared at session_create.
func (s *Session) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Reconfigure records the app name, pid, overlay flag and declared
// z-order a client supplies at session_create. Sessions are
// pre-allocated in READY state before any connection exists (the
// acceptor's fixed thread-slot table), so these fields start empty
// and are only meaningful from session_create onward.
func (s *Session) Reconfigure(appName string, pid int, overlay bool, zOrder int64) {
	s.mu.Lock()
	s.appName = appName
	s.pid = pid
	s.overlay = overlay
	s.declaredZOrder = zOrder
	s.zOrder = zOrder
	s.mu.Unlock()
}

// AttachCompositor records the per-session native compositor
// reference a session_create handler obtains from the shared
// compositor.Base. Handlers must check HasCompositor before any
// compositor-session operation and answer SESSION_NOT_CREATED
// otherwise.
func (s *Session) AttachCompositor(xc *compositor.ClientHandle) {
	s.mu.Lock()
	s.xc = xc
	s.mu.Unlock()
}

// HasCompositor reports whether client_state.xc is non-nil.
func (s *Session) HasCompositor() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.xc != nil
}

// BeginSession marks session_active true: the client has called
// predict_frame at least once since session_begin.
func (s *Session) BeginSession() {
	s.mu.Lock()
	s.Active = true
	s.mu.Unlock()
}

// EndSession marks session_active false (session_end).
func (s *Session) EndSession() {
	s.mu.Lock()
	s.Active = false
	s.mu.Unlock()
}

// AppName and Pid identify the connecting client, reported by
// whatever admin/debug surface wants a human-readable session list.
func (s *Session) AppName() string { return s.appName }
func (s *Session) Pid() int        { return s.pid }

// State returns the session's current connection-lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsOverlay reports whether this session is an overlay (z_order only
// meaningful when true).
func (s *Session) IsOverlay() bool { return s.overlay }

// ZOrder returns the session's current, arbiter-assigned z-order.
func (s *Session) ZOrder() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zOrder
}

// VisibleState, FocusedState and IsActive are lock-guarded readers
// over the Visible/Focused/Active fields, for callers outside this
// package (e.g. internal/dispatch's system_get_client_info) that must
// not read them without synchronizing against SetVisible/SetFocused/
// BeginSession/EndSession.
func (s *Session) VisibleState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Visible
}

func (s *Session) FocusedState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Focused
}

func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Active
}

// The methods below implement internal/arbiter.Session so a *Session
// can be handed directly to arbiter.Recompute under the global lock.

// ThreadSlotAssigned reports whether this session currently occupies a
// thread slot (threadIndex >= 0).
func (s *Session) ThreadSlotAssigned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadIndex >= 0
}

// SessionActive returns session_active.
func (s *Session) SessionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Active
}

// DeclaredZOrder returns the z-order the client declared at
// session_create, independent of whatever the arbiter currently has
// assigned via SetZOrder.
func (s *Session) DeclaredZOrder() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.declaredZOrder
}

// SetVisible is called by the arbiter under the global lock.
func (s *Session) SetVisible(v bool) {
	s.mu.Lock()
	s.Visible = v
	s.mu.Unlock()
}

// SetFocused is called by the arbiter under the global lock,
// immediately after SetVisible in every branch of its walk, so this
// is where the pair is forwarded to the attached native compositor,
// if any.
func (s *Session) SetFocused(f bool) {
	s.mu.Lock()
	s.Focused = f
	visible, xc := s.Visible, s.xc
	s.mu.Unlock()
	if xc != nil {
		xc.SetState(visible, f)
	}
}

// SetZOrder is called by the arbiter under the global lock.
func (s *Session) SetZOrder(z int64) {
	s.mu.Lock()
	s.zOrder = z
	xc := s.xc
	s.mu.Unlock()
	if xc != nil {
		xc.SetZOrder(z)
	}
}

// NotifyOverlayResync flips this overlay's attached compositor
// visibility off then on, the primary hand-off broadcast.
func (s *Session) NotifyOverlayResync(visible bool) {
	s.mu.Lock()
	xc := s.xc
	s.mu.Unlock()
	if xc != nil {
		xc.Resync(visible)
	}
}

// SetIOActive sets the per-client input-gating flag.
func (s *Session) SetIOActive(active bool) {
	s.mu.Lock()
	s.ioActive = active
	s.mu.Unlock()
}

// IOActive reports the per-client input-gating flag.
func (s *Session) IOActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ioActive
}

// ErrInvalidTransition reports an attempt to move the state machine
// along an undefined edge.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("session: invalid transition %s -> %s", e.From, e.To)
}

// Accept moves READY -> STARTING: the main loop has assigned a newly
// accepted fd to this slot.
func (s *Session) Accept(threadIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return &ErrInvalidTransition{s.state, Starting}
	}
	s.state = Starting
	s.threadIndex = threadIndex
	return nil
}

// EnterReadLoop moves STARTING -> RUNNING: the listener thread has
// entered its read loop.
func (s *Session) EnterReadLoop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Starting {
		return &ErrInvalidTransition{s.state, Running}
	}
	s.state = Running
	return nil
}

// BeginStop moves RUNNING (or STARTING, if the peer vanished before
// entering its read loop) -> STOPPING: the peer disconnected, a
// read/write failed, or the server is shutting down.
func (s *Session) BeginStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running && s.state != Starting {
		return &ErrInvalidTransition{s.state, Stopping}
	}
	s.state = Stopping
	return nil
}

// ThreadIndex returns the server-assigned thread-slot index, or -1 if
// none has been assigned.
func (s *Session) ThreadIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadIndex
}

// AddSwapchain records sc in the owned array, bounds-checked against
// maxOwnedSwapchains.
func (s *Session) AddSwapchain(slot int, sc *swapchain.Swapchain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= maxOwnedSwapchains {
		return fmt.Errorf("session: swapchain slot %d out of range [0, %d)", slot, maxOwnedSwapchains)
	}
	s.swapchains[slot] = sc
	return nil
}

// AllocSwapchainSlot finds the first free owned-swapchain slot and
// records sc there, returning its id. Used by the swapchain_create and
// swapchain_import handlers.
func (s *Session) AllocSwapchainSlot(sc *swapchain.Swapchain) (swapchain.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.swapchains {
		if s.swapchains[i] == nil {
			s.swapchains[i] = sc
			return swapchain.ID(i), nil
		}
	}
	return 0, fmt.Errorf("session: no free swapchain slot (cap %d)", maxOwnedSwapchains)
}

// Swapchain returns the swapchain owned at id, bounds-checked.
func (s *Session) Swapchain(id swapchain.ID) (*swapchain.Swapchain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= maxOwnedSwapchains {
		return nil, fmt.Errorf("session: swapchain id %d out of range [0, %d)", id, maxOwnedSwapchains)
	}
	sc := s.swapchains[id]
	if sc == nil {
		return nil, fmt.Errorf("session: swapchain id %d not owned by this session", id)
	}
	return sc, nil
}

// RemoveSwapchain clears the owned slot at id without dropping the
// caller's reference; callers must DropRef the returned swapchain
// themselves (swapchain_destroy's "caller's reference" semantics).
func (s *Session) RemoveSwapchain(id swapchain.ID) (*swapchain.Swapchain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= maxOwnedSwapchains {
		return nil, fmt.Errorf("session: swapchain id %d out of range [0, %d)", id, maxOwnedSwapchains)
	}
	sc := s.swapchains[id]
	s.swapchains[id] = nil
	return sc, nil
}

// AddSemaphore records sem in the owned array, bounds-checked against
// maxOwnedSemaphores.
func (s *Session) AddSemaphore(slot int, sem *sync2.CompositorSemaphore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= maxOwnedSemaphores {
		return fmt.Errorf("session: semaphore slot %d out of range [0, %d)", slot, maxOwnedSemaphores)
	}
	s.semaphores[slot] = sem
	return nil
}

// AllocSemaphoreSlot finds the first free owned-semaphore slot and
// records sem there, returning its id.
func (s *Session) AllocSemaphoreSlot(sem *sync2.CompositorSemaphore) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.semaphores {
		if s.semaphores[i] == nil {
			s.semaphores[i] = sem
			return i, nil
		}
	}
	return 0, fmt.Errorf("session: no free semaphore slot (cap %d)", maxOwnedSemaphores)
}

// Semaphore returns the semaphore owned at id, bounds-checked.
func (s *Session) Semaphore(id int) (*sync2.CompositorSemaphore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= maxOwnedSemaphores {
		return nil, fmt.Errorf("session: semaphore id %d out of range [0, %d)", id, maxOwnedSemaphores)
	}
	sem := s.semaphores[id]
	if sem == nil {
		return nil, fmt.Errorf("session: semaphore id %d not owned by this session", id)
	}
	return sem, nil
}

// RemoveSemaphore clears the owned slot at id without dropping the
// caller's reference.
func (s *Session) RemoveSemaphore(id int) (*sync2.CompositorSemaphore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= maxOwnedSemaphores {
		return nil, fmt.Errorf("session: semaphore id %d out of range [0, %d)", id, maxOwnedSemaphores)
	}
	sem := s.semaphores[id]
	s.semaphores[id] = nil
	return sem, nil
}

// DestroyResources drops everything session_destroy releases: every
// owned swapchain reference (each enters its own deferred-destruction
// path via stack), every owned semaphore reference, and the native
// compositor reference, while leaving the connection state machine
// alone: the channel stays open and the client may create a fresh
// session over it. deactivate, if non-nil, runs last to recompute
// global arbitration.
func (s *Session) DestroyResources(stack *swapchain.DestroyStack, deactivate func()) error {
	s.mu.Lock()
	s.Active, s.Visible, s.Focused = false, false, false
	swapchains := s.swapchains
	semaphores := s.semaphores
	s.swapchains = [maxOwnedSwapchains]*swapchain.Swapchain{}
	s.semaphores = [maxOwnedSemaphores]*sync2.CompositorSemaphore{}
	s.xc = nil
	s.mu.Unlock()

	for _, sc := range swapchains {
		if sc != nil {
			sc.DropRef(stack)
		}
	}
	for _, sem := range semaphores {
		if sem != nil {
			if err := sem.DropRef(); err != nil {
				return err
			}
		}
	}

	if deactivate != nil {
		deactivate()
	}
	return nil
}

// Cleanup runs the full disconnect sequence in order: mark STOPPING
// and zero client-state, drop every owned swapchain and semaphore
// reference plus the native compositor reference, park the slot back
// in READY, then call deactivate to recompute global arbitration.
func (s *Session) Cleanup(stack *swapchain.DestroyStack, deactivate func()) error {
	s.mu.Lock()
	s.state = Stopping
	s.mu.Unlock()

	if err := s.DestroyResources(stack, nil); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = Ready
	s.threadIndex = -1
	s.zOrder = s.declaredZOrder
	s.mu.Unlock()

	if deactivate != nil {
		deactivate()
	}
	return nil
}
