package dispatch

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/openxrd/openxrd/internal/arbiter"
	"github.com/openxrd/openxrd/internal/compositor"
	"github.com/openxrd/openxrd/internal/device"
	"github.com/openxrd/openxrd/internal/gpu"
	"github.com/openxrd/openxrd/internal/session"
	"github.com/openxrd/openxrd/internal/shm"
	"github.com/openxrd/openxrd/internal/swapchain"
	"github.com/openxrd/openxrd/internal/telemetry"
	"github.com/openxrd/openxrd/internal/wire"
)

// readDeadline bounds each listener thread's blocking read so a
// shutdown request is noticed promptly even mid-read.
const readDeadline = 200 * time.Millisecond

// Server holds every piece of shared runtime state the dispatch table
// reaches into: the device snapshot, the compositor, the arbiter, the
// device catalog's backing drivers, and the fixed-size session table
// indexed by thread slot. mu is the single global mutex guarding
// session-table membership and arbiter state.
type Server struct {
	mu sync.Mutex

	catalog          *shm.Catalog
	ring             *shm.Ring
	segment          shm.Segment
	buildID          string
	startupTimestamp int64
	refreshRateHz    int

	comp *compositor.Base
	arb  *arbiter.Arbiter

	devices      []device.Device
	sessions     []*session.Session
	onDisconnect func()
}

// Config bundles the already-constructed pieces New assembles a
// Server from; internal/runtime is responsible for building each of
// these (shared-memory segment, catalog, compositor base, device
// list) before handing them here.
type Config struct {
	Catalog          *shm.Catalog
	Ring             *shm.Ring
	Segment          shm.Segment
	BuildID          string
	StartupTimestamp int64
	RefreshRateHz    int
	Compositor       *compositor.Base
	Devices          []device.Device
	MaxClients       int

	// OnDisconnect, if set, runs after a dead client connection tears
	// down, backing the exit_on_disconnect test-mode toggle. An
	// explicit session_destroy over a live connection does not fire it.
	OnDisconnect func()
}

// New assembles a Server with MaxClients pre-allocated, READY
// sessions, matching the acceptor's fixed thread-slot table.
func New(cfg Config) *Server {
	s := &Server{
		catalog:          cfg.Catalog,
		ring:             cfg.Ring,
		segment:          cfg.Segment,
		buildID:          cfg.BuildID,
		startupTimestamp: cfg.StartupTimestamp,
		refreshRateHz:    cfg.RefreshRateHz,
		comp:             cfg.Compositor,
		arb:              arbiter.New(),
		devices:          cfg.Devices,
		sessions:         make([]*session.Session, cfg.MaxClients),
		onDisconnect:     cfg.OnDisconnect,
	}
	for i := range s.sessions {
		s.sessions[i] = session.New("", 0, false, 0)
	}
	return s
}

// emptySlot satisfies arbiter.Session for a thread slot the acceptor
// has not (yet) assigned a connection to.
type emptySlot struct{}

func (emptySlot) ThreadSlotAssigned() bool { return false }
func (emptySlot) IsOverlay() bool          { return false }
func (emptySlot) SessionActive() bool      { return false }
func (emptySlot) DeclaredZOrder() int64    { return 0 }
func (emptySlot) SetVisible(bool)          {}
func (emptySlot) SetFocused(bool)          {}
func (emptySlot) SetZOrder(int64)          {}
func (emptySlot) NotifyOverlayResync(bool) {}

// recomputeLocked re-runs the global arbiter over the current session
// table. Callers must hold s.mu.
func (s *Server) recomputeLocked() {
	views := make([]arbiter.Session, len(s.sessions))
	for i, sess := range s.sessions {
		if sess == nil {
			views[i] = emptySlot{}
			continue
		}
		views[i] = sess
	}
	s.arb.Recompute(views)
}

// Recompute takes the global lock and re-runs the arbiter; it is the
// deactivate callback session.Cleanup invokes, and is also called
// directly by session_begin/session_end/session_destroy handlers.
func (s *Server) Recompute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeLocked()
}

// HandleConnection is an acceptor.Handler: it drives one client's
// session state machine from STARTING through RUNNING to cleanup,
// reading and answering requests until ctx is canceled or the
// connection fails.
func (s *Server) HandleConnection(ctx context.Context, slotIndex int, ch *wire.Channel) {
	sess := s.sessions[slotIndex]
	if err := sess.Accept(slotIndex); err != nil {
		telemetry.Errorf("dispatch: slot %d Accept: %v", slotIndex, err)
		return
	}
	if err := sess.EnterReadLoop(); err != nil {
		telemetry.Errorf("dispatch: slot %d EnterReadLoop: %v", slotIndex, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.teardown(sess)
			return
		default:
		}

		if err := ch.SetDeadline(readDeadline); err != nil {
			s.teardown(sess)
			return
		}
		cmd, payload, err := ch.ReadRequest()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if !errors.Is(err, io.EOF) {
				telemetry.Warnf("dispatch: slot %d read: %v", slotIndex, err)
			}
			s.teardown(sess)
			return
		}

		handler, ok := table[cmd]
		if !ok {
			_ = ch.WriteReply(wire.IPCFailure, nil, nil)
			continue
		}
		reply, handles, status := handler(s, sess, slotIndex, payload)
		if err := ch.WriteReply(status, reply, handles); err != nil {
			telemetry.Warnf("dispatch: slot %d write: %v", slotIndex, err)
			s.teardown(sess)
			return
		}
	}
}

func (s *Server) teardown(sess *session.Session) {
	if err := sess.BeginStop(); err != nil {
		// Already STOPPING/READY (e.g. explicit session_destroy ran
		// just before disconnect); nothing further to do.
		return
	}
	if err := sess.Cleanup(s.comp.DestroyStack(), s.Recompute); err != nil {
		telemetry.Errorf("dispatch: session cleanup: %v", err)
	}
	if s.onDisconnect != nil {
		s.onDisconnect()
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}

// statusFromErr translates an internal Go error into the wire status
// taxonomy. The translation happens exactly once, at this boundary;
// everything below it returns plain errors.
func statusFromErr(err error) wire.Status {
	if err == nil {
		return wire.Success
	}
	switch err {
	case swapchain.ErrNoImageAvailable:
		return wire.NoImageAvailable
	case swapchain.ErrFifoFull:
		// Release on a full FIFO shares acquire-on-empty's status, per
		// the error taxonomy.
		return wire.NoImageAvailable
	case device.ErrPoseNotActive:
		return wire.PoseNotActive
	case gpu.ErrTimeout:
		return wire.Timeout
	}
	if be, ok := err.(*gpu.BundleError); ok {
		switch be.Class {
		case gpu.ErrFlagUnsupported:
			return wire.SwapchainFlagUnsupported
		case gpu.ErrFormatUnsupported:
			return wire.SwapchainFormatUnsupported
		case gpu.ErrGPU:
			return wire.GPUError
		}
	}
	return wire.IPCFailure
}
