// Package arbiter implements the global client arbiter: the
// fallback-scan algorithm that picks the single primary session among
// every connected client and computes visibility/focus/z-order for
// all of them, plus the overlay-resync broadcast on primary hand-off.
package arbiter

import "math"

// ZOrderPrimary is the z-order a non-overlay primary session draws
// at: lowest, so it always draws first.
const ZOrderPrimary = math.MinInt64

// Session is the subset of session.Session state the arbiter reads
// and writes. Kept as an interface so this package does not import
// internal/session.
type Session interface {
	ThreadSlotAssigned() bool
	IsOverlay() bool
	SessionActive() bool
	DeclaredZOrder() int64
	SetVisible(bool)
	SetFocused(bool)
	SetZOrder(int64)
	NotifyOverlayResync(visible bool)
}

// Arbiter holds the two designation indices; all reads and writes
// happen under a single caller-held global mutex.
type Arbiter struct {
	primary    int // currently-designated primary index, -1 = idle
	lastActive int // designation as of the last completed Recompute, -1 = idle
}

// New returns an arbiter with no designated primary.
func New() *Arbiter {
	return &Arbiter{primary: -1, lastActive: -1}
}

// Primary returns the currently-designated primary index, or -1.
func (a *Arbiter) Primary() int { return a.primary }

// ForcePrimary is the admin override backing system_set_primary_client:
// it pins the designation to index i ahead of the next Recompute and
// invalidates last_active so Recompute's stability check (step 1) does
// not immediately discard the override.
func (a *Arbiter) ForcePrimary(i int) {
	a.primary = i
	a.lastActive = -1
}

// Recompute re-elects the primary and recomputes every session's
// visibility/focus/z-order. sessions is indexed by thread slot;
// unassigned slots must return ThreadSlotAssigned() == false. The
// caller must hold the single global mutex for the duration of this
// call.
func (a *Arbiter) Recompute(sessions []Session) {
	currentValid := a.primary >= 0 && a.primary < len(sessions) &&
		sessions[a.primary].ThreadSlotAssigned() &&
		!sessions[a.primary].IsOverlay() &&
		sessions[a.primary].SessionActive()

	// Nothing to do if the designation is already stable.
	if currentValid && a.primary == a.lastActive {
		return
	}

	// Find a fallback: the first non-overlay active session.
	fallback := -1
	for i, s := range sessions {
		if !s.ThreadSlotAssigned() {
			continue
		}
		if !s.IsOverlay() && s.SessionActive() {
			fallback = i
			break
		}
	}

	previous := a.primary
	if !currentValid {
		// fallback is -1 when no candidate exists: idle/wallpaper.
		a.primary = fallback
	}

	// Walk all sessions and set visible/focused/z_order.
	for i, s := range sessions {
		if !s.ThreadSlotAssigned() {
			continue
		}
		switch {
		case !s.IsOverlay() && i == a.primary:
			s.SetVisible(true)
			s.SetFocused(true)
			s.SetZOrder(ZOrderPrimary)
		case s.IsOverlay() && a.primary >= 0:
			// An overlay has nothing to layer on top of when no
			// primary exists, so it is forced invisible alongside
			// every other non-primary session.
			s.SetVisible(true)
			s.SetFocused(true)
			s.SetZOrder(s.DeclaredZOrder())
		default:
			s.SetVisible(false)
			s.SetFocused(false)
		}
	}

	// Overlay-specific event broadcast: resync every overlay when the
	// designation moved between two distinct non-idle primaries, or
	// crossed idle<->primary.
	if previous != a.primary {
		becameIdle := previous >= 0 && a.primary < 0
		becamePrimary := previous < 0 && a.primary >= 0
		handOff := previous >= 0 && a.primary >= 0 && previous != a.primary
		if becameIdle || becamePrimary || handOff {
			for _, s := range sessions {
				if s.ThreadSlotAssigned() && s.IsOverlay() {
					s.NotifyOverlayResync(a.primary >= 0)
				}
			}
		}
	}

	a.lastActive = a.primary
}
