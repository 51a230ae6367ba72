package shm

import "sync/atomic"

// Ring is the layer-slot ring: MaxSlots slots used to shuttle
// per-frame layer submissions from clients to the renderer without
// copying mid-frame. Publication rule: a slot is always fully written
// before currentIndex is published to point at it, so a reader that
// loads currentIndex first and then reads the referenced slot always
// observes a complete frame.
type Ring struct {
	slots        [MaxSlots]LayerSlot
	currentIndex atomic.Int64

	seg []byte // mapped segment bytes to mirror into, nil until AttachSegment
}

// NewRing returns a ring with currentIndex parked at -1: no slot has been
// committed yet.
func NewRing() *Ring {
	r := &Ring{}
	r.currentIndex.Store(-1)
	return r
}

// AttachSegment points the ring at a mapped shared-memory segment's
// bytes. Once attached, every Commit mirrors its write into the
// segment's ring section in addition to the in-process copy, so a
// cross-process reader mapping the same segment observes the same
// publication-ordered sequence of slots internal/compositor and
// internal/dispatch see in-process.
func (r *Ring) AttachSegment(seg []byte) {
	r.seg = seg
	InitRingSlotIndex(seg)
}

// Commit writes slot into the next ring position and then publishes
// currentIndex to point at it. The write-then-publish ordering is the
// release barrier readers depend on.
func (r *Ring) Commit(slot LayerSlot) int {
	prev := r.currentIndex.Load()
	next := (prev + 1) % MaxSlots
	if prev < 0 {
		next = 0
	}
	r.slots[next] = slot
	if r.seg != nil {
		// EncodeSlot cannot fail for a next value already reduced mod
		// MaxSlots; the error return exists for DecodeSlot/EncodeSlot's
		// shared bounds check, not a real failure mode here.
		_ = EncodeSlot(r.seg, int(next), slot)
	}
	r.currentIndex.Store(next)
	if r.seg != nil {
		PublishSlotIndex(r.seg, int(next))
	}
	return int(next)
}

// Current returns the most recently committed slot and its index. It
// reads currentIndex first and the slot second, the same
// publication-observing order a mapped client follows. ok is false if
// nothing has been committed yet.
func (r *Ring) Current() (slot LayerSlot, index int, ok bool) {
	idx := r.currentIndex.Load()
	if idx < 0 {
		return LayerSlot{}, -1, false
	}
	return r.slots[idx], int(idx), true
}
