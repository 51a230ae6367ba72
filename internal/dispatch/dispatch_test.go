package dispatch

import (
	"testing"

	"github.com/openxrd/openxrd/internal/compositor"
	"github.com/openxrd/openxrd/internal/device"
	"github.com/openxrd/openxrd/internal/device/simdevice"
	"github.com/openxrd/openxrd/internal/gpu/swgpu"
	"github.com/openxrd/openxrd/internal/session"
	"github.com/openxrd/openxrd/internal/shm"
	"github.com/openxrd/openxrd/internal/swapchain"
	"github.com/openxrd/openxrd/internal/sysconrad/headless"
	"github.com/openxrd/openxrd/internal/wire"
)

// newTestServer assembles a Server the way internal/runtime's bootstrap
// does, minus the OS-level lockfile/socket/shared-memory plumbing: one
// simulated HMD published at catalog index 0, a software graphics
// bundle, and a headless presenter.
func newTestServer(t *testing.T, maxClients int) (*Server, *swgpu.Bundle) {
	t.Helper()

	hmd := simdevice.New(simdevice.KindHMD)
	cat := shm.NewCatalog(1, 1000)
	if err := cat.AddOrigin(shm.TrackingOrigin{Name: "stage"}); err != nil {
		t.Fatalf("AddOrigin: %v", err)
	}
	entry := hmd.CatalogEntry()
	entry.OriginName = "stage"
	if _, err := cat.AddDevice(entry); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	roles := shm.NewRoleAssignments()
	roles.Head = 0
	cat.SetRoles(roles)
	cat.Publish()

	ring := shm.NewRing()
	bundle := swgpu.New()
	comp := compositor.NewBase(bundle, ring, headless.New(60))

	return newServerWith(cat, ring, comp, hmd, maxClients), bundle
}

func newServerWith(cat *shm.Catalog, ring *shm.Ring, comp *compositor.Base, hmd device.Device, maxClients int) *Server {
	return New(Config{
		Catalog:          cat,
		Ring:             ring,
		BuildID:          "test-build",
		StartupTimestamp: 1000,
		RefreshRateHz:    60,
		Compositor:       comp,
		Devices:          []device.Device{hmd},
		MaxClients:       maxClients,
	})
}

// createTestSwapchain drives swapchain_create through the table and
// returns the new swapchain's session-local id.
func createTestSwapchain(t *testing.T, s *Server, sess *session.Session) uint32 {
	t.Helper()
	var create encoder
	create.u32(4)
	create.u32(4)
	create.u32(1)
	create.i32(0)
	create.bool(false)
	create.bool(false)
	reply, _, status := table[wire.CmdSwapchainCreate](s, sess, 0, create.buf)
	if status != wire.Success {
		t.Fatalf("swapchain_create status = %v", status)
	}
	d := decoder{buf: reply}
	scID, err := d.u32()
	if err != nil {
		t.Fatalf("decode swapchain id: %v", err)
	}
	return scID
}

// acceptSlot replays the acceptor's Accept -> EnterReadLoop transitions
// that real connection handling performs before a session ever sees a
// request, so direct table[...] calls in these tests see the same
// state-machine preconditions HandleConnection would have set up.
func acceptSlot(t *testing.T, s *Server, idx int) *session.Session {
	t.Helper()
	sess := s.sessions[idx]
	if err := sess.Accept(idx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := sess.EnterReadLoop(); err != nil {
		t.Fatalf("EnterReadLoop: %v", err)
	}
	return sess
}

func encodeSessionCreate(appName string, pid int32, overlay bool, zOrder int64, caps uint32) []byte {
	var e encoder
	e.str(appName)
	e.i32(pid)
	e.bool(overlay)
	e.i64(zOrder)
	e.u32(caps)
	return e.buf
}

// TestSessionLifecycleRoundTrip drives session_create, session_begin,
// a full frame (predict -> begin_frame -> layer_sync), and
// session_destroy through the real command table, the way a client
// library would, and checks the arbiter/session state each step
// leaves behind.
func TestSessionLifecycleRoundTrip(t *testing.T) {
	s, _ := newTestServer(t, 4)
	sess := acceptSlot(t, s, 0)

	_, _, status := table[wire.CmdSessionCreate](s, sess, 0, encodeSessionCreate("demo", 42, false, 0, 0))
	if status != wire.Success {
		t.Fatalf("session_create status = %v", status)
	}
	if !sess.HasCompositor() {
		t.Fatal("session_create did not attach a compositor handle")
	}

	if _, _, status := table[wire.CmdSessionBegin](s, sess, 0, nil); status != wire.Success {
		t.Fatalf("session_begin status = %v", status)
	}
	if s.arb.Primary() != 0 {
		t.Fatalf("arbiter primary = %d, want 0 after the only session begins", s.arb.Primary())
	}

	reply, _, status := table[wire.CmdCompositorPredictFrame](s, sess, 0, nil)
	if status != wire.Success {
		t.Fatalf("compositor_predict_frame status = %v", status)
	}
	d := decoder{buf: reply}
	displayTime, err := d.i64()
	if err != nil {
		t.Fatalf("decode displayTime: %v", err)
	}

	var beginFrame encoder
	beginFrame.u64(1)
	beginFrame.i64(displayTime)
	beginFrame.i32(int32(shm.BlendOpaque))
	if _, _, status := table[wire.CmdCompositorBeginFrame](s, sess, 0, beginFrame.buf); status != wire.Success {
		t.Fatalf("compositor_begin_frame status = %v", status)
	}

	var layerSync encoder
	layerSync.u32(0) // zero layers this frame: an empty committed slot is still a valid commit
	if _, _, status := table[wire.CmdCompositorLayerSync](s, sess, 0, layerSync.buf); status != wire.Success {
		t.Fatalf("compositor_layer_sync status = %v", status)
	}

	if _, _, status := table[wire.CmdSessionDestroy](s, sess, 0, nil); status != wire.Success {
		t.Fatalf("session_destroy status = %v", status)
	}
	if sess.HasCompositor() {
		t.Fatal("session_destroy did not release the compositor handle")
	}
	if s.arb.Primary() != -1 {
		t.Fatalf("arbiter primary = %d, want -1 once the only session tears down", s.arb.Primary())
	}
}

// TestSwapchainCreateAcquireReleaseDestroy drives the full swapchain
// command sequence a client issues to render one frame's worth of
// images, checking that the FIFO and the per-session resource table
// agree at every step.
func TestSwapchainCreateAcquireReleaseDestroy(t *testing.T) {
	s, _ := newTestServer(t, 4)
	sess := acceptSlot(t, s, 0)
	if _, _, status := table[wire.CmdSessionCreate](s, sess, 0, encodeSessionCreate("demo", 1, false, 0, 0)); status != wire.Success {
		t.Fatalf("session_create status = %v", status)
	}

	scID := createTestSwapchain(t, s, sess)

	var acquire encoder
	acquire.u32(scID)
	reply, _, status := table[wire.CmdSwapchainAcquireImage](s, sess, 0, acquire.buf)
	if status != wire.Success {
		t.Fatalf("swapchain_acquire_image status = %v", status)
	}
	d := decoder{buf: reply}
	imageIndex, err := d.i32()
	if err != nil {
		t.Fatalf("decode image index: %v", err)
	}

	var release encoder
	release.u32(scID)
	release.i32(imageIndex)
	if _, _, status := table[wire.CmdSwapchainReleaseImage](s, sess, 0, release.buf); status != wire.Success {
		t.Fatalf("swapchain_release_image status = %v", status)
	}

	var destroy encoder
	destroy.u32(scID)
	if _, _, status := table[wire.CmdSwapchainDestroy](s, sess, 0, destroy.buf); status != wire.Success {
		t.Fatalf("swapchain_destroy status = %v", status)
	}

	if _, err := sess.Swapchain(swapchain.ID(scID)); err == nil {
		t.Fatal("swapchain survived swapchain_destroy")
	}
}

// TestSuggestInteractionProfile drives
// session_suggest_interaction_profile through the table and checks the
// suggestion lands in the catalog, plus the bounds/session guards.
func TestSuggestInteractionProfile(t *testing.T) {
	s, _ := newTestServer(t, 4)
	sess := acceptSlot(t, s, 0)

	var suggest encoder
	suggest.i32(0)
	suggest.str("/interaction_profiles/test/hmd")
	if _, _, status := table[wire.CmdSessionSuggestInteractionProfile](s, sess, 0, suggest.buf); status != wire.SessionNotCreated {
		t.Fatalf("suggest before session_create status = %v, want SessionNotCreated", status)
	}

	if _, _, status := table[wire.CmdSessionCreate](s, sess, 0, encodeSessionCreate("demo", 1, false, 0, 0)); status != wire.Success {
		t.Fatalf("session_create status = %v", status)
	}
	if _, _, status := table[wire.CmdSessionSuggestInteractionProfile](s, sess, 0, suggest.buf); status != wire.Success {
		t.Fatalf("session_suggest_interaction_profile status = %v", status)
	}
	dev, ok := s.catalog.Device(0)
	if !ok {
		t.Fatal("device 0 missing from catalog")
	}
	if dev.SuggestedProfile != "/interaction_profiles/test/hmd" {
		t.Fatalf("SuggestedProfile = %q", dev.SuggestedProfile)
	}

	var bad encoder
	bad.i32(99)
	bad.str("/interaction_profiles/test/hmd")
	if _, _, status := table[wire.CmdSessionSuggestInteractionProfile](s, sess, 0, bad.buf); status != wire.IPCFailure {
		t.Fatalf("suggest with bad device index status = %v, want IPCFailure", status)
	}
}

// TestDisconnectDuringSwapchainUseDropsOwnedResources: a client that
// disconnects mid-frame, without an explicit
// swapchain_destroy/session_destroy, must still have its swapchains
// reclaimed by the server-side teardown path.
func TestDisconnectDuringSwapchainUseDropsOwnedResources(t *testing.T) {
	s, bundle := newTestServer(t, 4)
	sess := acceptSlot(t, s, 0)
	if _, _, status := table[wire.CmdSessionCreate](s, sess, 0, encodeSessionCreate("demo", 1, false, 0, 0)); status != wire.Success {
		t.Fatalf("session_create status = %v", status)
	}
	if _, _, status := table[wire.CmdSessionBegin](s, sess, 0, nil); status != wire.Success {
		t.Fatalf("session_begin status = %v", status)
	}

	createTestSwapchain(t, s, sess)

	s.teardown(sess)

	if sess.State() != session.Ready {
		t.Fatalf("session state after disconnect teardown = %v, want READY", sess.State())
	}
	if s.arb.Primary() != -1 {
		t.Fatalf("arbiter primary after disconnect = %d, want -1", s.arb.Primary())
	}
	if err := s.comp.GarbageCollect(); err != nil {
		t.Fatalf("GarbageCollect after disconnect teardown: %v", err)
	}
	if n := len(bundle.Backing()); n != 0 {
		t.Fatalf("%d image backing stores survived teardown + garbage collect, want 0", n)
	}
}

// TestLayerSyncReleasesCommitReferences: a layer_sync pins every
// referenced swapchain for the duration of the commit; once the commit
// has gone through, swapchain_destroy plus one garbage-collect pass
// must actually free the images.
func TestLayerSyncReleasesCommitReferences(t *testing.T) {
	s, bundle := newTestServer(t, 4)
	sess := acceptSlot(t, s, 0)
	if _, _, status := table[wire.CmdSessionCreate](s, sess, 0, encodeSessionCreate("demo", 1, false, 0, 0)); status != wire.Success {
		t.Fatalf("session_create status = %v", status)
	}
	if _, _, status := table[wire.CmdSessionBegin](s, sess, 0, nil); status != wire.Success {
		t.Fatalf("session_begin status = %v", status)
	}

	scID := createTestSwapchain(t, s, sess)

	var acquire encoder
	acquire.u32(scID)
	reply, _, status := table[wire.CmdSwapchainAcquireImage](s, sess, 0, acquire.buf)
	if status != wire.Success {
		t.Fatalf("swapchain_acquire_image status = %v", status)
	}
	d := decoder{buf: reply}
	imageIndex, err := d.i32()
	if err != nil {
		t.Fatalf("decode image index: %v", err)
	}
	var release encoder
	release.u32(scID)
	release.i32(imageIndex)
	if _, _, status := table[wire.CmdSwapchainReleaseImage](s, sess, 0, release.buf); status != wire.Success {
		t.Fatalf("swapchain_release_image status = %v", status)
	}

	var beginFrame encoder
	beginFrame.u64(1)
	beginFrame.i64(1000)
	beginFrame.i32(int32(shm.BlendOpaque))
	if _, _, status := table[wire.CmdCompositorBeginFrame](s, sess, 0, beginFrame.buf); status != wire.Success {
		t.Fatalf("compositor_begin_frame status = %v", status)
	}

	var layerSync encoder
	layerSync.u32(1) // one quad layer referencing the swapchain
	layerSync.i32(int32(shm.LayerQuad))
	layerSync.i32(0)
	layerSync.u32(1)
	layerSync.u32(scID)
	if _, _, status := table[wire.CmdCompositorLayerSync](s, sess, 0, layerSync.buf); status != wire.Success {
		t.Fatalf("compositor_layer_sync status = %v", status)
	}

	var destroy encoder
	destroy.u32(scID)
	if _, _, status := table[wire.CmdSwapchainDestroy](s, sess, 0, destroy.buf); status != wire.Success {
		t.Fatalf("swapchain_destroy status = %v", status)
	}
	if err := s.comp.GarbageCollect(); err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
	if n := len(bundle.Backing()); n != 0 {
		t.Fatalf("%d image backing stores survived destroy + garbage collect, want 0", n)
	}
}
