package dispatch

import (
	"time"

	"github.com/openxrd/openxrd/internal/compositor"
	"github.com/openxrd/openxrd/internal/device"
	"github.com/openxrd/openxrd/internal/gpu"
	"github.com/openxrd/openxrd/internal/session"
	"github.com/openxrd/openxrd/internal/shm"
	"github.com/openxrd/openxrd/internal/swapchain"
	"github.com/openxrd/openxrd/internal/wire"
)

func malformed() ([]byte, []int, wire.Status) { return nil, nil, wire.IPCFailure }

// --- get_shm_handle / system_compositor_get_info ---------------------

func handleGetShmHandle(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if s.segment == nil {
		return nil, nil, wire.IPCFailure
	}
	return nil, []int{s.segment.Handle()}, wire.Success
}

func handleSystemCompositorGetInfo(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	var e encoder
	e.i64(s.startupTimestamp)
	e.str(s.buildID)
	e.i64((time.Second / time.Duration(max1(s.refreshRateHz))).Nanoseconds())
	return e.buf, nil, wire.Success
}

func max1(n int) int {
	if n <= 0 {
		return 60
	}
	return n
}

// --- session lifecycle -------------------------------------------------

func handleSessionCreate(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	appName, err := d.str()
	if err != nil {
		return malformed()
	}
	pid, err := d.i32()
	if err != nil {
		return malformed()
	}
	overlay, err := d.boolean()
	if err != nil {
		return malformed()
	}
	zOrder, err := d.i64()
	if err != nil {
		return malformed()
	}
	caps, err := d.u32()
	if err != nil {
		return malformed()
	}

	if sess.HasCompositor() {
		return nil, nil, wire.SessionAlreadyCreated
	}
	sess.Reconfigure(appName, int(pid), overlay, zOrder)
	sess.SetCapabilities(session.Capabilities(caps))
	sess.AttachCompositor(s.comp.NewClientHandle(idx))
	return nil, nil, wire.Success
}

func handleSessionBegin(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	sess.BeginSession()
	s.Recompute()
	return nil, nil, wire.Success
}

func handleSessionEnd(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	sess.EndSession()
	s.Recompute()
	return nil, nil, wire.Success
}

func handleSessionDestroy(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	sess.EndSession()
	// The connection stays open and in RUNNING: only the session-level
	// resources go away, so the client can session_create again over
	// the same channel.
	if err := sess.DestroyResources(s.comp.DestroyStack(), nil); err != nil {
		return nil, nil, wire.IPCFailure
	}
	s.Recompute()
	return nil, nil, wire.Success
}

// handleSessionSuggestInteractionProfile records the interaction
// profile a client wants resolved against a device's published
// bindings, ahead of binding resolution. The last suggestion wins and
// is readable back through the device catalog for diagnostics.
func handleSessionSuggestInteractionProfile(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	d := decoder{buf: req}
	deviceIndex, err := d.i32()
	if err != nil {
		return malformed()
	}
	profile, err := d.str()
	if err != nil {
		return malformed()
	}
	s.mu.Lock()
	err = s.catalog.SetSuggestedProfile(int(deviceIndex), profile)
	s.mu.Unlock()
	if err != nil {
		return nil, nil, wire.IPCFailure
	}
	return nil, nil, wire.Success
}

// --- compositor frame loop ---------------------------------------------

func handleCompositorGetInfo(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	// Under s.mu: the role table and per-device suggested profile are
	// the catalog's two post-publish-mutable fields.
	s.mu.Lock()
	hmd, _ := s.catalog.Device(s.catalog.Roles.Head)
	s.mu.Unlock()
	var e encoder
	if hmd.HMD != nil {
		for _, eye := range hmd.HMD.Eyes {
			e.u32(eye.WidthPixels)
			e.u32(eye.HeightPixels)
		}
		e.u32(uint32(len(hmd.HMD.BlendModes)))
		for _, b := range hmd.HMD.BlendModes {
			e.i32(int32(b))
		}
	}
	return e.buf, nil, wire.Success
}

func handleCompositorPredictFrame(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	displayTime, period := s.comp.Predict()
	var e encoder
	e.i64(displayTime.UnixNano())
	e.i64(int64(period))
	return e.buf, nil, wire.Success
}

func handleCompositorWaitWoke(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	d := decoder{buf: req}
	wakeNanos, err := d.i64()
	if err != nil {
		return malformed()
	}
	s.comp.WaitWoke(time.Unix(0, wakeNanos))
	return nil, nil, wire.Success
}

func handleCompositorBeginFrame(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	d := decoder{buf: req}
	frameID, err := d.u64()
	if err != nil {
		return malformed()
	}
	displayTime, err := d.i64()
	if err != nil {
		return malformed()
	}
	blend, err := d.i32()
	if err != nil {
		return malformed()
	}
	s.comp.LayerBegin(frameID, displayTime, shm.BlendMode(blend))
	return nil, nil, wire.Success
}

func handleCompositorDiscardFrame(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	s.comp.DiscardFrame()
	return nil, nil, wire.Success
}

// submittedImage is one (swapchain, image index) pair a layer_sync
// referenced, recorded so the caller can mark it GPU-complete once the
// commit that referenced it has gone through.
type submittedImage struct {
	sc  *swapchain.Swapchain
	idx int
}

// decodeLayers reads a layer_sync request's variable-length layer
// array: a count, then per layer a kind, device index, and
// swapchain-id array looked up against the session's own owned
// swapchains, so layer_sync can never reference another client's
// resources. Each decoded layer is appended to comp's in-flight slot.
// Every
// referenced swapchain has its most recently released image marked
// in-use for the duration of this submission (Submit) and carries an
// extra reference for the commit itself, so a concurrent
// swapchain_wait_image blocks and a concurrent swapchain_destroy
// cannot free the images until the commit is handed to the presenter.
// On error the partial submitted list is returned so the caller can
// unwind it with releaseSubmitted.
func decodeLayers(comp *compositor.Base, sess *session.Session, d *decoder) ([]submittedImage, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	var submitted []submittedImage
	for i := uint32(0); i < count; i++ {
		kind, err := d.i32()
		if err != nil {
			return submitted, err
		}
		deviceIndex, err := d.i32()
		if err != nil {
			return submitted, err
		}
		scCount, err := d.u32()
		if err != nil {
			return submitted, err
		}
		ref := shm.LayerRef{Kind: shm.LayerKind(kind), DeviceIndex: int(deviceIndex), SwapchainCount: int(scCount)}
		for j := uint32(0); j < scCount && j < 4; j++ {
			scID, err := d.u32()
			if err != nil {
				return submitted, err
			}
			sc, err := sess.Swapchain(swapchain.ID(scID))
			if err != nil {
				return submitted, err
			}
			ref.SwapchainIDs[j] = uint64(scID)
			imgIdx, err := sc.Submit()
			if err != nil {
				return submitted, err
			}
			sc.AddRef()
			submitted = append(submitted, submittedImage{sc: sc, idx: imgIdx})
		}
		if err := comp.AppendLayer(ref); err != nil {
			return submitted, err
		}
	}
	return submitted, nil
}

// releaseSubmitted ends a commit's hold on everything decodeLayers
// pinned: each image's use-count drops (waking swapchain_wait_image
// callers) and the commit's swapchain reference is returned, so a
// swapchain the owning session has already dropped can reach the
// deferred-destruction stack. LayerCommit has already waited out any
// client-supplied semaphore and handed the slot to the presenter by
// the time this runs on the success path, so the GPU work referencing
// these images is complete.
func releaseSubmitted(stack *swapchain.DestroyStack, submitted []submittedImage) {
	for _, si := range submitted {
		si.sc.MarkSubmissionComplete(si.idx)
		si.sc.DropRef(stack)
	}
}

func handleCompositorLayerSync(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	d := decoder{buf: req}
	submitted, err := decodeLayers(s.comp, sess, &d)
	if err != nil {
		releaseSubmitted(s.comp.DestroyStack(), submitted)
		return malformed()
	}
	if _, err := s.comp.LayerCommit(nil, 0, 0); err != nil {
		releaseSubmitted(s.comp.DestroyStack(), submitted)
		return nil, nil, statusFromErr(err)
	}
	releaseSubmitted(s.comp.DestroyStack(), submitted)
	return nil, nil, wire.Success
}

func handleCompositorLayerSyncWithSemaphore(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	d := decoder{buf: req}
	semID, err := d.u32()
	if err != nil {
		return malformed()
	}
	syncValue, err := d.u64()
	if err != nil {
		return malformed()
	}
	timeoutNanos, err := d.i64()
	if err != nil {
		return malformed()
	}
	submitted, err := decodeLayers(s.comp, sess, &d)
	if err != nil {
		releaseSubmitted(s.comp.DestroyStack(), submitted)
		return malformed()
	}
	sem, err := sess.Semaphore(int(semID))
	if err != nil {
		releaseSubmitted(s.comp.DestroyStack(), submitted)
		return nil, nil, wire.IPCFailure
	}
	if _, err := s.comp.LayerCommit(sem, syncValue, time.Duration(timeoutNanos)); err != nil {
		releaseSubmitted(s.comp.DestroyStack(), submitted)
		return nil, nil, statusFromErr(err)
	}
	releaseSubmitted(s.comp.DestroyStack(), submitted)
	return nil, nil, wire.Success
}

func handleCompositorPollEvents(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	var e encoder
	e.bool(sess.VisibleState())
	e.bool(sess.FocusedState())
	e.i64(sess.ZOrder())
	return e.buf, nil, wire.Success
}

// --- swapchains ----------------------------------------------------------

func decodeCreateInfo(d *decoder) (swapchain.CreateInfo, error) {
	var info swapchain.CreateInfo
	w, err := d.u32()
	if err != nil {
		return info, err
	}
	h, err := d.u32()
	if err != nil {
		return info, err
	}
	layers, err := d.u32()
	if err != nil {
		return info, err
	}
	format, err := d.i32()
	if err != nil {
		return info, err
	}
	protected, err := d.boolean()
	if err != nil {
		return info, err
	}
	static, err := d.boolean()
	if err != nil {
		return info, err
	}
	info.Width, info.Height, info.ArrayLayers = w, h, layers
	info.Format = gpu.Format(format)
	info.Protected, info.StaticImage = protected, static
	return info, nil
}

func handleSwapchainGetProperties(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	info, err := decodeCreateInfo(&d)
	if err != nil {
		return malformed()
	}
	props := s.comp.GetSwapchainCreateProperties(info)
	var e encoder
	e.i32(int32(props.ImageCount))
	return e.buf, nil, wire.Success
}

func handleSwapchainCreate(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	d := decoder{buf: req}
	info, err := decodeCreateInfo(&d)
	if err != nil {
		return malformed()
	}
	sc, err := s.comp.CreateSwapchain(info)
	if err != nil {
		return nil, nil, statusFromErr(err)
	}
	id, err := sess.AllocSwapchainSlot(sc)
	if err != nil {
		sc.DropRef(s.comp.DestroyStack())
		return nil, nil, wire.Allocation
	}
	var e encoder
	e.u32(uint32(id))
	e.i32(int32(sc.ImageCount()))
	for _, img := range sc.Images() {
		e.u64(uint64(img.Native))
	}
	return e.buf, nil, wire.Success
}

func handleSwapchainImport(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	d := decoder{buf: req}
	info, err := decodeCreateInfo(&d)
	if err != nil {
		return malformed()
	}
	count, err := d.u32()
	if err != nil {
		return malformed()
	}
	natives := make([]gpu.NativeHandle, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := d.u64()
		if err != nil {
			return malformed()
		}
		natives = append(natives, gpu.NativeHandle(v))
	}
	sc, err := s.comp.ImportSwapchain(info, natives)
	if err != nil {
		return nil, nil, statusFromErr(err)
	}
	id, err := sess.AllocSwapchainSlot(sc)
	if err != nil {
		sc.DropRef(s.comp.DestroyStack())
		return nil, nil, wire.Allocation
	}
	var e encoder
	e.u32(uint32(id))
	return e.buf, nil, wire.Success
}

func handleSwapchainWaitImage(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	scID, err := d.u32()
	if err != nil {
		return malformed()
	}
	imageIndex, err := d.i32()
	if err != nil {
		return malformed()
	}
	timeoutNanos, err := d.i64()
	if err != nil {
		return malformed()
	}
	sc, err := sess.Swapchain(swapchain.ID(scID))
	if err != nil {
		return nil, nil, wire.IPCFailure
	}
	if err := sc.WaitImage(int(imageIndex), time.Duration(timeoutNanos)); err != nil {
		return nil, nil, statusFromErr(err)
	}
	return nil, nil, wire.Success
}

func handleSwapchainAcquireImage(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	scID, err := d.u32()
	if err != nil {
		return malformed()
	}
	sc, err := sess.Swapchain(swapchain.ID(scID))
	if err != nil {
		return nil, nil, wire.IPCFailure
	}
	index, err := sc.Acquire()
	if err != nil {
		return nil, nil, statusFromErr(err)
	}
	var e encoder
	e.i32(int32(index))
	return e.buf, nil, wire.Success
}

func handleSwapchainReleaseImage(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	scID, err := d.u32()
	if err != nil {
		return malformed()
	}
	imageIndex, err := d.i32()
	if err != nil {
		return malformed()
	}
	sc, err := sess.Swapchain(swapchain.ID(scID))
	if err != nil {
		return nil, nil, wire.IPCFailure
	}
	if err := sc.Release(int(imageIndex)); err != nil {
		return nil, nil, statusFromErr(err)
	}
	return nil, nil, wire.Success
}

func handleSwapchainDestroy(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	scID, err := d.u32()
	if err != nil {
		return malformed()
	}
	sc, err := sess.RemoveSwapchain(swapchain.ID(scID))
	if err != nil {
		return nil, nil, wire.IPCFailure
	}
	if sc != nil {
		sc.DropRef(s.comp.DestroyStack())
	}
	return nil, nil, wire.Success
}

// --- semaphores ------------------------------------------------------------

func handleCompositorSemaphoreCreate(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	if !sess.HasCompositor() {
		return nil, nil, wire.SessionNotCreated
	}
	sem, err := s.comp.CreateSemaphore()
	if err != nil {
		return nil, nil, statusFromErr(err)
	}
	id, err := sess.AllocSemaphoreSlot(sem)
	if err != nil {
		_ = sem.DropRef()
		return nil, nil, wire.Allocation
	}
	var e encoder
	e.u32(uint32(id))
	e.u64(uint64(sem.Native()))
	return e.buf, nil, wire.Success
}

func handleCompositorSemaphoreDestroy(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	semID, err := d.u32()
	if err != nil {
		return malformed()
	}
	sem, err := sess.RemoveSemaphore(int(semID))
	if err != nil {
		return nil, nil, wire.IPCFailure
	}
	if sem != nil {
		if err := sem.DropRef(); err != nil {
			return nil, nil, statusFromErr(err)
		}
	}
	return nil, nil, wire.Success
}

// --- devices -----------------------------------------------------------

func lookupDevice(s *Server, index int32) (device.Device, bool) {
	if index < 0 || int(index) >= len(s.devices) {
		return nil, false
	}
	return s.devices[index], true
}

func handleDeviceUpdateInput(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	deviceIndex, err := d.i32()
	if err != nil {
		return malformed()
	}
	dev, ok := lookupDevice(s, deviceIndex)
	if !ok {
		return nil, nil, wire.IPCFailure
	}
	dev.UpdateInputs()
	return nil, nil, wire.Success
}

func handleDeviceGetTrackedPose(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	deviceIndex, err := d.i32()
	if err != nil {
		return malformed()
	}
	inputName, err := d.str()
	if err != nil {
		return malformed()
	}
	atTimestampNanos, err := d.i64()
	if err != nil {
		return malformed()
	}
	dev, ok := lookupDevice(s, deviceIndex)
	if !ok {
		return nil, nil, wire.IPCFailure
	}
	// Per-client IO gating (system_toggle_io_client) never blocks head
	// pose: reprojection needs it even when an unfocused app's other
	// input has been muted.
	if !sess.IOActive() && inputName != "head/pose" {
		return nil, nil, wire.PoseNotActive
	}
	rel, err := dev.GetTrackedPose(inputName, atTimestampNanos)
	if err != nil {
		return nil, nil, statusFromErr(err)
	}
	var e encoder
	e.spaceRelation(rel)
	return e.buf, nil, wire.Success
}

func handleDeviceGetHandTracking(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	deviceIndex, err := d.i32()
	if err != nil {
		return malformed()
	}
	inputName, err := d.str()
	if err != nil {
		return malformed()
	}
	atTimestampNanos, err := d.i64()
	if err != nil {
		return malformed()
	}
	dev, ok := lookupDevice(s, deviceIndex)
	if !ok {
		return nil, nil, wire.IPCFailure
	}
	if !sess.IOActive() {
		return nil, nil, wire.PoseNotActive
	}
	hs, err := dev.GetHandTracking(inputName, atTimestampNanos)
	if err != nil {
		return nil, nil, statusFromErr(err)
	}
	var e encoder
	e.handJointSet(hs)
	return e.buf, nil, wire.Success
}

func handleDeviceGetViewPoses(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	deviceIndex, err := d.i32()
	if err != nil {
		return malformed()
	}
	atTimestampNanos, err := d.i64()
	if err != nil {
		return malformed()
	}
	dev, ok := lookupDevice(s, deviceIndex)
	if !ok {
		return nil, nil, wire.IPCFailure
	}
	rel, err := dev.GetTrackedPose("head/pose", atTimestampNanos)
	if err != nil {
		return nil, nil, statusFromErr(err)
	}
	var e encoder
	// Both eyes share the head pose here; a stereo offset would be
	// applied client-side from the IPD negotiated out of band.
	e.spaceRelation(rel)
	e.spaceRelation(rel)
	return e.buf, nil, wire.Success
}

func handleDeviceSetOutput(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	deviceIndex, err := d.i32()
	if err != nil {
		return malformed()
	}
	name, err := d.str()
	if err != nil {
		return malformed()
	}
	amplitude, err := d.f32()
	if err != nil {
		return malformed()
	}
	durationNanos, err := d.i64()
	if err != nil {
		return malformed()
	}
	freq, err := d.f32()
	if err != nil {
		return malformed()
	}
	dev, ok := lookupDevice(s, deviceIndex)
	if !ok {
		return nil, nil, wire.IPCFailure
	}
	if durationNanos == -1 {
		durationNanos = device.MinHapticDuration.Nanoseconds()
	}
	err = dev.SetOutput(device.OutputRequest{
		Name: name, Amplitude: amplitude,
		DurationNanos: durationNanos, FrequencyHz: freq,
	})
	if err != nil {
		return nil, nil, statusFromErr(err)
	}
	return nil, nil, wire.Success
}

// --- system / admin -----------------------------------------------------

func handleSystemGetClientInfo(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	target, err := d.i32()
	if err != nil {
		return malformed()
	}
	if target < 0 || int(target) >= len(s.sessions) {
		return nil, nil, wire.IPCFailure
	}
	t := s.sessions[target]
	if !t.ThreadSlotAssigned() {
		return nil, nil, wire.SessionNotCreated
	}
	var e encoder
	e.str(t.AppName())
	e.i32(int32(t.Pid()))
	e.bool(t.IsOverlay())
	e.i64(t.ZOrder())
	e.bool(t.VisibleState())
	e.bool(t.FocusedState())
	e.bool(t.IsActive())
	return e.buf, nil, wire.Success
}

func handleSystemSetClientInfo(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	caps, err := d.u32()
	if err != nil {
		return malformed()
	}
	sess.SetCapabilities(session.Capabilities(caps))
	return nil, nil, wire.Success
}

func handleSystemGetClients(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	var e encoder
	indices := make([]int32, 0, len(s.sessions))
	for i, t := range s.sessions {
		if t.ThreadSlotAssigned() {
			indices = append(indices, int32(i))
		}
	}
	e.u32(uint32(len(indices)))
	for _, i := range indices {
		e.i32(i)
	}
	return e.buf, nil, wire.Success
}

func handleSystemSetPrimaryClient(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	target, err := d.i32()
	if err != nil {
		return malformed()
	}
	if target < 0 || int(target) >= len(s.sessions) || !s.sessions[target].ThreadSlotAssigned() {
		return nil, nil, wire.IPCFailure
	}
	s.mu.Lock()
	s.arb.ForcePrimary(int(target))
	s.recomputeLocked()
	s.mu.Unlock()
	return nil, nil, wire.Success
}

// handleSystemSetFocusedClient shares system_set_primary_client's
// effect: the arbiter ties focus to the primary designation
// one-to-one, so there is no separate knob to turn.
func handleSystemSetFocusedClient(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	return handleSystemSetPrimaryClient(s, sess, idx, req)
}

func handleSystemToggleIOClient(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	target, err := d.i32()
	if err != nil {
		return malformed()
	}
	active, err := d.boolean()
	if err != nil {
		return malformed()
	}
	if target < 0 || int(target) >= len(s.sessions) || !s.sessions[target].ThreadSlotAssigned() {
		return nil, nil, wire.IPCFailure
	}
	s.sessions[target].SetIOActive(active)
	return nil, nil, wire.Success
}

// ioToggler is implemented by device drivers that can gate their own
// input sampling (internal/device/simdevice.Device); drivers that
// cannot are left untouched by system_toggle_io_device.
type ioToggler interface {
	SetIOActive(bool)
}

func handleSystemToggleIODevice(s *Server, sess *session.Session, idx int, req []byte) ([]byte, []int, wire.Status) {
	d := decoder{buf: req}
	deviceIndex, err := d.i32()
	if err != nil {
		return malformed()
	}
	active, err := d.boolean()
	if err != nil {
		return malformed()
	}
	dev, ok := lookupDevice(s, deviceIndex)
	if !ok {
		return nil, nil, wire.IPCFailure
	}
	if t, ok := dev.(ioToggler); ok {
		t.SetIOActive(active)
		return nil, nil, wire.Success
	}
	return nil, nil, wire.ProberNotSupported
}
