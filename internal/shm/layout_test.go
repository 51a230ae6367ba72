package shm

import (
	"testing"
	"time"
)

func newSegmentBuf() []byte {
	return make([]byte, SegmentSize)
}

// TestEncodeDecodeCatalogRoundTrip: a catalog encoded into a flat
// buffer and decoded back by a reader with no access to the original
// Catalog object reproduces every field, including the
// cross-references a real client resolves by index (origin name via
// OriginIndex, nested inputs/outputs/profiles/binding pairs via
// first-index+count).
func TestEncodeDecodeCatalogRoundTrip(t *testing.T) {
	cat := NewCatalog(3, 555)
	if err := cat.AddOrigin(TrackingOrigin{Name: "stage", Offset: Pose{OrientationW: 1, PositionY: 1.5}}); err != nil {
		t.Fatalf("AddOrigin: %v", err)
	}
	hmd := DeviceEntry{
		Name:       "hmd",
		Type:       DeviceHMD,
		Caps:       CapOrientationTracked | CapPositionTracked,
		OriginName: "stage",
		Inputs: []InputEndpoint{
			{Name: "head/pose", Kind: ValuePose, Active: true, Timestamp: time.Unix(0, 123456), Value: [4]float32{1, 2, 3, 4}},
		},
		Outputs: []OutputEndpoint{{Name: "haptic"}},
		Profiles: []BindingProfile{
			{
				ProfileName: "/interaction_profiles/test/hmd",
				InputPairs:  []BindingPair{{ProfileName: "/interaction_profiles/test/hmd", EndpointIndex: 0}},
			},
		},
		HMD: &HMDInfo{
			Eyes:       [2]EyeViewport{{WidthPixels: 1024, HeightPixels: 1200}, {WidthPixels: 1024, HeightPixels: 1200}},
			BlendModes: []BlendMode{BlendOpaque, BlendAlphaBlend},
		},
		SuggestedProfile: "/interaction_profiles/test/hmd",
	}
	idx, err := cat.AddDevice(hmd)
	if err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	cat.Roles.Head = idx
	cat.Publish()

	buf := newSegmentBuf()
	if err := EncodeCatalog(buf, cat); err != nil {
		t.Fatalf("EncodeCatalog: %v", err)
	}

	got, err := DecodeCatalog(buf)
	if err != nil {
		t.Fatalf("DecodeCatalog: %v", err)
	}

	if len(got.Origins) != 1 || got.Origins[0].Name != "stage" {
		t.Fatalf("origins round-trip: %+v", got.Origins)
	}
	if got.Origins[0].Offset.OrientationW != 1 || got.Origins[0].Offset.PositionY != 1.5 {
		t.Fatalf("origin pose round-trip: %+v", got.Origins[0].Offset)
	}
	if len(got.Devices) != 1 {
		t.Fatalf("device count = %d, want 1", len(got.Devices))
	}
	d := got.Devices[0]
	if d.Name != "hmd" || d.Type != DeviceHMD || d.OriginName != "stage" {
		t.Fatalf("device fields round-trip: %+v", d)
	}
	if len(d.Inputs) != 1 || d.Inputs[0].Name != "head/pose" || !d.Inputs[0].Active {
		t.Fatalf("device inputs round-trip: %+v", d.Inputs)
	}
	if d.Inputs[0].Value != [4]float32{1, 2, 3, 4} {
		t.Fatalf("input value round-trip: %+v", d.Inputs[0].Value)
	}
	if len(d.Outputs) != 1 || d.Outputs[0].Name != "haptic" {
		t.Fatalf("device outputs round-trip: %+v", d.Outputs)
	}
	if len(d.Profiles) != 1 || len(d.Profiles[0].InputPairs) != 1 {
		t.Fatalf("device profiles round-trip: %+v", d.Profiles)
	}
	if d.HMD == nil || d.HMD.Eyes[0].WidthPixels != 1024 || len(d.HMD.BlendModes) != 2 {
		t.Fatalf("device HMD sub-record round-trip: %+v", d.HMD)
	}
	if d.SuggestedProfile != "/interaction_profiles/test/hmd" {
		t.Fatalf("suggested profile round-trip: %q", d.SuggestedProfile)
	}
	if got.Roles.Head != idx {
		t.Fatalf("role assignment round-trip: Head = %d, want %d", got.Roles.Head, idx)
	}
}

// TestEncodeSlotPublishOrdering: ReadSlotIndex must only ever point
// at a slot whose EncodeSlot has already completed, mirroring Ring's
// own in-process publication-rule test.
func TestEncodeSlotPublishOrdering(t *testing.T) {
	buf := newSegmentBuf()
	InitRingSlotIndex(buf)
	if idx := ReadSlotIndex(buf); idx != -1 {
		t.Fatalf("fresh segment slot index = %d, want -1", idx)
	}

	slot := LayerSlot{FrameID: 42, DisplayTimeNanos: 99, LayerCount: 1}
	slot.Layers[0] = LayerRef{Kind: LayerQuad, DeviceIndex: 0, SwapchainIDs: [4]uint64{7}, SwapchainCount: 1}

	if err := EncodeSlot(buf, 2, slot); err != nil {
		t.Fatalf("EncodeSlot: %v", err)
	}
	PublishSlotIndex(buf, 2)

	if idx := ReadSlotIndex(buf); idx != 2 {
		t.Fatalf("ReadSlotIndex = %d, want 2", idx)
	}
	got, err := DecodeSlot(buf, 2)
	if err != nil {
		t.Fatalf("DecodeSlot: %v", err)
	}
	if got.FrameID != 42 || got.LayerCount != 1 {
		t.Fatalf("slot round-trip: %+v", got)
	}
	if got.Layers[0].Kind != LayerQuad || got.Layers[0].SwapchainIDs[0] != 7 {
		t.Fatalf("layer round-trip: %+v", got.Layers[0])
	}
}

// TestRingMirrorsIntoAttachedSegment checks that Ring.Commit, once a
// segment is attached, keeps the segment's ring section consistent
// with the in-process copy every Current() call sees.
func TestRingMirrorsIntoAttachedSegment(t *testing.T) {
	buf := newSegmentBuf()
	r := NewRing()
	r.AttachSegment(buf)

	for frame := uint64(0); frame < uint64(MaxSlots*2); frame++ {
		idx := r.Commit(LayerSlot{FrameID: frame})

		segIdx := ReadSlotIndex(buf)
		if segIdx != idx {
			t.Fatalf("frame %d: segment slot index = %d, want %d", frame, segIdx, idx)
		}
		segSlot, err := DecodeSlot(buf, idx)
		if err != nil {
			t.Fatalf("DecodeSlot: %v", err)
		}
		if segSlot.FrameID != frame {
			t.Fatalf("frame %d: segment slot FrameID = %d, want %d", frame, segSlot.FrameID, frame)
		}
	}
}
