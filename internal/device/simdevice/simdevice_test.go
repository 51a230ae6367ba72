package simdevice

import (
	"testing"
	"time"

	"github.com/openxrd/openxrd/internal/device"
)

func TestHeadPoseExemptFromIOGating(t *testing.T) {
	d := New(KindHMD)
	d.SetIOActive(false)
	if _, err := d.GetTrackedPose("head/pose", time.Now().UnixNano()); err != nil {
		t.Fatalf("head/pose with io inactive: %v", err)
	}
}

func TestOtherInputsGatedByIOActive(t *testing.T) {
	d := New(KindLeftController)
	d.SetIOActive(false)
	if _, err := d.GetTrackedPose("grip/pose", time.Now().UnixNano()); err != device.ErrPoseNotActive {
		t.Fatalf("grip/pose with io inactive = %v, want ErrPoseNotActive", err)
	}
	d.SetIOActive(true)
	if _, err := d.GetTrackedPose("grip/pose", time.Now().UnixNano()); err != nil {
		t.Fatalf("grip/pose with io active: %v", err)
	}
}

func TestVibrationMinimumDurationSubstitution(t *testing.T) {
	d := New(KindRightController)
	if err := d.SetOutput(device.OutputRequest{Name: "haptic", Amplitude: 1, DurationNanos: -1}); err != nil {
		t.Fatalf("SetOutput: %v", err)
	}
	got := d.Haptics()
	if len(got) != 1 {
		t.Fatalf("Haptics() len = %d, want 1", len(got))
	}
	if got[0].DurationNanos != device.MinHapticDuration.Nanoseconds() {
		t.Fatalf("DurationNanos = %d, want %d", got[0].DurationNanos, device.MinHapticDuration.Nanoseconds())
	}
}

func TestHMDCatalogEntryCarriesHMDInfo(t *testing.T) {
	d := New(KindHMD)
	entry := d.CatalogEntry()
	if entry.HMD == nil {
		t.Fatal("HMD entry missing HMDInfo")
	}
	if len(entry.HMD.BlendModes) == 0 {
		t.Fatal("HMD entry missing blend modes")
	}
}
