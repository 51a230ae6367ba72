package shm

import "testing"

func TestCatalogIndicesStableAfterPublish(t *testing.T) {
	cat := NewCatalog(1, 0)
	if err := cat.AddOrigin(TrackingOrigin{Name: "stage"}); err != nil {
		t.Fatalf("AddOrigin: %v", err)
	}
	idxHMD, err := cat.AddDevice(DeviceEntry{Name: "hmd", Type: DeviceHMD, OriginName: "stage"})
	if err != nil {
		t.Fatalf("AddDevice hmd: %v", err)
	}
	idxLeft, err := cat.AddDevice(DeviceEntry{Name: "left", Type: DeviceLeftHandController, OriginName: "stage"})
	if err != nil {
		t.Fatalf("AddDevice left: %v", err)
	}
	cat.Publish()

	if !cat.Published() {
		t.Fatal("expected Published() true")
	}
	if idxHMD != 0 || idxLeft != 1 {
		t.Fatalf("unexpected indices: hmd=%d left=%d", idxHMD, idxLeft)
	}

	// A reader that snapshots the catalog once must remain correct for
	// the lifetime of the connection: indices never move.
	entry, ok := cat.Device(idxHMD)
	if !ok || entry.Index != idxHMD || entry.Name != "hmd" {
		t.Fatalf("catalog entry moved or mutated: %+v", entry)
	}

	if err := cat.AddOrigin(TrackingOrigin{Name: "other"}); err == nil {
		t.Fatal("expected AddOrigin to fail after Publish")
	}
	if _, err := cat.AddDevice(DeviceEntry{Name: "late"}); err == nil {
		t.Fatal("expected AddDevice to fail after Publish")
	}
}

func TestCatalogDeviceCap(t *testing.T) {
	cat := NewCatalog(1, 0)
	for i := 0; i < MaxDevices; i++ {
		if _, err := cat.AddDevice(DeviceEntry{Name: "d"}); err != nil {
			t.Fatalf("AddDevice %d: %v", i, err)
		}
	}
	if _, err := cat.AddDevice(DeviceEntry{Name: "overflow"}); err == nil {
		t.Fatal("expected error once catalog is full")
	}
}

func TestRolesMutableAfterPublish(t *testing.T) {
	cat := NewCatalog(1, 0)
	idx, _ := cat.AddDevice(DeviceEntry{Name: "right", Type: DeviceRightHandController})
	cat.Publish()

	roles := NewRoleAssignments()
	roles.Right = idx
	cat.SetRoles(roles)
	if cat.Roles.Right != idx {
		t.Fatalf("role assignment did not take effect: %+v", cat.Roles)
	}
}

func TestSuggestedProfileBoundsCheck(t *testing.T) {
	cat := NewCatalog(1, 0)
	idx, _ := cat.AddDevice(DeviceEntry{Name: "right"})
	cat.Publish()

	if err := cat.SetSuggestedProfile(idx, "/interaction_profiles/test/profile"); err != nil {
		t.Fatalf("SetSuggestedProfile: %v", err)
	}
	entry, _ := cat.Device(idx)
	if entry.SuggestedProfile == "" {
		t.Fatal("expected suggested profile to be recorded")
	}
	if err := cat.SetSuggestedProfile(99, "x"); err == nil {
		t.Fatal("expected out-of-range error")
	}
}
