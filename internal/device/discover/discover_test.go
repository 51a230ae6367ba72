package discover

import "testing"

type fakeProber struct {
	name      string
	found     []Found
	err       error
}

func (f fakeProber) Name() string          { return f.name }
func (f fakeProber) Probe() ([]Found, error) { return f.found, f.err }

func TestProbeAllCollectsAndSkips(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeProber{name: "a", found: []Found{{}, {}}})
	r.Register(fakeProber{name: "b", err: ErrNotSupported})
	r.Register(fakeProber{name: "c", found: []Found{{}}})

	found, skipped, err := r.ProbeAll()
	if err != nil {
		t.Fatalf("ProbeAll: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("found = %d, want 3", len(found))
	}
	if len(skipped) != 1 || skipped[0] != "b" {
		t.Fatalf("skipped = %v, want [b]", skipped)
	}
}

func TestProbeAllPropagatesRealErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeProber{name: "broken", err: errBoom})
	if _, _, err := r.ProbeAll(); err == nil {
		t.Fatal("expected error to propagate")
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
