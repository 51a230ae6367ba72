package simdevice

import "github.com/openxrd/openxrd/internal/device/discover"

// Prober is a discover.Prober that always succeeds, publishing the
// fixed HMD + left/right controller trio. It is the always-available
// backend the instance bootstrap registers first, so the runtime
// comes up with a usable device set on any host.
type Prober struct{}

// Name identifies this prober in startup logs and Registry.Names.
func (Prober) Name() string { return "simdevice" }

// Probe returns the fixed HMD + controller trio.
func (Prober) Probe() ([]discover.Found, error) {
	hmd := New(KindHMD)
	left := New(KindLeftController)
	right := New(KindRightController)
	return []discover.Found{
		{Entry: hmd.CatalogEntry(), Device: hmd},
		{Entry: left.CatalogEntry(), Device: left},
		{Entry: right.CatalogEntry(), Device: right},
	}, nil
}

var _ discover.Prober = Prober{}
