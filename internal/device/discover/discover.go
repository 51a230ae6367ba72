// Package discover is the device discovery and selection context the
// instance bootstrap (internal/runtime) walks at startup: a small
// Prober registry where every registered backend contributes zero or
// more devices to the catalog.
package discover

import (
	"fmt"
	"sort"

	"github.com/openxrd/openxrd/internal/device"
	"github.com/openxrd/openxrd/internal/shm"
)

// Found is one discovered device paired with the catalog entry it
// wants published.
type Found struct {
	Entry  shm.DeviceEntry
	Device device.Device
}

// Prober enumerates zero or more devices of one backend's kind.
// Returning an empty slice and a nil error means "supported, nothing
// attached"; ErrNotSupported (via the returned error) means the host
// cannot run this prober at all (wire.ProberNotSupported).
type Prober interface {
	Name() string
	Probe() ([]Found, error)
}

// ErrNotSupported is returned by a Prober whose backend the host does
// not support, surfaced to clients as wire.ProberNotSupported only if
// raised during a later re-probe; at startup it is simply logged and
// skipped, since one missing optional backend must not abort the whole
// bootstrap.
var ErrNotSupported = fmt.Errorf("discover: prober not supported on this host")

// Registry holds every registered Prober, probed in registration
// order during bootstrap for determinism (tests rely on stable device
// indices).
type Registry struct {
	probers []Prober
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds a prober. Call before ProbeAll.
func (r *Registry) Register(p Prober) {
	r.probers = append(r.probers, p)
}

// ProbeAll runs every registered prober in registration order,
// skipping (and logging via the returned skipped list) any that
// return ErrNotSupported.
func (r *Registry) ProbeAll() (found []Found, skipped []string, err error) {
	for _, p := range r.probers {
		results, perr := p.Probe()
		if perr != nil {
			if perr == ErrNotSupported {
				skipped = append(skipped, p.Name())
				continue
			}
			return nil, skipped, fmt.Errorf("discover: prober %q: %w", p.Name(), perr)
		}
		found = append(found, results...)
	}
	return found, skipped, nil
}

// Names returns every registered prober's name, sorted, for the
// startup log line listing what was attempted.
func (r *Registry) Names() []string {
	names := make([]string, len(r.probers))
	for i, p := range r.probers {
		names[i] = p.Name()
	}
	sort.Strings(names)
	return names
}
