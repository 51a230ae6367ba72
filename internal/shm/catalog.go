package shm

import "fmt"

// Catalog is the static part of the device snapshot: the tracking-origin
// set, the device entries, the HMD sub-record, and the role table. It is
// built once at startup, device indices are permanent, and everything
// but the role table is immutable from the moment Publish returns.
// Callers must not attach a client before Publish returns.
type Catalog struct {
	published bool

	Version          uint32
	StartupTimestamp int64

	Origins []TrackingOrigin
	Devices []DeviceEntry
	Roles   RoleAssignments
	HMD     HMDInfo
}

// NewCatalog returns an unpublished, empty catalog.
func NewCatalog(version uint32, startupTimestamp int64) *Catalog {
	return &Catalog{
		Version:          version,
		StartupTimestamp: startupTimestamp,
		Roles:            NewRoleAssignments(),
	}
}

// AddOrigin appends a deduplicated tracking origin; devices reference it
// by its Name. Must be called before Publish.
func (c *Catalog) AddOrigin(origin TrackingOrigin) error {
	if c.published {
		return fmt.Errorf("shm: catalog already published")
	}
	for _, existing := range c.Origins {
		if existing.Name == origin.Name {
			return nil
		}
	}
	c.Origins = append(c.Origins, origin)
	return nil
}

// AddDevice appends a device entry and assigns it the next catalog index.
// The returned index is permanent for the lifetime of the runtime.
func (c *Catalog) AddDevice(entry DeviceEntry) (int, error) {
	if c.published {
		return -1, fmt.Errorf("shm: catalog already published")
	}
	if len(c.Devices) >= MaxDevices {
		return -1, fmt.Errorf("shm: device catalog full (cap %d)", MaxDevices)
	}
	entry.Index = len(c.Devices)
	c.Devices = append(c.Devices, entry)
	return entry.Index, nil
}

// SetRoles records which catalog indices currently fill each well-known
// role. May be called again after Publish: role assignment is allowed to
// change at runtime (e.g. a controller disconnects and a different one
// takes over "right hand"), but it never changes a device's own Index or
// Input/Output slices.
func (c *Catalog) SetRoles(roles RoleAssignments) {
	c.Roles = roles
}

// SetSuggestedProfile records the interaction profile a client most
// recently suggested for a device (session_suggest_interaction_profile),
// surfaced read-only for diagnostics. Like SetRoles it may be called
// after Publish; callers serialize against concurrent catalog readers.
func (c *Catalog) SetSuggestedProfile(deviceIndex int, profile string) error {
	if deviceIndex < 0 || deviceIndex >= len(c.Devices) {
		return fmt.Errorf("shm: device index %d out of range", deviceIndex)
	}
	c.Devices[deviceIndex].SuggestedProfile = profile
	return nil
}

// Publish freezes the static portion of the catalog. After Publish, no
// device may be added and no origin may be added; AddDevice/AddOrigin
// return errors. Clients may attach only after Publish returns.
func (c *Catalog) Publish() {
	c.published = true
}

// Published reports whether the catalog has been frozen.
func (c *Catalog) Published() bool {
	return c.published
}

// Device returns the catalog entry at idx. The returned value is a copy:
// callers never get a pointer into mutable runtime state from a read
// of static catalog data.
func (c *Catalog) Device(idx int) (DeviceEntry, bool) {
	if idx < 0 || idx >= len(c.Devices) {
		return DeviceEntry{}, false
	}
	return c.Devices[idx], true
}
