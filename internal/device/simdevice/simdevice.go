// Package simdevice is an in-memory HMD/controller set that
// synthesizes sinusoidal poses, used by tests and the headless demo
// in place of a real HID/BLE/camera driver.
package simdevice

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/openxrd/openxrd/internal/device"
	"github.com/openxrd/openxrd/internal/shm"
)

// Kind selects which simulated device New constructs.
type Kind int

const (
	KindHMD Kind = iota
	KindLeftController
	KindRightController
)

// Device is a simulated device: it has no real hardware I/O thread,
// instead computing a pose from elapsed time on each GetTrackedPose
// call.
type Device struct {
	mu       sync.Mutex
	kind     Kind
	start    time.Time
	haptics  []device.OutputRequest
	ioActive bool
}

// New returns a simulated device of the given kind, started "now" for
// the purpose of its synthesized motion.
func New(kind Kind) *Device {
	return &Device{kind: kind, start: time.Now(), ioActive: true}
}

// CatalogEntry returns the shm.DeviceEntry this device publishes,
// excluding Index (assigned by the catalog at AddDevice time).
func (d *Device) CatalogEntry() shm.DeviceEntry {
	switch d.kind {
	case KindHMD:
		return shm.DeviceEntry{
			Name:       "Simulated HMD",
			Type:       shm.DeviceHMD,
			Caps:       shm.CapOrientationTracked | shm.CapPositionTracked,
			OriginName: "stage",
			Inputs: []shm.InputEndpoint{
				{Name: "head/pose", Kind: shm.ValuePose, Active: true},
			},
			HMD: &shm.HMDInfo{
				Eyes: [2]shm.EyeViewport{
					{WidthPixels: 1512, HeightPixels: 1680},
					{WidthPixels: 1512, HeightPixels: 1680},
				},
				BlendModes: []shm.BlendMode{shm.BlendOpaque},
			},
		}
	case KindLeftController:
		return d.controllerEntry("Simulated Left Controller")
	case KindRightController:
		return d.controllerEntry("Simulated Right Controller")
	default:
		return shm.DeviceEntry{}
	}
}

func (d *Device) controllerEntry(name string) shm.DeviceEntry {
	return shm.DeviceEntry{
		Name:       name,
		Type:       pickControllerType(d.kind),
		Caps:       shm.CapOrientationTracked | shm.CapPositionTracked | shm.CapForceFeedbackSupported,
		OriginName: "stage",
		Inputs: []shm.InputEndpoint{
			{Name: "grip/pose", Kind: shm.ValuePose, Active: true},
			{Name: "aim/pose", Kind: shm.ValuePose, Active: true},
			{Name: "trigger/value", Kind: shm.ValueScalar01, Active: true},
			{Name: "trigger/click", Kind: shm.ValueBool, Active: true},
			{Name: "thumbstick", Kind: shm.ValueVec2, Active: true},
		},
		Outputs: []shm.OutputEndpoint{
			{Name: "haptic"},
		},
	}
}

func pickControllerType(k Kind) shm.DeviceType {
	if k == KindLeftController {
		return shm.DeviceLeftHandController
	}
	return shm.DeviceRightHandController
}

// UpdateInputs is a no-op: this device computes poses on demand from
// elapsed time rather than buffering samples off an I/O thread.
func (d *Device) UpdateInputs() {}

// GetTrackedPose synthesizes a small circular motion around the
// origin, phase-shifted per input name (see phaseFor); every input
// uses the same radius, and a left and a right controller report the
// same pose for the same input name.
func (d *Device) GetTrackedPose(inputName string, atTimestampNanos int64) (device.SpaceRelation, error) {
	d.mu.Lock()
	ioActive := d.ioActive
	d.mu.Unlock()

	// Head pose is exempt from io_active gating. Dispatch enforces the
	// gate for every other input before reaching here, but simdevice
	// checks again for direct callers (e.g. tests) bypassing dispatch.
	if !ioActive && inputName != "head/pose" {
		return device.SpaceRelation{}, device.ErrPoseNotActive
	}

	elapsed := time.Duration(atTimestampNanos) - time.Duration(d.start.UnixNano())
	t := elapsed.Seconds()
	phase := phaseFor(inputName)
	pose := shm.Pose{
		OrientationW: 1,
		PositionX:    float32(0.1 * math.Cos(t+phase)),
		PositionY:    1.5,
		PositionZ:    float32(0.1 * math.Sin(t+phase)),
	}
	return device.SpaceRelation{
		Pose: pose,
		Flags: device.FlagOrientationValid | device.FlagPositionValid |
			device.FlagOrientationTracked | device.FlagPositionTracked,
	}, nil
}

func phaseFor(inputName string) float64 {
	switch inputName {
	case "head/pose":
		return 0
	case "grip/pose":
		return math.Pi / 2
	default:
		return math.Pi
	}
}

// GetHandTracking returns an all-invalid joint set: simdevice does not
// simulate hand tracking.
func (d *Device) GetHandTracking(inputName string, atTimestampNanos int64) (device.HandJointSet, error) {
	return device.HandJointSet{}, device.ErrPoseNotActive
}

// hapticSink, when non-nil, renders a SetOutput haptic request as an
// audible stand-in for the physical actuator. Set by
// haptics_demo.go's init under the demo_haptics build tag; nil
// otherwise, so the core never depends on an audio backend.
var hapticSink func(device.OutputRequest)

// SetOutput records the haptic request; tests assert against Haptics().
func (d *Device) SetOutput(req device.OutputRequest) error {
	if req.DurationNanos == -1 {
		req.DurationNanos = device.MinHapticDuration.Nanoseconds()
	}
	d.mu.Lock()
	d.haptics = append(d.haptics, req)
	d.mu.Unlock()
	if hapticSink != nil {
		hapticSink(req)
	}
	return nil
}

// Haptics returns every SetOutput call this device has recorded, for
// test assertions.
func (d *Device) Haptics() []device.OutputRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]device.OutputRequest, len(d.haptics))
	copy(out, d.haptics)
	return out
}

// SetIOActive sets the per-device input-gating flag a
// system_toggle_io_device handler drives.
func (d *Device) SetIOActive(active bool) {
	d.mu.Lock()
	d.ioActive = active
	d.mu.Unlock()
}

// Destroy releases resources; simdevice holds none.
func (d *Device) Destroy() error { return nil }

var _ device.Device = (*Device)(nil)

func (d *Device) String() string {
	return fmt.Sprintf("simdevice.Device{kind=%d}", d.kind)
}
