// Package device defines the abstract device interface the runtime
// consumes. Concrete HID/BLE/camera drivers live behind it;
// internal/device/simdevice supplies an in-memory HMD/controller set
// used by tests and the headless demo, and internal/device/discover
// supplies the Prober registry the instance bootstrap walks at
// startup.
package device

import (
	"time"

	"github.com/openxrd/openxrd/internal/shm"
)

// RelationFlags is a bitset describing which fields of a SpaceRelation
// are valid/tracked.
type RelationFlags uint32

const (
	FlagOrientationValid RelationFlags = 1 << iota
	FlagPositionValid
	FlagLinearVelocityValid
	FlagAngularVelocityValid
	FlagOrientationTracked
	FlagPositionTracked
)

// SpaceRelation carries a pose plus linear/angular velocity and the
// flag-mask describing which of those are valid/tracked.
type SpaceRelation struct {
	Pose            shm.Pose
	LinearVelocity  [3]float32
	AngularVelocity [3]float32
	Flags           RelationFlags
}

// HandJoint is one joint of a hand-tracking skeleton.
type HandJoint struct {
	Pose   shm.Pose
	Radius float32
	Valid  bool
}

// HandJointSet is the full joint array GetHandTracking returns. 26
// joints matches the common wrist+finger skeleton real OpenXR-family
// runtimes publish (wrist, palm, plus 5 joints for each of the four
// fingers and the thumb's 4).
type HandJointSet [26]HandJoint

// OutputRequest is one SetOutput call's payload. DurationNanos == -1
// means "minimum platform duration"; callers should substitute
// MinHapticDuration rather than inlining a magic number.
type OutputRequest struct {
	Name          string
	Amplitude     float32
	DurationNanos int64
	FrequencyHz   float32
}

// MinHapticDuration is the platform constant substituted for a
// DurationNanos of -1.
const MinHapticDuration = 100 * time.Millisecond

// Device is the abstract device interface the runtime consumes. Each
// catalog entry (internal/shm.DeviceEntry) is backed by exactly one
// Device for its lifetime.
type Device interface {
	// UpdateInputs polls the device's own I/O thread for freshly
	// produced input samples. Called once per server tick.
	UpdateInputs()
	// GetTrackedPose resolves inputName (as published in the device's
	// shm.InputEndpoint list) to a space relation as of atTimestampNanos.
	GetTrackedPose(inputName string, atTimestampNanos int64) (SpaceRelation, error)
	// GetHandTracking resolves a hand-joint-set input.
	GetHandTracking(inputName string, atTimestampNanos int64) (HandJointSet, error)
	// SetOutput drives an output endpoint (e.g. haptic).
	SetOutput(req OutputRequest) error
	// Destroy releases the device's resources and stops its I/O thread.
	Destroy() error
}

// ErrPoseNotActive is returned by GetTrackedPose/GetHandTracking when
// the named input exists but is not currently producing data
// (wire.PoseNotActive at the dispatch boundary).
var ErrPoseNotActive = poseNotActiveError{}

type poseNotActiveError struct{}

func (poseNotActiveError) Error() string { return "device: input is not active" }
