// Package shm implements the fixed-layout, cross-process device snapshot:
// a region published once by the runtime and mapped read-only by clients.
// Static fields are written before any client may attach;
// the only field mutated after attach is the layer-slot ring, and that
// mutation is always complete before current_slot_index is published to
// point at it.
package shm

import "time"

// MaxDevices bounds the device catalog. A device's index, once published,
// never moves: it is the inter-process identifier for that device.
const MaxDevices = 64

// MaxSlots sizes the layer-slot ring used to shuttle frame submissions
// from clients to the renderer without copying mid-frame.
const MaxSlots = 4

// MaxLayers bounds the number of layers one frame's slot may hold.
const MaxLayers = 16

// DeviceType enumerates the kinds of device the catalog can describe.
type DeviceType int32

const (
	DeviceHMD DeviceType = iota
	DeviceLeftHandController
	DeviceRightHandController
	DeviceGenericTracker
	DeviceHandTracker
	DeviceGamepad
)

// TrackingCaps is a bitset of capability flags for a catalog entry.
type TrackingCaps uint32

const (
	CapOrientationTracked TrackingCaps = 1 << iota
	CapPositionTracked
	CapHandTrackingSupported
	CapForceFeedbackSupported
)

// ValueKind describes what shape of data an InputEndpoint carries.
type ValueKind int32

const (
	ValueBool ValueKind = iota
	ValueScalar01
	ValueScalar11
	ValueVec2
	ValueVec3
	ValuePose
	ValueHandJointSet
)

// TrackingOrigin is a named frame of reference with an offset pose,
// deduplicated across the devices that share it.
type TrackingOrigin struct {
	Name   string
	Offset Pose
}

// Pose is a rigid transform: orientation plus position.
type Pose struct {
	OrientationX, OrientationY, OrientationZ, OrientationW float32
	PositionX, PositionY, PositionZ                        float32
}

// EyeViewport describes one HMD eye's recommended render target size.
type EyeViewport struct {
	WidthPixels, HeightPixels uint32
}

// BlendMode is an environmental blend mode an HMD may support.
type BlendMode int32

const (
	BlendOpaque BlendMode = iota
	BlendAdditive
	BlendAlphaBlend
)

// HMDInfo is the sub-record carrying per-eye view metadata.
type HMDInfo struct {
	Eyes       [2]EyeViewport
	BlendModes []BlendMode
}

// InputEndpoint is (name, active, timestamp, value): a semantic identifier
// plus a value kind, and whether the endpoint currently produces
// meaningful data.
type InputEndpoint struct {
	Name      string
	Kind      ValueKind
	Active    bool
	Timestamp time.Time
	Value     [4]float32 // interpretation depends on Kind
}

// OutputEndpoint is a device output the application may drive (e.g. a
// haptic actuator).
type OutputEndpoint struct {
	Name string
}

// BindingPair maps one interaction-profile semantic name to a physical
// endpoint index within the owning device's Inputs/Outputs slice.
type BindingPair struct {
	ProfileName   string
	EndpointIndex int
}

// BindingProfile is one named mapping a device publishes from an
// interaction-profile semantic input/output name to a physical endpoint.
type BindingProfile struct {
	ProfileName string
	InputPairs  []BindingPair
	OutputPairs []BindingPair
}

// DeviceEntry is one catalog slot. Once published at Index, Index never
// changes for the lifetime of the runtime.
type DeviceEntry struct {
	Index            int
	Name             string
	Type             DeviceType
	Caps             TrackingCaps
	OriginName       string
	Inputs           []InputEndpoint
	Outputs          []OutputEndpoint
	Profiles         []BindingProfile
	HMD              *HMDInfo // non-nil only for Type == DeviceHMD
	SuggestedProfile string   // last interaction profile a client suggested for this device
}

// RoleAssignments names the catalog indices currently playing each
// well-known role. -1 means the role is unassigned.
type RoleAssignments struct {
	Head            int
	Left            int
	Right           int
	Gamepad         int
	LeftHandTracker int
	RightHandTracker int
}

// NewRoleAssignments returns all-unassigned roles.
func NewRoleAssignments() RoleAssignments {
	return RoleAssignments{Head: -1, Left: -1, Right: -1, Gamepad: -1, LeftHandTracker: -1, RightHandTracker: -1}
}

// LayerSlot is a fixed-capacity array of layers plus the per-frame
// header. The Layers payload itself is opaque to shm;
// internal/compositor owns its structure and writes through this type.
type LayerSlot struct {
	FrameID            uint64
	DisplayTimeNanos   int64
	BlendMode          BlendMode
	OneProjectionFast  bool
	LayerCount         int
	Layers             [MaxLayers]LayerRef
}

// LayerRef is the shared-memory-visible projection of one committed layer:
// enough for a reader to know which swapchains and device a layer
// references without needing the full opaque layer payload.
type LayerRef struct {
	Kind            LayerKind
	DeviceIndex     int
	SwapchainIDs    [4]uint64
	SwapchainCount  int
}

// LayerKind enumerates the renderable layer variants.
type LayerKind int32

const (
	LayerStereoProjection LayerKind = iota
	LayerStereoProjectionDepth
	LayerQuad
	LayerCube
	LayerCylinder
	LayerEquirectV1
	LayerEquirectV2
)

// SwapchainCountForKind is the number of swapchains each layer kind binds.
func SwapchainCountForKind(k LayerKind) int {
	switch k {
	case LayerStereoProjection:
		return 2
	case LayerStereoProjectionDepth:
		return 4
	default:
		return 1
	}
}
