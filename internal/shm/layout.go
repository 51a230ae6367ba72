package shm

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"
	"unsafe"
)

// This file is the fixed, pointer-free byte layout of the published
// snapshot: the device catalog and the layer-slot ring encoded
// directly into the mapped segment, the way a real cross-process
// reader (no access to this process's Go heap) has to see them. The
// Catalog and Ring types elsewhere in this package remain the
// in-process working copies internal/dispatch and internal/compositor
// read and write every frame; EncodeCatalog/EncodeSlot mirror their
// state into the segment bytes so an external reader gets the same
// data without an RPC round trip.
//
// Every record is a flat run of fixed-width fields (no string headers,
// no slice headers, no pointers) so a reader on the other side of a
// process boundary can walk it with nothing more than the byte offsets
// below.

const (
	nameSize = 48

	originRecordSize      = nameSize + 7*4 // Name + Pose (7 float32 fields)
	deviceRecordSize      = nameSize + 9*4 + 4 + 4*4 + 4 + 4*4 + nameSize
	inputRecordSize       = nameSize + 4 + 4 + 8 + 4*4
	outputRecordSize      = nameSize
	profileRecordSize     = nameSize + 4*4
	bindingPairRecordSize = nameSize + 4
	roleAssignmentsSize   = 6 * 4

	layerRefRecordSize = 4 + 4 + 4*8 + 4
	slotRecordSize     = 8 + 8 + 4 + 4 + 4 + MaxLayers*layerRefRecordSize

	maxOriginsLayout     = 16
	maxInputsTotal       = 512
	maxOutputsTotal      = 128
	maxProfilesTotal     = 128
	maxBindingPairsTotal = 512
	maxHMDBlendModes     = 4

	catalogOriginsOffset      = 4
	catalogDevicesCountOffset = catalogOriginsOffset + maxOriginsLayout*originRecordSize
	catalogDevicesOffset      = catalogDevicesCountOffset + 4
	catalogInputsOffset       = catalogDevicesOffset + MaxDevices*deviceRecordSize
	catalogOutputsOffset      = catalogInputsOffset + maxInputsTotal*inputRecordSize
	catalogProfilesOffset     = catalogOutputsOffset + maxOutputsTotal*outputRecordSize
	catalogBindingPairsOffset = catalogProfilesOffset + maxProfilesTotal*profileRecordSize
	catalogRolesOffset        = catalogBindingPairsOffset + maxBindingPairsTotal*bindingPairRecordSize
	catalogSectionSize        = catalogRolesOffset + roleAssignmentsSize

	// CatalogOffset is where the catalog section begins within a
	// segment's bytes, right after the version/timestamp/build-id header.
	CatalogOffset = SegmentHeaderSize

	// RingOffset is where the layer-slot ring section begins.
	RingOffset = CatalogOffset + catalogSectionSize

	ringUnalignedSlotIndexOffset = RingOffset + MaxSlots*slotRecordSize
	// ringSlotIndexPad rounds the index field up to an 8-byte boundary,
	// since sync/atomic's 64-bit ops require natural alignment on some
	// architectures (notably 32-bit ARM).
	ringSlotIndexPad    = (8 - ringUnalignedSlotIndexOffset%8) % 8
	RingSlotIndexOffset = ringUnalignedSlotIndexOffset + ringSlotIndexPad
	ringSectionSize     = MaxSlots*slotRecordSize + ringSlotIndexPad + 8

	// SegmentSize is the total mapped length NewSegment must allocate:
	// header + catalog + ring.
	SegmentSize = SegmentHeaderSize + catalogSectionSize + ringSectionSize
)

// deviceRecord field offsets, relative to the start of a device record.
const (
	devFieldType              = nameSize
	devFieldCaps              = devFieldType + 4
	devFieldOriginIndex       = devFieldCaps + 4
	devFieldFirstInputIndex   = devFieldOriginIndex + 4
	devFieldInputCount        = devFieldFirstInputIndex + 4
	devFieldFirstOutputIndex  = devFieldInputCount + 4
	devFieldOutputCount       = devFieldFirstOutputIndex + 4
	devFieldFirstProfileIndex = devFieldOutputCount + 4
	devFieldProfileCount      = devFieldFirstProfileIndex + 4
	devFieldHasHMD            = devFieldProfileCount + 4
	devFieldHMDEyes           = devFieldHasHMD + 4 // 1-byte bool plus 3 bytes of padding
	devFieldHMDBlendCount     = devFieldHMDEyes + 2*2*4
	devFieldHMDBlendModes     = devFieldHMDBlendCount + 4
	devFieldSuggestedProfile  = devFieldHMDBlendModes + maxHMDBlendModes*4
)

func putStr(buf []byte, off, size int, s string) {
	b := []byte(s)
	if len(b) > size {
		b = b[:size]
	}
	n := copy(buf[off:off+size], b)
	for i := off + n; i < off+size; i++ {
		buf[i] = 0
	}
}

func getStr(buf []byte, off, size int) string {
	end := off
	for end < off+size && buf[end] != 0 {
		end++
	}
	return string(buf[off:end])
}

func putFloat32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
}

func getFloat32(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

func putI32(buf []byte, off int, v int32)  { binary.LittleEndian.PutUint32(buf[off:], uint32(v)) }
func getI32(buf []byte, off int) int32     { return int32(binary.LittleEndian.Uint32(buf[off:])) }
func putU32(buf []byte, off int, v uint32) { binary.LittleEndian.PutUint32(buf[off:], v) }
func getU32(buf []byte, off int) uint32    { return binary.LittleEndian.Uint32(buf[off:]) }

func originIndexOf(origins []TrackingOrigin, name string) int32 {
	for i, o := range origins {
		if o.Name == name {
			return int32(i)
		}
	}
	return -1
}

// EncodeCatalog writes c's entire static snapshot into seg's catalog
// section: origins, devices with their flattened input/output/profile/
// binding-pair pools, and the role table. Called once, right after
// Catalog.Publish, so every static field is in place before any client
// may attach.
func EncodeCatalog(seg []byte, c *Catalog) error {
	if len(seg) < RingOffset {
		return fmt.Errorf("shm: segment too small for catalog section (%d < %d)", len(seg), RingOffset)
	}
	if len(c.Origins) > maxOriginsLayout {
		return fmt.Errorf("shm: %d origins exceeds layout cap %d", len(c.Origins), maxOriginsLayout)
	}
	if len(c.Devices) > MaxDevices {
		return fmt.Errorf("shm: %d devices exceeds layout cap %d", len(c.Devices), MaxDevices)
	}

	putU32(seg, CatalogOffset, uint32(len(c.Origins)))
	for i, o := range c.Origins {
		off := CatalogOffset + catalogOriginsOffset + i*originRecordSize
		putStr(seg, off, nameSize, o.Name)
		p := off + nameSize
		putFloat32(seg, p+0, o.Offset.OrientationX)
		putFloat32(seg, p+4, o.Offset.OrientationY)
		putFloat32(seg, p+8, o.Offset.OrientationZ)
		putFloat32(seg, p+12, o.Offset.OrientationW)
		putFloat32(seg, p+16, o.Offset.PositionX)
		putFloat32(seg, p+20, o.Offset.PositionY)
		putFloat32(seg, p+24, o.Offset.PositionZ)
	}

	putU32(seg, CatalogOffset+catalogDevicesCountOffset, uint32(len(c.Devices)))

	var inputCursor, outputCursor, profileCursor, pairCursor int
	for di, d := range c.Devices {
		devOff := CatalogOffset + catalogDevicesOffset + di*deviceRecordSize
		putStr(seg, devOff, nameSize, d.Name)
		putI32(seg, devOff+devFieldType, int32(d.Type))
		putU32(seg, devOff+devFieldCaps, uint32(d.Caps))
		putI32(seg, devOff+devFieldOriginIndex, originIndexOf(c.Origins, d.OriginName))

		if inputCursor+len(d.Inputs) > maxInputsTotal {
			return fmt.Errorf("shm: input pool exhausted (cap %d)", maxInputsTotal)
		}
		putI32(seg, devOff+devFieldFirstInputIndex, int32(inputCursor))
		putI32(seg, devOff+devFieldInputCount, int32(len(d.Inputs)))
		for ii, in := range d.Inputs {
			off := CatalogOffset + catalogInputsOffset + (inputCursor+ii)*inputRecordSize
			putStr(seg, off, nameSize, in.Name)
			putI32(seg, off+nameSize, int32(in.Kind))
			if in.Active {
				seg[off+nameSize+4] = 1
			} else {
				seg[off+nameSize+4] = 0
			}
			binary.LittleEndian.PutUint64(seg[off+nameSize+8:], uint64(in.Timestamp.UnixNano()))
			for vi, v := range in.Value {
				putFloat32(seg, off+nameSize+16+vi*4, v)
			}
		}
		inputCursor += len(d.Inputs)

		if outputCursor+len(d.Outputs) > maxOutputsTotal {
			return fmt.Errorf("shm: output pool exhausted (cap %d)", maxOutputsTotal)
		}
		putI32(seg, devOff+devFieldFirstOutputIndex, int32(outputCursor))
		putI32(seg, devOff+devFieldOutputCount, int32(len(d.Outputs)))
		for oi, out := range d.Outputs {
			off := CatalogOffset + catalogOutputsOffset + (outputCursor+oi)*outputRecordSize
			putStr(seg, off, nameSize, out.Name)
		}
		outputCursor += len(d.Outputs)

		if profileCursor+len(d.Profiles) > maxProfilesTotal {
			return fmt.Errorf("shm: profile pool exhausted (cap %d)", maxProfilesTotal)
		}
		putI32(seg, devOff+devFieldFirstProfileIndex, int32(profileCursor))
		putI32(seg, devOff+devFieldProfileCount, int32(len(d.Profiles)))
		for pi, prof := range d.Profiles {
			profOff := CatalogOffset + catalogProfilesOffset + (profileCursor+pi)*profileRecordSize
			putStr(seg, profOff, nameSize, prof.ProfileName)

			if pairCursor+len(prof.InputPairs) > maxBindingPairsTotal {
				return fmt.Errorf("shm: binding pair pool exhausted (cap %d)", maxBindingPairsTotal)
			}
			putI32(seg, profOff+nameSize+0, int32(pairCursor))
			putI32(seg, profOff+nameSize+4, int32(len(prof.InputPairs)))
			for bi, pair := range prof.InputPairs {
				off := CatalogOffset + catalogBindingPairsOffset + (pairCursor+bi)*bindingPairRecordSize
				putStr(seg, off, nameSize, pair.ProfileName)
				putI32(seg, off+nameSize, int32(pair.EndpointIndex))
			}
			pairCursor += len(prof.InputPairs)

			if pairCursor+len(prof.OutputPairs) > maxBindingPairsTotal {
				return fmt.Errorf("shm: binding pair pool exhausted (cap %d)", maxBindingPairsTotal)
			}
			putI32(seg, profOff+nameSize+8, int32(pairCursor))
			putI32(seg, profOff+nameSize+12, int32(len(prof.OutputPairs)))
			for bi, pair := range prof.OutputPairs {
				off := CatalogOffset + catalogBindingPairsOffset + (pairCursor+bi)*bindingPairRecordSize
				putStr(seg, off, nameSize, pair.ProfileName)
				putI32(seg, off+nameSize, int32(pair.EndpointIndex))
			}
			pairCursor += len(prof.OutputPairs)
		}
		profileCursor += len(d.Profiles)

		if d.HMD != nil {
			seg[devOff+devFieldHasHMD] = 1
			eyeOff := devOff + devFieldHMDEyes
			putU32(seg, eyeOff+0, d.HMD.Eyes[0].WidthPixels)
			putU32(seg, eyeOff+4, d.HMD.Eyes[0].HeightPixels)
			putU32(seg, eyeOff+8, d.HMD.Eyes[1].WidthPixels)
			putU32(seg, eyeOff+12, d.HMD.Eyes[1].HeightPixels)
			blends := d.HMD.BlendModes
			if len(blends) > maxHMDBlendModes {
				return fmt.Errorf("shm: %d blend modes exceeds layout cap %d", len(blends), maxHMDBlendModes)
			}
			putI32(seg, devOff+devFieldHMDBlendCount, int32(len(blends)))
			for bi, bm := range blends {
				putI32(seg, devOff+devFieldHMDBlendModes+bi*4, int32(bm))
			}
		} else {
			seg[devOff+devFieldHasHMD] = 0
		}

		putStr(seg, devOff+devFieldSuggestedProfile, nameSize, d.SuggestedProfile)
	}

	rolesOff := CatalogOffset + catalogRolesOffset
	putI32(seg, rolesOff+0, int32(c.Roles.Head))
	putI32(seg, rolesOff+4, int32(c.Roles.Left))
	putI32(seg, rolesOff+8, int32(c.Roles.Right))
	putI32(seg, rolesOff+12, int32(c.Roles.Gamepad))
	putI32(seg, rolesOff+16, int32(c.Roles.LeftHandTracker))
	putI32(seg, rolesOff+20, int32(c.Roles.RightHandTracker))

	return nil
}

// DecodeCatalog reads back a catalog snapshot a prior EncodeCatalog
// wrote into seg, with no dependency on the Catalog object that wrote
// it, the shape a real cross-process client reconstructs from the
// mapped segment alone.
func DecodeCatalog(seg []byte) (*Catalog, error) {
	if len(seg) < RingOffset {
		return nil, fmt.Errorf("shm: segment too small for catalog section (%d < %d)", len(seg), RingOffset)
	}
	c := &Catalog{published: true}

	originCount := int(getU32(seg, CatalogOffset))
	for i := 0; i < originCount; i++ {
		off := CatalogOffset + catalogOriginsOffset + i*originRecordSize
		p := off + nameSize
		c.Origins = append(c.Origins, TrackingOrigin{
			Name: getStr(seg, off, nameSize),
			Offset: Pose{
				OrientationX: getFloat32(seg, p+0),
				OrientationY: getFloat32(seg, p+4),
				OrientationZ: getFloat32(seg, p+8),
				OrientationW: getFloat32(seg, p+12),
				PositionX:    getFloat32(seg, p+16),
				PositionY:    getFloat32(seg, p+20),
				PositionZ:    getFloat32(seg, p+24),
			},
		})
	}

	deviceCount := int(getU32(seg, CatalogOffset+catalogDevicesCountOffset))
	for di := 0; di < deviceCount; di++ {
		devOff := CatalogOffset + catalogDevicesOffset + di*deviceRecordSize
		d := DeviceEntry{
			Index: di,
			Name:  getStr(seg, devOff, nameSize),
			Type:  DeviceType(getI32(seg, devOff+devFieldType)),
			Caps:  TrackingCaps(getU32(seg, devOff+devFieldCaps)),
		}
		if originIdx := getI32(seg, devOff+devFieldOriginIndex); originIdx >= 0 && int(originIdx) < len(c.Origins) {
			d.OriginName = c.Origins[originIdx].Name
		}

		firstInput := int(getI32(seg, devOff+devFieldFirstInputIndex))
		inputCount := int(getI32(seg, devOff+devFieldInputCount))
		for ii := 0; ii < inputCount; ii++ {
			off := CatalogOffset + catalogInputsOffset + (firstInput+ii)*inputRecordSize
			var value [4]float32
			for vi := range value {
				value[vi] = getFloat32(seg, off+nameSize+16+vi*4)
			}
			d.Inputs = append(d.Inputs, InputEndpoint{
				Name:      getStr(seg, off, nameSize),
				Kind:      ValueKind(getI32(seg, off+nameSize)),
				Active:    seg[off+nameSize+4] != 0,
				Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(seg[off+nameSize+8:]))),
				Value:     value,
			})
		}

		firstOutput := int(getI32(seg, devOff+devFieldFirstOutputIndex))
		outputCount := int(getI32(seg, devOff+devFieldOutputCount))
		for oi := 0; oi < outputCount; oi++ {
			off := CatalogOffset + catalogOutputsOffset + (firstOutput+oi)*outputRecordSize
			d.Outputs = append(d.Outputs, OutputEndpoint{Name: getStr(seg, off, nameSize)})
		}

		firstProfile := int(getI32(seg, devOff+devFieldFirstProfileIndex))
		profileCount := int(getI32(seg, devOff+devFieldProfileCount))
		for pi := 0; pi < profileCount; pi++ {
			profOff := CatalogOffset + catalogProfilesOffset + (firstProfile+pi)*profileRecordSize
			prof := BindingProfile{ProfileName: getStr(seg, profOff, nameSize)}

			firstInPair := int(getI32(seg, profOff+nameSize+0))
			inPairCount := int(getI32(seg, profOff+nameSize+4))
			for bi := 0; bi < inPairCount; bi++ {
				off := CatalogOffset + catalogBindingPairsOffset + (firstInPair+bi)*bindingPairRecordSize
				prof.InputPairs = append(prof.InputPairs, BindingPair{
					ProfileName:   getStr(seg, off, nameSize),
					EndpointIndex: int(getI32(seg, off+nameSize)),
				})
			}

			firstOutPair := int(getI32(seg, profOff+nameSize+8))
			outPairCount := int(getI32(seg, profOff+nameSize+12))
			for bi := 0; bi < outPairCount; bi++ {
				off := CatalogOffset + catalogBindingPairsOffset + (firstOutPair+bi)*bindingPairRecordSize
				prof.OutputPairs = append(prof.OutputPairs, BindingPair{
					ProfileName:   getStr(seg, off, nameSize),
					EndpointIndex: int(getI32(seg, off+nameSize)),
				})
			}

			d.Profiles = append(d.Profiles, prof)
		}

		if seg[devOff+devFieldHasHMD] != 0 {
			eyeOff := devOff + devFieldHMDEyes
			hmd := &HMDInfo{Eyes: [2]EyeViewport{
				{WidthPixels: getU32(seg, eyeOff+0), HeightPixels: getU32(seg, eyeOff+4)},
				{WidthPixels: getU32(seg, eyeOff+8), HeightPixels: getU32(seg, eyeOff+12)},
			}}
			blendCount := int(getI32(seg, devOff+devFieldHMDBlendCount))
			for bi := 0; bi < blendCount; bi++ {
				hmd.BlendModes = append(hmd.BlendModes, BlendMode(getI32(seg, devOff+devFieldHMDBlendModes+bi*4)))
			}
			d.HMD = hmd
		}

		d.SuggestedProfile = getStr(seg, devOff+devFieldSuggestedProfile, nameSize)
		c.Devices = append(c.Devices, d)
	}

	rolesOff := CatalogOffset + catalogRolesOffset
	c.Roles = RoleAssignments{
		Head:             int(getI32(seg, rolesOff+0)),
		Left:             int(getI32(seg, rolesOff+4)),
		Right:            int(getI32(seg, rolesOff+8)),
		Gamepad:          int(getI32(seg, rolesOff+12)),
		LeftHandTracker:  int(getI32(seg, rolesOff+16)),
		RightHandTracker: int(getI32(seg, rolesOff+20)),
	}

	return c, nil
}

// EncodeSlot writes one layer-slot record into seg at ring index idx.
// It does not publish the index; callers publish separately once every
// slot referenced from the index is guaranteed complete.
func EncodeSlot(seg []byte, idx int, slot LayerSlot) error {
	if idx < 0 || idx >= MaxSlots {
		return fmt.Errorf("shm: slot index %d out of range", idx)
	}
	off := RingOffset + idx*slotRecordSize
	binary.LittleEndian.PutUint64(seg[off:], slot.FrameID)
	binary.LittleEndian.PutUint64(seg[off+8:], uint64(slot.DisplayTimeNanos))
	putI32(seg, off+16, int32(slot.BlendMode))
	if slot.OneProjectionFast {
		seg[off+20] = 1
	} else {
		seg[off+20] = 0
	}
	putI32(seg, off+24, int32(slot.LayerCount))
	layersOff := off + 28
	for li, layer := range slot.Layers {
		lo := layersOff + li*layerRefRecordSize
		putI32(seg, lo, int32(layer.Kind))
		putI32(seg, lo+4, int32(layer.DeviceIndex))
		for si, id := range layer.SwapchainIDs {
			binary.LittleEndian.PutUint64(seg[lo+8+si*8:], id)
		}
		putI32(seg, lo+8+4*8, int32(layer.SwapchainCount))
	}
	return nil
}

// DecodeSlot reads back the layer-slot record at ring index idx.
func DecodeSlot(seg []byte, idx int) (LayerSlot, error) {
	var slot LayerSlot
	if idx < 0 || idx >= MaxSlots {
		return slot, fmt.Errorf("shm: slot index %d out of range", idx)
	}
	off := RingOffset + idx*slotRecordSize
	slot.FrameID = binary.LittleEndian.Uint64(seg[off:])
	slot.DisplayTimeNanos = int64(binary.LittleEndian.Uint64(seg[off+8:]))
	slot.BlendMode = BlendMode(getI32(seg, off+16))
	slot.OneProjectionFast = seg[off+20] != 0
	slot.LayerCount = int(getI32(seg, off+24))
	layersOff := off + 28
	for li := range slot.Layers {
		lo := layersOff + li*layerRefRecordSize
		slot.Layers[li].Kind = LayerKind(getI32(seg, lo))
		slot.Layers[li].DeviceIndex = int(getI32(seg, lo+4))
		for si := range slot.Layers[li].SwapchainIDs {
			slot.Layers[li].SwapchainIDs[si] = binary.LittleEndian.Uint64(seg[lo+8+si*8:])
		}
		slot.Layers[li].SwapchainCount = int(getI32(seg, lo+8+4*8))
	}
	return slot, nil
}

// PublishSlotIndex atomically stores idx at the segment's well-known
// current-slot-index field. It is the cross-process equivalent of
// Ring.currentIndex's atomic.Int64: a plain store would race with a
// concurrent reader on some architectures, so this goes through
// sync/atomic over the mapped memory directly, the same pattern
// Ring itself uses in-process, just pointed at shared rather than
// heap-private memory. Callers must call this only after EncodeSlot
// for the same index has returned: write the slot, then publish the
// index that points at it.
func PublishSlotIndex(seg []byte, idx int) {
	p := (*int64)(unsafe.Pointer(&seg[RingSlotIndexOffset]))
	atomic.StoreInt64(p, int64(idx))
}

// ReadSlotIndex atomically loads the segment's current-slot-index
// field, returning -1 if nothing has been published since
// InitRingSlotIndex (the same sentinel Ring.NewRing primes its
// in-process copy with).
func ReadSlotIndex(seg []byte) int {
	p := (*int64)(unsafe.Pointer(&seg[RingSlotIndexOffset]))
	return int(atomic.LoadInt64(p))
}

// InitRingSlotIndex parks a freshly allocated segment's slot index at
// -1, mirroring Ring.NewRing's in-process initial state. Segments are
// zero-filled by the OS on allocation, so without this call a reader
// would see index 0 (a valid-looking but never-committed slot) instead
// of "nothing published yet".
func InitRingSlotIndex(seg []byte) {
	PublishSlotIndex(seg, -1)
}
