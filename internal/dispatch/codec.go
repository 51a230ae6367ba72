// Package dispatch implements the runtime's command-tag dispatch
// table: one handler per internal/wire.Command, wired to the
// session/compositor/swapchain/arbiter/device state a request touches.
package dispatch

import (
	"encoding/binary"
	"fmt"

	"github.com/openxrd/openxrd/internal/device"
	"github.com/openxrd/openxrd/internal/shm"
)

// encoder builds one reply payload incrementally, field by field.
type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) i32(v int32) { e.u32(uint32(v)) }

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) i64(v int64) { e.u64(uint64(v)) }

func (e *encoder) f32(v float32) { e.u32(float32ToBits(v)) }

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) pose(p shm.Pose) {
	e.f32(p.OrientationX)
	e.f32(p.OrientationY)
	e.f32(p.OrientationZ)
	e.f32(p.OrientationW)
	e.f32(p.PositionX)
	e.f32(p.PositionY)
	e.f32(p.PositionZ)
}

func (e *encoder) spaceRelation(r device.SpaceRelation) {
	e.pose(r.Pose)
	for _, v := range r.LinearVelocity {
		e.f32(v)
	}
	for _, v := range r.AngularVelocity {
		e.f32(v)
	}
	e.u32(uint32(r.Flags))
}

func (e *encoder) handJointSet(hs device.HandJointSet) {
	for _, j := range hs {
		e.pose(j.Pose)
		e.f32(j.Radius)
		e.bool(j.Valid)
	}
}

// decoder consumes a request payload field by field, returning
// ErrShortRead the moment it runs past the end.
type decoder struct {
	buf []byte
	off int
}

// ErrShortRead is returned when a handler's fixed decode shape does
// not fit within a request's payload.
var ErrShortRead = fmt.Errorf("dispatch: request payload too short")

func (d *decoder) need(n int) ([]byte, error) {
	if d.off+n > len(d.buf) {
		return nil, ErrShortRead
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u8() (uint8, error) {
	b, err := d.need(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) boolean() (bool, error) {
	v, err := d.u8()
	return v != 0, err
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.need(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) i32() (int32, error) {
	v, err := d.u32()
	return int32(v), err
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.need(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) i64() (int64, error) {
	v, err := d.u64()
	return int64(v), err
}

func (d *decoder) f32() (float32, error) {
	v, err := d.u32()
	if err != nil {
		return 0, err
	}
	return float32FromBits(v), nil
}

func (d *decoder) str() (string, error) {
	n, err := d.u32()
	if err != nil {
		return "", err
	}
	b, err := d.need(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) pose() (shm.Pose, error) {
	var p shm.Pose
	var err error
	if p.OrientationX, err = d.f32(); err != nil {
		return p, err
	}
	if p.OrientationY, err = d.f32(); err != nil {
		return p, err
	}
	if p.OrientationZ, err = d.f32(); err != nil {
		return p, err
	}
	if p.OrientationW, err = d.f32(); err != nil {
		return p, err
	}
	if p.PositionX, err = d.f32(); err != nil {
		return p, err
	}
	if p.PositionY, err = d.f32(); err != nil {
		return p, err
	}
	if p.PositionZ, err = d.f32(); err != nil {
		return p, err
	}
	return p, nil
}
