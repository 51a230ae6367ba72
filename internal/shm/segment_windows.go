//go:build windows

package shm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsSegment struct {
	handle windows.Handle
	addr   uintptr
	buf    []byte
}

// NewSegment allocates a named CreateFileMapping-backed segment large
// enough for the header, catalog, and ring sections (SegmentSize).
func NewSegment(name string) (Segment, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("shm: invalid segment name: %w", err)
	}
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil,
		windows.PAGE_READWRITE, 0, SegmentSize, namePtr)
	if err != nil {
		return nil, fmt.Errorf("shm: CreateFileMapping failed: %w", err)
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, SegmentSize)
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("shm: MapViewOfFile failed: %w", err)
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), SegmentSize)
	return &windowsSegment{handle: h, addr: addr, buf: buf}, nil
}

// OpenSegment maps an existing segment from a duplicated HANDLE value.
func OpenSegment(handleValue int) (Segment, error) {
	h := windows.Handle(handleValue)
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, SegmentSize)
	if err != nil {
		return nil, fmt.Errorf("shm: MapViewOfFile (client) failed: %w", err)
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), SegmentSize)
	return &windowsSegment{handle: h, addr: addr, buf: buf}, nil
}

func (s *windowsSegment) Bytes() []byte { return s.buf }
func (s *windowsSegment) Handle() int   { return int(s.handle) }

func (s *windowsSegment) Close() error {
	if err := windows.UnmapViewOfFile(s.addr); err != nil {
		return err
	}
	return windows.CloseHandle(s.handle)
}
