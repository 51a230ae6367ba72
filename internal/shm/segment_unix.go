//go:build !windows

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type unixSegment struct {
	fd  int
	buf []byte
}

// NewSegment allocates a new anonymous shared-memory segment of
// SegmentSize bytes (header + catalog + ring sections) via
// memfd_create + mmap, once at startup. The returned Segment's Handle
// is a file descriptor suitable for SCM_RIGHTS transfer.
func NewSegment(name string) (Segment, error) {
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: memfd_create failed: %w", err)
	}
	if err := unix.Ftruncate(fd, SegmentSize); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: ftruncate failed: %w", err)
	}
	buf, err := unix.Mmap(fd, 0, SegmentSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap failed: %w", err)
	}
	return &unixSegment{fd: fd, buf: buf}, nil
}

// OpenSegment maps an existing segment received out of band (a client
// attaching to a fd handed over alongside a GetShmHandle reply).
func OpenSegment(fd int) (Segment, error) {
	buf, err := unix.Mmap(fd, 0, SegmentSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap (client) failed: %w", err)
	}
	return &unixSegment{fd: fd, buf: buf}, nil
}

func (s *unixSegment) Bytes() []byte { return s.buf }
func (s *unixSegment) Handle() int   { return s.fd }

func (s *unixSegment) Close() error {
	if err := unix.Munmap(s.buf); err != nil {
		return err
	}
	return unix.Close(s.fd)
}
