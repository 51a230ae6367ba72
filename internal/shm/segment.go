package shm

import "encoding/binary"

// SegmentHeaderSize covers the segment's leading header: a version
// tag, a startup timestamp, and a build-identifier string. The client
// library must match the build identifier byte-for-byte before
// trusting anything else in the region. The catalog and layer-slot
// ring sections follow the header; layout.go defines their offsets.
const SegmentHeaderSize = 4 + 8 + 64

// Segment is a cross-process shared-memory region: allocated once,
// mapped into each client at connect time, unmapped and freed at
// shutdown.
type Segment interface {
	// Bytes returns the mapped region for in-process reads/writes.
	Bytes() []byte
	// Handle returns the native handle (fd on POSIX, HANDLE on Windows)
	// suitable for passing to a client via the message channel.
	Handle() int
	Close() error
}

// EncodeHeader writes the version/timestamp/build-id triple into buf,
// which must be at least SegmentHeaderSize bytes.
func EncodeHeader(buf []byte, version uint32, startupTimestamp int64, buildID string) {
	binary.BigEndian.PutUint32(buf[0:4], version)
	binary.BigEndian.PutUint64(buf[4:12], uint64(startupTimestamp))
	idBytes := []byte(buildID)
	if len(idBytes) > 64 {
		idBytes = idBytes[:64]
	}
	copy(buf[12:12+len(idBytes)], idBytes)
	for i := 12 + len(idBytes); i < SegmentHeaderSize; i++ {
		buf[i] = 0
	}
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(buf []byte) (version uint32, startupTimestamp int64, buildID string) {
	version = binary.BigEndian.Uint32(buf[0:4])
	startupTimestamp = int64(binary.BigEndian.Uint64(buf[4:12]))
	end := 12
	for end < SegmentHeaderSize && buf[end] != 0 {
		end++
	}
	buildID = string(buf[12:end])
	return
}
