package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// MaxRecordSize bounds a single request/reply payload so a malformed or
// hostile peer cannot force an unbounded allocation.
const MaxRecordSize = 1 << 20

// ErrMalformed is returned when a record's length prefix is out of range,
// or a reply's payload size does not match what the caller expected.
var ErrMalformed = errors.New("wire: malformed record")

// ErrUnknownCommand is returned when a request's command tag is not in the
// recognized set.
var ErrUnknownCommand = errors.New("wire: unknown command tag")

// HandleCarrier passes native handles (file descriptors, HANDLEs) out of
// band alongside a reply. POSIX implements it over SCM_RIGHTS; Windows
// duplicates HANDLEs into the peer process. A Channel with no carrier
// rejects any attempt to move handles.
type HandleCarrier interface {
	// SendReply transmits one complete framed reply record (length
	// prefix, status, payload) together with its native handles.
	SendReply(status Status, payload []byte, handles []int) error
	// RecvHandles reads one message plus any accompanying handles; the
	// client side of the same transport.
	RecvHandles(buf []byte) (n int, handles []int, err error)
}

// Channel is one server<->client connection: a reliable, in-order,
// bidirectional byte stream carrying length-prefixed request/reply
// records.
type Channel struct {
	conn    net.Conn
	carrier HandleCarrier
}

// New wraps an established connection. carrier may be nil if the
// transport cannot move native handles (e.g. in tests over net.Pipe);
// any handle-bearing command then fails with ErrMalformed.
func New(conn net.Conn, carrier HandleCarrier) *Channel {
	return &Channel{conn: conn, carrier: carrier}
}

// SetDeadline applies a periodic read deadline so a listener thread can
// notice a shutdown flag between reads instead of blocking
// indefinitely.
func (c *Channel) SetDeadline(d time.Duration) error {
	return c.conn.SetDeadline(time.Now().Add(d))
}

func (c *Channel) Close() error {
	return c.conn.Close()
}

// frameRecord builds one complete wire record: a 4-byte length prefix
// covering header + payload, the 4-byte header (command tag or status),
// then the payload.
func frameRecord(header uint32, payload []byte) ([]byte, error) {
	total := 4 + len(payload)
	if total > MaxRecordSize {
		return nil, fmt.Errorf("%w: record too large (%d bytes)", ErrMalformed, total)
	}
	buf := make([]byte, 4+total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], header)
	copy(buf[8:], payload)
	return buf, nil
}

func writeRecord(conn net.Conn, header uint32, payload []byte) error {
	buf, err := frameRecord(header, payload)
	if err != nil {
		return err
	}
	_, err = conn.Write(buf)
	return err
}

func readRecord(conn net.Conn) (header uint32, payload []byte, err error) {
	var lenBuf [4]byte
	if _, err = readFull(conn, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	total := binary.BigEndian.Uint32(lenBuf[:])
	if total < 4 || int(total) > MaxRecordSize {
		return 0, nil, fmt.Errorf("%w: record length %d out of range", ErrMalformed, total)
	}
	body := make([]byte, total)
	if _, err = readFull(conn, body); err != nil {
		return 0, nil, err
	}
	header = binary.BigEndian.Uint32(body[0:4])
	return header, body[4:], nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}

// WriteRequest sends one request record: a 4-byte command tag followed by
// payload.
func (c *Channel) WriteRequest(cmd Command, payload []byte) error {
	return writeRecord(c.conn, uint32(cmd), payload)
}

// ReadRequest reads one request record and validates its command tag.
// An unrecognized tag is a protocol failure that terminates the
// connection.
func (c *Channel) ReadRequest() (Command, []byte, error) {
	header, payload, err := readRecord(c.conn)
	if err != nil {
		return 0, nil, err
	}
	cmd := Command(header)
	if !cmd.Known() {
		return 0, nil, fmt.Errorf("%w: tag %d", ErrUnknownCommand, header)
	}
	return cmd, payload, nil
}

// WriteReply sends one reply record: a 4-byte status followed by payload,
// plus any native handles out of band.
func (c *Channel) WriteReply(status Status, payload []byte, handles []int) error {
	if len(handles) > 0 {
		if c.carrier == nil {
			return fmt.Errorf("%w: no handle carrier on this channel", ErrMalformed)
		}
		return c.carrier.SendReply(status, payload, handles)
	}
	return writeRecord(c.conn, uint32(status), payload)
}

// ReadReply reads one reply record, validating that its payload is
// exactly wantSize bytes (or ignoring the check when wantSize < 0).
func (c *Channel) ReadReply(wantSize int) (Status, []byte, error) {
	header, payload, err := readRecord(c.conn)
	if err != nil {
		return 0, nil, err
	}
	if wantSize >= 0 && len(payload) != wantSize {
		return 0, nil, fmt.Errorf("%w: reply size %d, want %d", ErrMalformed, len(payload), wantSize)
	}
	return Status(header), payload, nil
}
