//go:build !windows

package wire

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// UnixHandleCarrier moves native handles alongside a reply using
// SCM_RIGHTS ancillary data on a Unix domain socket.
type UnixHandleCarrier struct {
	conn *net.UnixConn
}

// NewUnixHandleCarrier wraps a Unix domain socket connection for
// out-of-band handle passing.
func NewUnixHandleCarrier(conn *net.UnixConn) *UnixHandleCarrier {
	return &UnixHandleCarrier{conn: conn}
}

// CarrierFor returns the out-of-band handle transport for conn, or nil
// if the connection type cannot move native handles (e.g. a net.Pipe
// in tests).
func CarrierFor(conn net.Conn) HandleCarrier {
	if uc, ok := conn.(*net.UnixConn); ok {
		return NewUnixHandleCarrier(uc)
	}
	return nil
}

func (h *UnixHandleCarrier) SendReply(status Status, payload []byte, handles []int) error {
	fds := make([]int, len(handles))
	copy(fds, handles)
	rights := unix.UnixRights(fds...)
	framed, err := frameRecord(uint32(status), payload)
	if err != nil {
		return err
	}
	if _, _, err := h.conn.WriteMsgUnix(framed, rights, nil); err != nil {
		return fmt.Errorf("%w: sendmsg failed: %v", ErrMalformed, err)
	}
	return nil
}

func (h *UnixHandleCarrier) RecvHandles(buf []byte) (int, []int, error) {
	oob := make([]byte, unix.CmsgSpace(4*8)) // room for a handful of fds
	n, oobn, _, _, err := h.conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: recvmsg failed: %v", ErrMalformed, err)
	}
	if oobn == 0 {
		return n, nil, nil
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return n, nil, fmt.Errorf("%w: parse cmsg failed: %v", ErrMalformed, err)
	}
	var fds []int
	for _, cmsg := range cmsgs {
		got, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		fds = append(fds, got...)
	}
	return n, fds, nil
}
