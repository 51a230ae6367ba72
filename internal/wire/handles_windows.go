//go:build windows

package wire

import (
	"encoding/binary"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/windows"
)

// PipeHandleCarrier duplicates Win32 HANDLEs into the target process.
// Named pipes have no SCM_RIGHTS equivalent, so each handle is
// duplicated into the connected client's handle table and the
// resulting numeric values are shipped inline, appended after the
// reply payload; the client reads them straight out of the record
// without a DuplicateHandle call of its own.
type PipeHandleCarrier struct {
	conn        net.Conn
	peerProcess windows.Handle
}

// NewPipeHandleCarrier targets handle duplication at the given client
// process, identified at accept time via GetNamedPipeClientProcessId.
func NewPipeHandleCarrier(conn net.Conn, peerProcess windows.Handle) *PipeHandleCarrier {
	return &PipeHandleCarrier{conn: conn, peerProcess: peerProcess}
}

// CarrierFor resolves the client process on the far end of a named
// pipe connection and returns a carrier that duplicates handles into
// it, or nil when the peer process cannot be identified.
func CarrierFor(conn net.Conn) HandleCarrier {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil
	}
	var carrier *PipeHandleCarrier
	_ = raw.Control(func(fd uintptr) {
		var pid uint32
		if err := windows.GetNamedPipeClientProcessId(windows.Handle(fd), &pid); err != nil {
			return
		}
		proc, err := windows.OpenProcess(windows.PROCESS_DUP_HANDLE, false, pid)
		if err != nil {
			return
		}
		carrier = NewPipeHandleCarrier(conn, proc)
	})
	if carrier == nil {
		return nil
	}
	return carrier
}

func (h *PipeHandleCarrier) SendReply(status Status, payload []byte, handles []int) error {
	buf := make([]byte, len(payload), len(payload)+8*len(handles))
	copy(buf, payload)
	for _, hv := range handles {
		var target windows.Handle
		err := windows.DuplicateHandle(
			windows.CurrentProcess(), windows.Handle(hv),
			h.peerProcess, &target,
			0, false, windows.DUPLICATE_SAME_ACCESS)
		if err != nil {
			return fmt.Errorf("%w: DuplicateHandle failed: %v", ErrMalformed, err)
		}
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(target))
		buf = append(buf, v[:]...)
	}
	framed, err := frameRecord(uint32(status), buf)
	if err != nil {
		return err
	}
	_, err = h.conn.Write(framed)
	return err
}

func (h *PipeHandleCarrier) RecvHandles(buf []byte) (int, []int, error) {
	return 0, nil, fmt.Errorf("%w: client-side handle receipt not implemented", ErrMalformed)
}
