//go:build windows

package runtime

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/windows"

	"github.com/openxrd/openxrd/internal/acceptor"
	"github.com/openxrd/openxrd/internal/wire"
)

// DefaultSocketPath is the runtime's listen endpoint: a named pipe
// path.
func DefaultSocketPath() string {
	return `\\.\pipe\openxrd`
}

const pipeBufferSize = 1 << 16

// pipeListener implements net.Listener over repeated
// CreateNamedPipe/ConnectNamedPipe calls, since the standard library
// has no named-pipe listener. Each accepted instance becomes a
// net.Conn backed by the same handle via os.NewFile, matching the
// file-descriptor-shaped net.Conn every other part of internal/wire
// already expects.
type pipeListener struct {
	path string
	sa   *windows.SecurityAttributes
	done chan struct{}
}

// Listen creates the first instance of the runtime's named pipe with
// a DACL allowing Authenticated Users/Administrators/AppContainer and
// denying Guests/ANONYMOUS LOGON, built via internal/wire's
// NewListenPipeSecurityAttributes.
func Listen(sockPath string, relaxPermissions bool) (net.Listener, error) {
	if ln, ok, err := acceptor.ListenFromEnvironment(); err != nil {
		return nil, err
	} else if ok {
		return ln, nil
	}

	sa, err := wire.NewListenPipeSecurityAttributes()
	if err != nil {
		return nil, fmt.Errorf("runtime: pipe security attributes: %w", err)
	}
	return &pipeListener{path: sockPath, sa: sa, done: make(chan struct{})}, nil
}

func (l *pipeListener) Accept() (net.Conn, error) {
	pathPtr, err := windows.UTF16PtrFromString(l.path)
	if err != nil {
		return nil, err
	}
	handle, err := windows.CreateNamedPipe(
		pathPtr,
		windows.PIPE_ACCESS_DUPLEX,
		windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
		windows.PIPE_UNLIMITED_INSTANCES,
		pipeBufferSize, pipeBufferSize,
		0,
		l.sa,
	)
	if err != nil {
		return nil, fmt.Errorf("runtime: CreateNamedPipe: %w", err)
	}

	overlapped := new(windows.Overlapped)
	event, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		windows.CloseHandle(handle)
		return nil, err
	}
	defer windows.CloseHandle(event)
	overlapped.HEvent = event

	err = windows.ConnectNamedPipe(handle, overlapped)
	if err != nil && err != windows.ERROR_IO_PENDING && err != windows.ERROR_PIPE_CONNECTED {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("runtime: ConnectNamedPipe: %w", err)
	}
	if err == windows.ERROR_IO_PENDING {
		waitResult, werr := windows.WaitForSingleObject(event, windows.INFINITE)
		if werr != nil || waitResult != windows.WAIT_OBJECT_0 {
			windows.CloseHandle(handle)
			return nil, fmt.Errorf("runtime: wait for pipe connection: %v", werr)
		}
	}

	f := os.NewFile(uintptr(handle), l.path)
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("runtime: FileConn on pipe handle: %w", err)
	}
	return conn, nil
}

func (l *pipeListener) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return nil
}

func (l *pipeListener) Addr() net.Addr { return pipeAddr(l.path) }

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }
