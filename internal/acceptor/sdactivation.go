//go:build !windows

package acceptor

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"
)

// sdListenFdsStart is the first fd systemd hands a socket-activated
// unit, per the sd_listen_fds(3) ABI: stdin/stdout/stderr occupy 0-2.
const sdListenFdsStart = 3

// ListenFromEnvironment implements systemd socket activation: if
// LISTEN_PID names this process and LISTEN_FDS is set, the first
// passed fd is wrapped as a net.Listener and returned instead of
// binding a new socket. ok is false when no activation environment is
// present, in which case the caller should fall back to its own bind.
func ListenFromEnvironment() (listener net.Listener, ok bool, err error) {
	pidStr := os.Getenv("LISTEN_PID")
	fdsStr := os.Getenv("LISTEN_FDS")
	if pidStr == "" || fdsStr == "" {
		return nil, false, nil
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, false, fmt.Errorf("acceptor: malformed LISTEN_PID %q: %w", pidStr, err)
	}
	if pid != os.Getpid() {
		// Not addressed to us; leave the variables for a child process.
		return nil, false, nil
	}

	nfds, err := strconv.Atoi(fdsStr)
	if err != nil {
		return nil, false, fmt.Errorf("acceptor: malformed LISTEN_FDS %q: %w", fdsStr, err)
	}
	if nfds < 1 {
		return nil, false, fmt.Errorf("acceptor: LISTEN_FDS=%d, need at least 1", nfds)
	}

	fd := sdListenFdsStart
	syscall.CloseOnExec(fd)

	f := os.NewFile(uintptr(fd), "LISTEN_FD_3")
	listener, err = net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, false, fmt.Errorf("acceptor: FileListener on activation fd: %w", err)
	}
	return listener, true, nil
}
