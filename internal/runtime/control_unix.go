//go:build !windows

package runtime

import (
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/openxrd/openxrd/internal/telemetry"
)

// ControlWatcher is the operator's control input: standard input,
// put into raw mode so a single keystroke ('q') triggers graceful
// shutdown without waiting for Enter.
type ControlWatcher struct {
	fd          int
	oldState    *term.State
	nonblockSet bool
	stop        chan struct{}
	done        chan struct{}
	shutdown    chan struct{}
	stopped     sync.Once
}

// NewControlWatcher opens stdin in raw, non-blocking mode. If stdin is
// not a terminal (e.g. running under a service manager), it returns a
// watcher whose Shutdown channel never fires from a keystroke; the
// caller relies solely on external signals/ExitOnDisconnect instead.
func NewControlWatcher() *ControlWatcher {
	w := &ControlWatcher{
		fd:   int(os.Stdin.Fd()),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if !term.IsTerminal(w.fd) {
		close(w.done)
		return w
	}

	oldState, err := term.MakeRaw(w.fd)
	if err != nil {
		telemetry.Warnf("runtime: control watcher: MakeRaw: %v", err)
		close(w.done)
		return w
	}
	w.oldState = oldState

	if err := syscall.SetNonblock(w.fd, true); err != nil {
		telemetry.Warnf("runtime: control watcher: SetNonblock: %v", err)
		_ = term.Restore(w.fd, w.oldState)
		w.oldState = nil
		close(w.done)
		return w
	}
	w.nonblockSet = true
	w.shutdown = make(chan struct{})
	go w.readLoop()
	return w
}

func (w *ControlWatcher) readLoop() {
	defer close(w.done)
	buf := make([]byte, 1)
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		n, err := syscall.Read(w.fd, buf)
		if n > 0 && (buf[0] == 'q' || buf[0] == 'Q') {
			close(w.shutdown)
			return
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK || n == 0 {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		if err != nil {
			return
		}
	}
}

// ShutdownRequested returns a channel that closes when the operator
// has hit 'q' on the attached TTY. If stdin is not a terminal it
// returns nil, which blocks forever in a select.
func (w *ControlWatcher) ShutdownRequested() <-chan struct{} {
	if w.shutdown == nil {
		return nil
	}
	return w.shutdown
}

// Close stops the read goroutine and restores stdin to its prior mode.
func (w *ControlWatcher) Close() {
	w.stopped.Do(func() { close(w.stop) })
	<-w.done
	if w.nonblockSet {
		_ = syscall.SetNonblock(w.fd, false)
	}
	if w.oldState != nil {
		_ = term.Restore(w.fd, w.oldState)
	}
}
