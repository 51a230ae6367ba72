//go:build !windows

package runtime

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/openxrd/openxrd/internal/acceptor"
)

// DefaultSocketPath is the runtime's listen endpoint: a Unix domain
// socket under the user's runtime directory.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "openxrd.sock")
	}
	return filepath.Join(os.TempDir(), "openxrd.sock")
}

// Listen binds the runtime's Unix domain socket, preferring an
// already-bound fd handed over via systemd socket activation
// (LISTEN_FDS/LISTEN_PID) and falling back to binding sockPath
// directly. A bind failure triggers stale-socket recovery: dial the
// path first, and only remove-and-rebind if nothing answers.
func Listen(sockPath string, relaxPermissions bool) (net.Listener, error) {
	if ln, ok, err := acceptor.ListenFromEnvironment(); err != nil {
		return nil, err
	} else if ok {
		return ln, nil
	}

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		conn, dialErr := net.DialTimeout("unix", sockPath, 2*time.Second)
		if dialErr == nil {
			conn.Close()
			return nil, fmt.Errorf("runtime: another instance is already listening on %s", sockPath)
		}
		os.Remove(sockPath)
		ln, err = net.Listen("unix", sockPath)
		if err != nil {
			return nil, fmt.Errorf("runtime: bind %s: %w", sockPath, err)
		}
	}

	mode := os.FileMode(0o700)
	if relaxPermissions {
		// Multi-user testing: any local user may connect.
		mode = 0o777
	}
	if err := os.Chmod(sockPath, mode); err != nil {
		ln.Close()
		return nil, fmt.Errorf("runtime: chmod %s: %w", sockPath, err)
	}
	return ln, nil
}
