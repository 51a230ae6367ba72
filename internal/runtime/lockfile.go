// Package runtime implements the instance/system bootstrap: the
// single-instance guard, device discovery, shared-memory publication,
// system compositor construction, and the acceptor/dispatch wiring
// that brings up every other component.
package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LockFile is the single-instance guard: a platform-typical path
// under the user's runtime directory, holding the server's PID. A
// second instance finding a live lockfile refuses to start.
type LockFile struct {
	path string
}

// AcquireLock creates (or recovers) the lockfile at path. If an
// existing lockfile names a PID that is no longer alive, it is
// treated as stale and replaced.
func AcquireLock(path string) (*LockFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("runtime: create lockfile dir: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		pid, perr := strconv.Atoi(strings.TrimSpace(string(existing)))
		if perr == nil && processAlive(pid) {
			return nil, fmt.Errorf("runtime: another instance is already running (pid %d)", pid)
		}
		// Stale: the PID is gone or unparsable. Fall through and
		// overwrite.
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("runtime: open lockfile: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d", os.Getpid()); err != nil {
		return nil, fmt.Errorf("runtime: write lockfile: %w", err)
	}
	return &LockFile{path: path}, nil
}

// Release removes the lockfile. Call on clean shutdown only; a
// process that dies without releasing leaves a lockfile the next
// AcquireLock will recognize as stale via processAlive.
func (l *LockFile) Release() error {
	return os.Remove(l.path)
}

// DefaultLockPath returns the platform-typical lockfile path: under
// XDG_RUNTIME_DIR on desktops, a temp-dir fallback otherwise.
func DefaultLockPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "openxrd.lock")
	}
	return filepath.Join(os.TempDir(), "openxrd.lock")
}

// currentUnixNano stamps the catalog's StartupTimestamp, the one
// clock read the whole bootstrap needs.
func currentUnixNano() int64 {
	return time.Now().UnixNano()
}
