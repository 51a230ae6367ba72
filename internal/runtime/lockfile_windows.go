//go:build windows

package runtime

import "golang.org/x/sys/windows"

// processAlive reports whether pid names a live process. Signal 0 has
// no Windows equivalent, so open the process with limited query
// rights and check its exit code: a still-running process reports
// STILL_ACTIVE.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == uint32(windows.STILL_ACTIVE)
}
