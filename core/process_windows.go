//go:build windows

package core

import "golang.org/x/sys/windows"

// exit code reported by GetExitCodeProcess while a process runs
const stillActive = 259

// isProcessAlive opens pid with query rights and checks its exit code.
// Access denied is treated as alive so a lock held by another user is kept.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return err == windows.ERROR_ACCESS_DENIED
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}
