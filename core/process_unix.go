//go:build !windows

package core

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isProcessAlive probes pid with signal 0. EPERM still means the process
// exists, it just belongs to another user.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
