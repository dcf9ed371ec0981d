package watch

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Alive probes pid for liveness with a no-op signal. ESRCH means the
// process is gone; EPERM means it exists but belongs to another user,
// which still counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
