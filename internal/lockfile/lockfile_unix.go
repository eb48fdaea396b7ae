//go:build !windows

package lockfile

import (
	"errors"
	"os"
	"syscall"
)

// processRunning probes pid with signal 0.
func processRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	// EPERM means the process exists but belongs to someone else.
	return err == nil || errors.Is(err, syscall.EPERM)
}
