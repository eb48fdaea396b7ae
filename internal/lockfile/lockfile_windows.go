//go:build windows

package lockfile

import "syscall"

// processRunning reports whether a process handle for pid can be opened.
func processRunning(pid int) bool {
	handle, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	_ = syscall.CloseHandle(handle)
	return true
}
