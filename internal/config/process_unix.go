//go:build !windows

package config

import (
	"errors"
	"syscall"
)

// IsProcessAlive checks whether a process with the given PID exists.
// EPERM means the process exists but belongs to someone else.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
