package launcher

import "golang.org/x/sys/unix"

// becomeSubreaper makes orphaned descendants, such as a process tree
// restored by criu --restore-detached, reparent to us so they can be reaped.
func becomeSubreaper() error {
	return unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
}
