//go:build linux

package ptyproxy

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// getMode reads the termios of the pty behind f. On the master side this
// reports the slave's line discipline settings.
func getMode(f *os.File) (*TermMode, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return nil, err
	}
	var t *unix.Termios
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		t, ioErr = unix.IoctlGetTermios(int(fd), unix.TCGETS)
	}); err != nil {
		return nil, err
	}
	if ioErr != nil {
		return nil, ioErr
	}
	return &TermMode{
		Iflag:  t.Iflag,
		Oflag:  t.Oflag,
		Cflag:  t.Cflag,
		Lflag:  t.Lflag,
		Line:   t.Line,
		Cc:     append([]byte(nil), t.Cc[:]...),
		Ispeed: t.Ispeed,
		Ospeed: t.Ospeed,
	}, nil
}

// setMode applies m to the pty behind f.
func setMode(f *os.File, m *TermMode) error {
	t := unix.Termios{
		Iflag:  m.Iflag,
		Oflag:  m.Oflag,
		Cflag:  m.Cflag,
		Lflag:  m.Lflag,
		Line:   m.Line,
		Ispeed: m.Ispeed,
		Ospeed: m.Ospeed,
	}
	copy(t.Cc[:], m.Cc)

	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		ioErr = unix.IoctlSetTermios(int(fd), unix.TCSETS, &t)
	}); err != nil {
		return err
	}
	return ioErr
}

// pollable re-opens the master as a non-blocking file so the runtime
// poller owns it and read deadlines can interrupt a pending Read. Any later
// call to f.Fd() would switch it back to blocking mode, so ioctls on the
// master go through SyscallConn.
func pollable(f *os.File) (*os.File, error) {
	fd, err := unix.FcntlInt(f.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("dup pty master: %w", err)
	}
	name := f.Name()
	f.Close()
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set pty master non-blocking: %w", err)
	}
	return os.NewFile(uintptr(fd), name), nil
}

// getSize reads the window size of the pty behind f.
func getSize(f *os.File) (cols, rows uint16, err error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return 0, 0, err
	}
	var ws *unix.Winsize
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		ws, ioErr = unix.IoctlGetWinsize(int(fd), unix.TIOCGWINSZ)
	}); err != nil {
		return 0, 0, err
	}
	if ioErr != nil {
		return 0, 0, ioErr
	}
	return ws.Col, ws.Row, nil
}

// setSize resizes the pty behind f. The kernel signals the foreground
// process group with SIGWINCH.
func setSize(f *os.File, cols, rows uint16) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		ioErr = unix.IoctlSetWinsize(int(fd), unix.TIOCSWINSZ, &unix.Winsize{Col: cols, Row: rows})
	}); err != nil {
		return err
	}
	return ioErr
}
