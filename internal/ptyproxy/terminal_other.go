//go:build !linux

package ptyproxy

import (
	"os"

	"github.com/creack/pty"
)

func getMode(f *os.File) (*TermMode, error) { return nil, errUnsupported }

func setMode(f *os.File, m *TermMode) error { return errUnsupported }

func pollable(f *os.File) (*os.File, error) { return f, nil }

func getSize(f *os.File) (cols, rows uint16, err error) {
	ws, err := pty.GetsizeFull(f)
	if err != nil {
		return 0, 0, err
	}
	return ws.Cols, ws.Rows, nil
}

func setSize(f *os.File, cols, rows uint16) error {
	return pty.Setsize(f, &pty.Winsize{Cols: cols, Rows: rows})
}
