package ptyproxy

import "errors"

// TermMode is a serializable copy of a pty's termios settings.
type TermMode struct {
	Iflag  uint32 `json:"iflag" yaml:"iflag"`
	Oflag  uint32 `json:"oflag" yaml:"oflag"`
	Cflag  uint32 `json:"cflag" yaml:"cflag"`
	Lflag  uint32 `json:"lflag" yaml:"lflag"`
	Line   uint8  `json:"line" yaml:"line"`
	Cc     []byte `json:"cc" yaml:"cc,flow"`
	Ispeed uint32 `json:"ispeed" yaml:"ispeed"`
	Ospeed uint32 `json:"ospeed" yaml:"ospeed"`
}

// Terminal describes the pty a child was attached to, as recorded in a
// checkpoint so a restore can rebuild an equivalent one.
type Terminal struct {
	TTY  string    `json:"tty,omitempty" yaml:"tty,omitempty"` // CRIU external key, tty[rdev:dev]
	Mode *TermMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Cols uint16    `json:"cols,omitempty" yaml:"cols,omitempty"`
	Rows uint16    `json:"rows,omitempty" yaml:"rows,omitempty"`
}

var errUnsupported = errors.New("terminal modes are not supported on this platform")
