// Package criu adapts the CRIU command-line tool into a checkpoint engine.
//
// The adapter is a thin, synchronous wrapper: it builds argument lists,
// runs the tool, classifies failures into the error taxonomy and reads the
// restored PID back. CRIU itself is treated as a black box.
package criu

import (
	"context"
	"os"
)

// Engine produces and restores whole-process snapshots.
type Engine interface {
	// Check verifies the facility is installed and usable.
	Check(ctx context.Context) error
	// Dump snapshots the process tree rooted at req.PID into req.ImageDir.
	Dump(ctx context.Context, req DumpRequest) error
	// Restore resumes the snapshot in req.ImageDir and returns the PID of
	// the restored root process.
	Restore(ctx context.Context, req RestoreRequest) (int, error)
}

// DumpRequest describes one snapshot.
type DumpRequest struct {
	PID          int
	ImageDir     string // existing, empty scratch directory
	LeaveRunning bool   // keep the process alive after a successful dump
	TTY          string // CRIU key of the controlling tty, e.g. "tty[8800:d]"
}

// RestoreRequest describes one restore.
type RestoreRequest struct {
	ImageDir string
	// TTY is the slave side of a fresh pty. The restored process tree is
	// attached to it instead of the terminal it had at dump time.
	TTY *os.File
	// TTYKey is the DumpRequest.TTY recorded with the snapshot.
	TTYKey string
}
