package session

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const pollInterval = 100 * time.Millisecond

// ExitStatus is how the interpreter process ended.
type ExitStatus struct {
	Code   int            // exit code, -1 when killed by a signal or unknown
	Signal syscall.Signal // terminating signal, 0 when none
}

func (e ExitStatus) String() string {
	if e.Signal != 0 {
		return "signal: " + e.Signal.String()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Success reports a zero exit code.
func (e ExitStatus) Success() bool {
	return e.Signal == 0 && e.Code == 0
}

func statusFromWait(ws syscall.WaitStatus) ExitStatus {
	if ws.Signaled() {
		return ExitStatus{Code: -1, Signal: ws.Signal()}
	}
	return ExitStatus{Code: ws.ExitStatus()}
}

type process interface {
	Pid() int
	Signal(sig syscall.Signal) error
	Wait() (ExitStatus, error)
}

// cmdProcess is a child we spawned ourselves.
type cmdProcess struct {
	cmd *exec.Cmd
}

func (p *cmdProcess) Pid() int { return p.cmd.Process.Pid }

func (p *cmdProcess) Signal(sig syscall.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *cmdProcess) Wait() (ExitStatus, error) {
	err := p.cmd.Wait()
	if st := p.cmd.ProcessState; st != nil {
		if ws, ok := st.Sys().(syscall.WaitStatus); ok {
			return statusFromWait(ws), nil
		}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExitStatus{Code: exitErr.ExitCode()}, nil
	}
	return ExitStatus{Code: -1}, err
}

// adoptedProcess is a restored process. The launcher is its child
// subreaper, so it can normally be reaped with wait4; when it cannot, its
// liveness is polled with signal 0.
type adoptedProcess struct {
	pid int
}

func (p *adoptedProcess) Pid() int { return p.pid }

func (p *adoptedProcess) Signal(sig syscall.Signal) error {
	return unix.Kill(p.pid, sig)
}

func (p *adoptedProcess) Wait() (ExitStatus, error) {
	for {
		var ws unix.WaitStatus
		_, err := unix.Wait4(p.pid, &ws, 0, nil)
		switch {
		case err == nil:
			return statusFromWait(syscall.WaitStatus(ws)), nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return p.poll(), nil
		default:
			return ExitStatus{Code: -1}, fmt.Errorf("wait4 %d: %w", p.pid, err)
		}
	}
}

func (p *adoptedProcess) poll() ExitStatus {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		if err := unix.Kill(p.pid, 0); errors.Is(err, unix.ESRCH) {
			return ExitStatus{Code: -1}
		}
		<-t.C
	}
}
