// Package ptyproxy sits between the user's terminal and an interpreter
// running on a pseudo-terminal. It copies bytes both ways, keeps the pty
// size in sync and diverts reserved hotkeys to an event channel.
package ptyproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/muesli/cancelreader"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/termlog"
)

const (
	defaultEscTimeout = 50 * time.Millisecond
	outputQuiet       = 25 * time.Millisecond
	inputQueue        = 4
)

// Event is a hotkey intercepted from user input.
type Event struct {
	Action Action
	At     time.Time
}

// Options configures a Proxy.
type Options struct {
	Stdin      *os.File  // user input (default os.Stdin)
	Stdout     io.Writer // user output (default os.Stdout)
	Keymap     Keymap    // reserved sequences (default DefaultKeymap())
	EscTimeout time.Duration
	Dir        string // working directory for a child started by Create
	Logger     *termlog.Logger
}

// Proxy owns one pty pair.
type Proxy struct {
	opts    Options
	master  *os.File
	ttyKey  string
	matcher *Matcher
	events  chan Event
	gate    gate

	mu    sync.Mutex
	slave *os.File // our copy, held until a child owns the slave

	outMu      sync.Mutex
	lastOutput atomic.Int64
	forwarding atomic.Bool
}

// Open allocates a pty pair sized like the user's terminal. The slave is
// kept open until a child is started on it or Reattach is called.
func Open(opts Options) (*Proxy, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Keymap == nil {
		opts.Keymap = DefaultKeymap()
	}
	if opts.EscTimeout <= 0 {
		opts.EscTimeout = defaultEscTimeout
	}
	if opts.Logger == nil {
		opts.Logger = termlog.Log
	}

	raw, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}
	master, err := pollable(raw)
	if err != nil {
		slave.Close()
		return nil, err
	}

	p := &Proxy{
		opts:    opts,
		master:  master,
		slave:   slave,
		matcher: NewMatcher(opts.Keymap),
		events:  make(chan Event, 4),
	}
	p.ttyKey, err = ttyKey(slave)
	if err != nil {
		opts.Logger.Warn("cannot identify pty slave", "err", err)
	}
	if err := p.Resize(); err != nil {
		opts.Logger.Debug("initial resize", "err", err)
	}
	return p, nil
}

// Create starts command on a new pty with the slave as its controlling
// terminal and stdio.
func Create(command string, args []string, opts Options) (*Proxy, *exec.Cmd, error) {
	p, err := Open(opts)
	if err != nil {
		return nil, nil, err
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = opts.Dir
	cmd.Stdin = p.slave
	cmd.Stdout = p.slave
	cmd.Stderr = p.slave
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	if err := cmd.Start(); err != nil {
		p.Close()
		return nil, nil, fmt.Errorf("start %s: %w", command, err)
	}
	p.releaseSlave()
	p.opts.Logger.Info("child started", "pid", cmd.Process.Pid, "command", command, "tty", p.ttyKey)
	return p, cmd, nil
}

// ttyKey returns the CRIU identifier of a tty: tty[rdev:dev] in hex.
func ttyKey(f *os.File) (string, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return "", err
	}
	return fmt.Sprintf("tty[%x:%x]", st.Rdev, st.Dev), nil
}

// Slave returns the slave side while the proxy still holds it, else nil.
func (p *Proxy) Slave() *os.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slave
}

func (p *Proxy) releaseSlave() *os.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slave
	p.slave = nil
	if s != nil {
		s.Close()
	}
	return s
}

// Events delivers intercepted hotkeys.
func (p *Proxy) Events() <-chan Event {
	return p.events
}

// TTYKey is the CRIU external key of the slave.
func (p *Proxy) TTYKey() string {
	return p.ttyKey
}

// Snapshot captures the slave's identity, termios and size.
func (p *Proxy) Snapshot() Terminal {
	t := Terminal{TTY: p.ttyKey}
	if mode, err := getMode(p.master); err == nil {
		t.Mode = mode
	} else {
		p.opts.Logger.Debug("read terminal mode", "err", err)
	}
	if cols, rows, err := getSize(p.master); err == nil {
		t.Cols, t.Rows = cols, rows
	}
	return t
}

// ApplyMode restores saved termios settings onto the current pty.
func (p *Proxy) ApplyMode(m *TermMode) error {
	if m == nil {
		return nil
	}
	return setMode(p.master, m)
}

// Resize copies the user's terminal size to the pty. The kernel signals
// the foreground process group with SIGWINCH.
func (p *Proxy) Resize() error {
	if !term.IsTerminal(int(p.opts.Stdin.Fd())) {
		return setSize(p.master, 80, 24)
	}
	ws, err := pty.GetsizeFull(p.opts.Stdin)
	if err != nil {
		return err
	}
	return setSize(p.master, ws.Cols, ws.Rows)
}

// SuspendForwarding stops passing user input to the child. Input stays
// queued and is delivered on ResumeForwarding.
func (p *Proxy) SuspendForwarding() {
	p.gate.close()
}

// ResumeForwarding releases queued input to the child.
func (p *Proxy) ResumeForwarding() {
	p.gate.release()
}

// Suspended reports whether input forwarding is suspended.
func (p *Proxy) Suspended() bool {
	return p.gate.isClosed()
}

// FlushOutput waits until the child's output has been quiet briefly, or
// max has passed, so a snapshot does not cut a screen update in half.
func (p *Proxy) FlushOutput(max time.Duration) {
	deadline := time.Now().Add(max)
	for time.Now().Before(deadline) {
		last := time.Unix(0, p.lastOutput.Load())
		if time.Since(last) >= outputQuiet {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Status shows msg in the terminal title without touching the screen.
func (p *Proxy) Status(msg string) {
	p.writeOut([]byte("\x1b]2;glkcli: " + msg + "\a"))
}

func (p *Proxy) writeOut(b []byte) error {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	_, err := p.opts.Stdout.Write(b)
	return err
}

// Reattach completes a restore: it drops our copy of the slave, checks
// that pid now holds it and nudges the process to redraw.
func (p *Proxy) Reattach(pid int) error {
	s := p.releaseSlave()
	if s == nil {
		return apperrors.New(apperrors.CodeReattach, "no pty slave to reattach")
	}
	name := s.Name()

	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return apperrors.WrapWithMetadata(apperrors.CodeReattach, "restored process is gone",
			map[string]string{"pid": fmt.Sprint(pid)}, err)
	}
	if err := verifyAttached(pid, name); err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeReattach, "restored process is not attached to the new terminal",
			map[string]string{"pid": fmt.Sprint(pid), "tty": name}, err)
	}
	if err := p.Resize(); err != nil {
		p.opts.Logger.Debug("resize after reattach", "err", err)
	}
	if err := unix.Kill(pid, unix.SIGWINCH); err != nil {
		p.opts.Logger.Debug("sigwinch after reattach", "pid", pid, "err", err)
	}
	p.opts.Logger.Info("reattached", "pid", pid, "tty", name)
	return nil
}

// verifyAttached checks /proc/<pid>/fd/{0,1,2} for the slave. Without
// procfs access the check is skipped.
func verifyAttached(pid int, slaveName string) error {
	var lastErr error
	for _, fd := range []int{0, 1, 2} {
		target, err := os.Readlink(fmt.Sprintf("/proc/%d/fd/%d", pid, fd))
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil
			}
			lastErr = err
			continue
		}
		if target == slaveName {
			return nil
		}
	}
	if lastErr != nil && errors.Is(lastErr, fs.ErrNotExist) {
		if _, err := os.Stat("/proc/self/fd"); err != nil {
			return nil
		}
	}
	return fmt.Errorf("pid %d stdio does not point at %s", pid, slaveName)
}

// Close releases the pty pair.
func (p *Proxy) Close() error {
	p.releaseSlave()
	return p.master.Close()
}

// Forward copies bytes between the user's terminal and the child until the
// child closes the pty or ctx is cancelled. The user's terminal is in raw
// mode for the duration. Forward may be called once.
func (p *Proxy) Forward(ctx context.Context) error {
	if !p.forwarding.CompareAndSwap(false, true) {
		return errors.New("ptyproxy: Forward already called")
	}

	restore := p.makeRaw()
	defer restore()

	in, err := cancelreader.NewReader(p.opts.Stdin)
	if err != nil {
		return fmt.Errorf("stdin reader: %w", err)
	}
	defer in.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return p.copyOutput()
	})
	g.Go(func() error {
		return p.copyInput(gctx, in)
	})
	g.Go(func() error {
		p.watchResize(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// unblocks copyOutput when the caller gave up on a live child
		if err := p.master.SetReadDeadline(time.Now()); err != nil {
			p.opts.Logger.Warn("cannot interrupt pty read", "err", err)
		}
		return nil
	})

	err = g.Wait()
	p.opts.Logger.Debug("forwarding stopped", "err", err)
	return err
}

func (p *Proxy) makeRaw() func() {
	fd := int(p.opts.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		p.opts.Logger.Warn("raw mode", "err", err)
		return func() {}
	}
	return func() { term.Restore(fd, state) }
}

func (p *Proxy) copyOutput() error {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.master.Read(buf)
		if n > 0 {
			p.lastOutput.Store(time.Now().UnixNano())
			if werr := p.writeOut(buf[:n]); werr != nil {
				return fmt.Errorf("write output: %w", werr)
			}
		}
		if err != nil {
			if isClosedPTY(err) {
				return nil
			}
			return fmt.Errorf("read pty: %w", err)
		}
	}
}

func (p *Proxy) copyInput(ctx context.Context, in cancelreader.CancelReader) error {
	chunks := make(chan []byte, inputQueue)
	go p.readInput(ctx, in, chunks)
	defer func() {
		in.Cancel()
		for range chunks {
		}
	}()

	escTimer := time.NewTimer(time.Hour)
	escTimer.Stop()
	defer escTimer.Stop()

	var held []byte
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.gate.wait():
		}

		chunk := held
		held = nil
		if len(chunk) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case c, ok := <-chunks:
				if !ok {
					// stdin is gone; output keeps flowing until the child exits
					<-ctx.Done()
					return nil
				}
				chunk = c
			case <-escTimer.C:
				if err := p.writeMaster(p.matcher.Flush()); err != nil {
					return err
				}
				continue
			}
			if p.gate.isClosed() {
				held = chunk
				continue
			}
		}

		fwd, action, rest := p.matcher.Scan(chunk)
		if err := p.writeMaster(fwd); err != nil {
			return err
		}
		if action != ActionNone {
			p.gate.close()
			held = append([]byte(nil), rest...)
			p.opts.Logger.Debug("hotkey", "action", action)
			select {
			case p.events <- Event{Action: action, At: time.Now()}:
			case <-ctx.Done():
				return nil
			}
			continue
		}
		if p.matcher.Pending() {
			escTimer.Reset(p.opts.EscTimeout)
		}
	}
}

func (p *Proxy) readInput(ctx context.Context, in io.Reader, chunks chan<- []byte) {
	defer close(chunks)
	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			c := append([]byte(nil), buf[:n]...)
			select {
			case chunks <- c:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, cancelreader.ErrCanceled) && !errors.Is(err, io.EOF) {
				p.opts.Logger.Warn("read stdin", "err", err)
			}
			return
		}
	}
}

func (p *Proxy) writeMaster(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if _, err := p.master.Write(b); err != nil {
		if isClosedPTY(err) {
			return nil
		}
		return fmt.Errorf("write pty: %w", err)
	}
	return nil
}

func (p *Proxy) watchResize(ctx context.Context) {
	if !term.IsTerminal(int(p.opts.Stdin.Fd())) {
		return
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			if err := p.Resize(); err != nil {
				p.opts.Logger.Debug("resize", "err", err)
			}
		}
	}
}

// isClosedPTY reports errors meaning the other side of the pty is gone.
func isClosedPTY(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}
