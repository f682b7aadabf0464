// Package session supervises one interpreter process on a proxied pty:
// its lifecycle states, hotkey requests, playtime and termination.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/wethinkt/go-glkcli/internal/checkpoint"
	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/game"
	"github.com/wethinkt/go-glkcli/internal/metrics"
	"github.com/wethinkt/go-glkcli/internal/playtime"
	"github.com/wethinkt/go-glkcli/internal/ptyproxy"
	"github.com/wethinkt/go-glkcli/internal/termlog"
)

const defaultTerminateGrace = 2 * time.Second

// killWait bounds how long a SIGKILLed process may take to be reaped.
var killWait = 5 * time.Second

// Checkpointer takes checkpoints of a session.
type Checkpointer interface {
	Checkpoint(ctx context.Context, t checkpoint.Target, name string, mode checkpoint.Mode) (checkpoint.Checkpoint, error)
}

// Options configures a Session.
type Options struct {
	Proxy        ptyproxy.Options
	Checkpointer Checkpointer
	// ReloadAvailable reports whether a checkpoint exists to reload.
	ReloadAvailable func() bool
	TerminateGrace  time.Duration
	Clock           playtime.Clock
	Logger          *termlog.Logger
	// Notify shows a short message to the player.
	Notify func(msg string)
}

// Session is one running interpreter.
type Session struct {
	game    game.Game
	gameID  string
	proxy   *ptyproxy.Proxy
	proc    process
	tracker *playtime.Tracker
	opts    Options
	log     *termlog.Logger

	mu     sync.Mutex
	state  State
	status ExitStatus
	err    error
	done   chan struct{}

	ranOnce sync.Once
}

func newSession(g game.Game, prior time.Duration, opts Options) *Session {
	if opts.TerminateGrace <= 0 {
		opts.TerminateGrace = defaultTerminateGrace
	}
	if opts.Logger == nil {
		opts.Logger = termlog.Log
	}
	if opts.Proxy.Logger == nil {
		opts.Proxy.Logger = opts.Logger
	}
	var tOpts []playtime.Option
	if opts.Clock != nil {
		tOpts = append(tOpts, playtime.WithClock(opts.Clock))
	}
	return &Session{
		game:    g,
		gameID:  g.ID(),
		tracker: playtime.New(prior, tOpts...),
		opts:    opts,
		log:     opts.Logger,
		done:    make(chan struct{}),
	}
}

// Start launches the game's interpreter on a new pty. prior is playtime
// carried over from earlier sessions.
func Start(ctx context.Context, g game.Game, prior time.Duration, opts Options) (*Session, error) {
	s := newSession(g, prior, opts)
	if s.opts.Proxy.Dir == "" {
		// interpreters write their own save files next to the story
		s.opts.Proxy.Dir = filepath.Dir(g.Path)
	}
	command, args := g.Command()
	proxy, cmd, err := ptyproxy.Create(command, args, s.opts.Proxy)
	if err != nil {
		return nil, err
	}
	s.proxy = proxy
	s.proc = &cmdProcess{cmd: cmd}
	s.state = Spawned
	if err := s.setState(Running); err != nil {
		return nil, err
	}
	s.tracker.Start()
	go s.reap()
	s.log.Info("session started", "game", s.gameID, "pid", s.PID())
	return s, nil
}

// Adopt wraps a restored process that already runs on proxy's pty. The
// session stays in Restoring until MarkRunning.
func Adopt(proxy *ptyproxy.Proxy, pid int, g game.Game, prior time.Duration, opts Options) *Session {
	s := newSession(g, prior, opts)
	s.proxy = proxy
	s.proc = &adoptedProcess{pid: pid}
	s.state = Restoring
	go s.reap()
	s.log.Info("session adopted", "game", s.gameID, "pid", pid)
	return s
}

// MarkRunning completes a restore and starts counting playtime.
func (s *Session) MarkRunning() error {
	if err := s.setState(Running); err != nil {
		return err
	}
	s.tracker.Start()
	return nil
}

// Abandon kills the process and releases the pty. It is used when a
// restored process could not be attached.
func (s *Session) Abandon() {
	if err := s.proc.Signal(syscall.SIGKILL); err != nil {
		s.log.Debug("kill abandoned process", "pid", s.PID(), "err", err)
	}
	select {
	case <-s.done:
	case <-time.After(killWait):
		s.log.Warn("abandoned process did not exit", "pid", s.PID())
	}
	s.proxy.Close()
}

func (s *Session) reap() {
	status, err := s.proc.Wait()
	elapsed := s.tracker.Stop()
	metrics.SetPlaytime(elapsed)

	s.mu.Lock()
	s.status = status
	s.err = err
	s.state = Exited
	s.mu.Unlock()
	close(s.done)
	s.log.Info("session exited", "game", s.gameID, "pid", s.proc.Pid(), "status", status, "err", err)
}

func (s *Session) setState(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkTransition(s.state, to); err != nil {
		return err
	}
	s.log.Debug("session state", "from", s.state, "to", to)
	s.state = to
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Proxy returns the session's pty proxy.
func (s *Session) Proxy() *ptyproxy.Proxy {
	return s.proxy
}

// Run forwards terminal I/O and serves hotkeys until the interpreter
// exits or a hotkey ends the session. Run may be called once.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	first := false
	s.ranOnce.Do(func() { first = true })
	if !first {
		return OutcomeExited, apperrors.New(apperrors.CodeSessionState, "session is already running")
	}

	fctx, cancel := context.WithCancel(ctx)
	fwdDone := make(chan error, 1)
	go func() { fwdDone <- s.proxy.Forward(fctx) }()
	stop := func() {
		cancel()
		if err := <-fwdDone; err != nil {
			s.log.Debug("forward", "err", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.Terminate()
			stop()
			return OutcomeQuit, ctx.Err()

		case <-s.done:
			stop()
			return OutcomeExited, nil

		case ev := <-s.proxy.Events():
			outcome, err := s.SignalHotkey(ctx, ev.Action)
			if err != nil {
				s.log.Warn("hotkey failed", "action", ev.Action, "err", err)
			}
			switch outcome {
			case OutcomeContinue:
				continue
			case OutcomeSavedAndExited, OutcomeQuit:
				if !s.waitExit(s.opts.TerminateGrace + killWait) {
					s.log.Warn("interpreter still running after exit request", "pid", s.PID())
					err = fmt.Errorf("process %d did not exit", s.PID())
				}
			}
			stop()
			return outcome, err
		}
	}
}

// SignalHotkey performs the request behind a hotkey and reports whether
// play continues. Input forwarding is suspended when it is called and is
// resumed unless the session ends.
func (s *Session) SignalHotkey(ctx context.Context, action ptyproxy.Action) (Outcome, error) {
	metrics.CountHotkey(action.String())
	s.log.Info("hotkey", "action", action, "game", s.gameID)

	switch action {
	case ptyproxy.ActionQuickSave:
		cp, err := s.Checkpoint(ctx, "", checkpoint.QuickSave)
		if err != nil {
			s.notify("save failed: " + apperrors.CodeOf(err).Summary())
			return OutcomeContinue, err
		}
		s.notify("saved " + cp.Name)
		return OutcomeContinue, nil

	case ptyproxy.ActionSaveAndExit:
		if _, err := s.Checkpoint(ctx, "", checkpoint.SaveAndExit); err != nil {
			s.notify("save failed: " + apperrors.CodeOf(err).Summary())
			return OutcomeContinue, err
		}
		return OutcomeSavedAndExited, nil

	case ptyproxy.ActionQuickReload:
		if s.opts.ReloadAvailable == nil || !s.opts.ReloadAvailable() {
			s.notify("no checkpoint to reload")
			s.ResumeForwarding()
			return OutcomeContinue, nil
		}
		return OutcomeReload, nil

	case ptyproxy.ActionQuit:
		if err := s.Terminate(); err != nil {
			return OutcomeQuit, err
		}
		return OutcomeQuit, nil

	default:
		s.ResumeForwarding()
		return OutcomeContinue, nil
	}
}

// Checkpoint snapshots the running interpreter. The session is in
// CheckpointInFlight for the duration and returns to Running unless a
// SaveAndExit succeeded.
func (s *Session) Checkpoint(ctx context.Context, name string, mode checkpoint.Mode) (checkpoint.Checkpoint, error) {
	if s.opts.Checkpointer == nil {
		return checkpoint.Checkpoint{}, apperrors.New(apperrors.CodeSessionState, "checkpoints are disabled for this session")
	}
	if err := s.setState(CheckpointInFlight); err != nil {
		return checkpoint.Checkpoint{}, err
	}

	cp, err := s.opts.Checkpointer.Checkpoint(ctx, s, name, mode)

	s.mu.Lock()
	if s.state == CheckpointInFlight && (err != nil || mode != checkpoint.SaveAndExit) {
		s.state = Running
	}
	s.mu.Unlock()
	return cp, err
}

// Terminate asks the interpreter to exit with SIGTERM and kills it after
// the grace period. It returns once the process is gone.
func (s *Session) Terminate() error {
	select {
	case <-s.done:
		return nil
	default:
	}

	pid := s.PID()
	if err := s.proc.Signal(syscall.SIGTERM); err != nil {
		s.log.Debug("sigterm", "pid", pid, "err", err)
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(s.opts.TerminateGrace):
	}

	s.log.Warn("interpreter ignored SIGTERM, killing", "pid", pid)
	if err := s.proc.Signal(syscall.SIGKILL); err != nil {
		s.log.Debug("sigkill", "pid", pid, "err", err)
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("process %d did not exit after SIGKILL", pid)
	}
}

// waitExit reports whether the interpreter exited within d.
func (s *Session) waitExit(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.done:
		return true
	case <-t.C:
		return false
	}
}

// Wait blocks until the interpreter exits.
func (s *Session) Wait() ExitStatus {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Done is closed when the interpreter has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close releases the pty. The process must have exited.
func (s *Session) Close() error {
	return s.proxy.Close()
}

func (s *Session) notify(msg string) {
	if s.opts.Notify != nil {
		s.opts.Notify(msg)
		return
	}
	s.proxy.Status(msg)
}

// The methods below make a Session a checkpoint.Target.

func (s *Session) GameID() string { return s.gameID }

func (s *Session) PID() int { return s.proc.Pid() }

func (s *Session) Game() game.Game { return s.game }

// Playtime returns prior plus time spent running in this session.
func (s *Session) Playtime() time.Duration { return s.tracker.Total() }

func (s *Session) Terminal() ptyproxy.Terminal { return s.proxy.Snapshot() }

func (s *Session) SuspendForwarding() { s.proxy.SuspendForwarding() }

func (s *Session) ResumeForwarding() { s.proxy.ResumeForwarding() }

func (s *Session) FlushOutput(max time.Duration) { s.proxy.FlushOutput(max) }

var _ checkpoint.Target = (*Session)(nil)
