package session

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/wethinkt/go-glkcli/internal/checkpoint"
	"github.com/wethinkt/go-glkcli/internal/criu/criutest"
	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/game"
	"github.com/wethinkt/go-glkcli/internal/ptyproxy"
)

const (
	keyF1 = "\x1bOP"
	keyF2 = "\x1bOQ"
	keyF3 = "\x1bOR"
	keyF4 = "\x1bOS"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	s       *Session
	store   *checkpoint.Store
	engine  *criutest.Fake
	clock   *fakeClock
	stdin   *os.File
	out     *syncBuffer
	notices chan string

	outcome chan Outcome
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func storyFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zork1.z5")
	if err := os.WriteFile(path, []byte("story"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// startHarness runs "sh -c 'exec <script>'" as the interpreter.
func startHarness(t *testing.T, script string, configure func(*Options)) *harness {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { stdinR.Close(); stdinW.Close() })

	h := &harness{
		store:   checkpoint.NewStore(t.TempDir()),
		engine:  &criutest.Fake{},
		clock:   &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)},
		stdin:   stdinW,
		out:     &syncBuffer{},
		notices: make(chan string, 16),
		outcome: make(chan Outcome, 1),
	}
	ctrl := checkpoint.NewController(h.store, h.engine, checkpoint.ControllerOptions{
		FlushTimeout: 10 * time.Millisecond,
		Now:          h.clock.Now,
	})
	opts := Options{
		Proxy:          ptyproxy.Options{Stdin: stdinR, Stdout: h.out},
		Checkpointer:   ctrl,
		TerminateGrace: 500 * time.Millisecond,
		Clock:          h.clock.Now,
		Notify:         func(msg string) { h.notices <- msg },
	}
	if configure != nil {
		configure(&opts)
	}

	g := game.Game{Format: "zcode", Path: storyFile(t), Interpreter: "/bin/sh", Args: []string{"-c", "exec " + script}}
	s, err := Start(context.Background(), g, 0, opts)
	if err != nil {
		t.Skipf("cannot start session: %v", err)
	}
	h.s = s
	t.Cleanup(func() {
		s.Terminate()
		s.Close()
	})
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	go func() {
		outcome, err := h.s.Run(context.Background())
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		h.outcome <- outcome
	}()
}

func (h *harness) send(t *testing.T, s string) {
	t.Helper()
	if _, err := h.stdin.Write([]byte(s)); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
}

func (h *harness) waitOutcome(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-h.outcome:
		return o
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return OutcomeContinue
	}
}

func (h *harness) notice(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-h.notices:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no notice")
		return ""
	}
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{Spawned, Running, true},
		{Running, CheckpointInFlight, true},
		{CheckpointInFlight, Running, true},
		{Restoring, Running, true},
		{Running, Exited, true},
		{Restoring, Exited, true},
		{CheckpointInFlight, Exited, true},
		{Running, Restoring, false},
		{Spawned, CheckpointInFlight, false},
		{Exited, Running, false},
		{Exited, Exited, false},
		{Restoring, CheckpointInFlight, false},
	}
	for _, tt := range tests {
		err := checkTransition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("checkTransition(%s, %s) = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
		if err != nil && !apperrors.HasCode(err, apperrors.CodeSessionState) {
			t.Errorf("checkTransition(%s, %s) code = %s", tt.from, tt.to, apperrors.CodeOf(err))
		}
	}
}

func TestQuickSaveKeepsPlaying(t *testing.T) {
	h := startHarness(t, "cat", nil)
	h.run(t)

	h.send(t, "hello\n")
	waitFor(t, "echo of hello", func() bool { return strings.Contains(h.out.String(), "hello") })

	h.clock.Advance(10 * time.Second)
	h.send(t, keyF2)
	if msg := h.notice(t); !strings.HasPrefix(msg, "saved") {
		t.Fatalf("notice = %q, want saved", msg)
	}

	cps, err := h.store.List(h.s.GameID())
	if err != nil || len(cps) != 1 {
		t.Fatalf("List = %v, %v; want one checkpoint", cps, err)
	}
	if got := cps[0].Playtime(); got != 10*time.Second {
		t.Errorf("checkpoint playtime = %v, want 10s", got)
	}
	if h.engine.Dumps[0].PID != h.s.PID() {
		t.Errorf("dumped pid %d, want %d", h.engine.Dumps[0].PID, h.s.PID())
	}

	h.send(t, "after\n")
	waitFor(t, "input after the save", func() bool { return strings.Contains(h.out.String(), "after") })
	if st := h.s.State(); st != Running {
		t.Errorf("state = %s, want running", st)
	}

	h.send(t, keyF4)
	if o := h.waitOutcome(t); o != OutcomeQuit {
		t.Errorf("outcome = %s, want quit", o)
	}
	if st := h.s.State(); st != Exited {
		t.Errorf("state = %s, want exited", st)
	}
}

func TestSaveAndExit(t *testing.T) {
	h := startHarness(t, "cat", nil)
	h.run(t)

	h.send(t, keyF1)
	if o := h.waitOutcome(t); o != OutcomeSavedAndExited {
		t.Fatalf("outcome = %s, want saved_and_exited", o)
	}
	if st := h.s.State(); st != Exited {
		t.Errorf("state = %s, want exited", st)
	}
	cps, _ := h.store.List(h.s.GameID())
	if len(cps) != 1 {
		t.Fatalf("List = %d checkpoints, want 1", len(cps))
	}
	if err := h.store.Verify(cps[0]); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestCheckpointFailureKeepsRunning(t *testing.T) {
	h := startHarness(t, "cat", nil)
	h.engine.DumpErr = apperrors.New(apperrors.CodeToolMissing, "criu not found")
	h.run(t)

	h.send(t, keyF2)
	if msg := h.notice(t); !strings.Contains(msg, "save failed") {
		t.Fatalf("notice = %q, want a failure notice", msg)
	}
	if st := h.s.State(); st != Running {
		t.Errorf("state = %s, want running", st)
	}

	h.send(t, "still here\n")
	waitFor(t, "input after failed save", func() bool { return strings.Contains(h.out.String(), "still here") })

	if cps, _ := h.store.List(h.s.GameID()); len(cps) != 0 {
		t.Errorf("List = %d checkpoints, want 0", len(cps))
	}
	h.send(t, keyF4)
	h.waitOutcome(t)
}

func TestReloadWithoutCheckpoint(t *testing.T) {
	h := startHarness(t, "cat", func(o *Options) {
		o.ReloadAvailable = func() bool { return false }
	})
	h.run(t)

	h.send(t, keyF3)
	if msg := h.notice(t); !strings.Contains(msg, "no checkpoint") {
		t.Fatalf("notice = %q", msg)
	}
	h.send(t, "more\n")
	waitFor(t, "input after refused reload", func() bool { return strings.Contains(h.out.String(), "more") })

	h.send(t, keyF4)
	h.waitOutcome(t)
}

func TestReloadRequested(t *testing.T) {
	h := startHarness(t, "cat", func(o *Options) {
		o.ReloadAvailable = func() bool { return true }
	})
	h.run(t)

	h.send(t, keyF3)
	if o := h.waitOutcome(t); o != OutcomeReload {
		t.Fatalf("outcome = %s, want reload", o)
	}
	if h.s.State() == Exited {
		t.Error("reload request should leave the interpreter for the caller to stop")
	}
	if err := h.s.Terminate(); err != nil {
		t.Errorf("Terminate: %v", err)
	}
	if st := h.s.State(); st != Exited {
		t.Errorf("state = %s, want exited", st)
	}
}

func TestInterpreterExit(t *testing.T) {
	h := startHarness(t, "false", nil)
	h.run(t)

	if o := h.waitOutcome(t); o != OutcomeExited {
		t.Fatalf("outcome = %s, want exited", o)
	}
	status := h.s.Wait()
	if status.Success() || status.Code != 1 {
		t.Errorf("status = %s, want exit status 1", status)
	}

	_, err := h.s.Checkpoint(context.Background(), "late", checkpoint.QuickSave)
	if !apperrors.HasCode(err, apperrors.CodeSessionState) {
		t.Errorf("Checkpoint after exit = %v, want SESSION_STATE", err)
	}
}

func TestPlaytimeFollowsClock(t *testing.T) {
	h := startHarness(t, "cat", nil)
	h.clock.Advance(3 * time.Second)
	if got := h.s.Playtime(); got != 3*time.Second {
		t.Errorf("Playtime = %v, want 3s", got)
	}
	h.s.Terminate()
}

func TestRunTwice(t *testing.T) {
	h := startHarness(t, "cat", nil)
	h.run(t)
	h.send(t, "x\n")
	waitFor(t, "first Run to forward input", func() bool { return strings.Contains(h.out.String(), "x") })

	if _, err := h.s.Run(context.Background()); !apperrors.HasCode(err, apperrors.CodeSessionState) {
		t.Errorf("second Run = %v, want SESSION_STATE", err)
	}
	h.send(t, keyF4)
	h.waitOutcome(t)
}

// stubbornProcess ignores signals and never exits.
type stubbornProcess struct {
	mu      sync.Mutex
	signals []syscall.Signal
}

func (p *stubbornProcess) Pid() int { return 4242 }

func (p *stubbornProcess) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return nil
}

func (p *stubbornProcess) Wait() (ExitStatus, error) { select {} }

func TestQuitGivesUpOnUnkillableProcess(t *testing.T) {
	old := killWait
	killWait = 100 * time.Millisecond
	t.Cleanup(func() { killWait = old })

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { stdinR.Close(); stdinW.Close() })

	proxy, err := ptyproxy.Open(ptyproxy.Options{Stdin: stdinR, Stdout: &syncBuffer{}})
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	t.Cleanup(func() { proxy.Close() })

	proc := &stubbornProcess{}
	s := newSession(game.Game{Path: "/games/zork1.z5"}, 0, Options{TerminateGrace: 50 * time.Millisecond})
	s.proxy = proxy
	s.proc = proc
	s.state = Running

	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		o, err := s.Run(context.Background())
		done <- result{o, err}
	}()

	if _, err := stdinW.Write([]byte(keyF4)); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-done:
		if r.outcome != OutcomeQuit {
			t.Errorf("outcome = %s, want quit", r.outcome)
		}
		if r.err == nil {
			t.Error("expected an error for a process that would not exit")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return for a process that ignores SIGKILL")
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if len(proc.signals) != 2 || proc.signals[0] != syscall.SIGTERM || proc.signals[1] != syscall.SIGKILL {
		t.Errorf("signals = %v, want [SIGTERM SIGKILL]", proc.signals)
	}
}
