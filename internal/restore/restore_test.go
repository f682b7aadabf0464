package restore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wethinkt/go-glkcli/internal/checkpoint"
	"github.com/wethinkt/go-glkcli/internal/criu"
	"github.com/wethinkt/go-glkcli/internal/criu/criutest"
	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/ptyproxy"
	"github.com/wethinkt/go-glkcli/internal/session"
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

const testGame = "zork1_0badf00d"

func storeCheckpoint(t *testing.T, s *checkpoint.Store, playtime time.Duration) checkpoint.Checkpoint {
	t.Helper()
	dir, err := s.Stage(testGame)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"inventory.img", "pstree.img"} {
		os.WriteFile(filepath.Join(dir, name), []byte(name), 0644)
	}
	cp := checkpoint.Checkpoint{
		GameID:      testGame,
		Name:        "chap1",
		CreatedAt:   time.Now(),
		GamePath:    "/games/zork1.z5",
		Interpreter: "/bin/cat",
		Terminal:    ptyproxy.Terminal{TTY: "tty[8800:d]"},
	}
	cp.SetPlaytime(playtime)
	if err := s.Append(&cp, dir); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return cp
}

// startOnTTY plays the part of criu: it starts cat with the new slave as
// its controlling terminal.
func startOnTTY(t *testing.T) func(req criu.RestoreRequest) (int, error) {
	return func(req criu.RestoreRequest) (int, error) {
		cmd := exec.Command("/bin/cat")
		cmd.Stdin, cmd.Stdout, cmd.Stderr = req.TTY, req.TTY, req.TTY
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
		if err := cmd.Start(); err != nil {
			return 0, err
		}
		t.Cleanup(func() { unix.Kill(cmd.Process.Pid, unix.SIGKILL) })
		return cmd.Process.Pid, nil
	}
}

func newEngine(t *testing.T, fake *criutest.Fake) (*Engine, *checkpoint.Store, *os.File, *syncBuffer) {
	t.Helper()
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { stdinR.Close(); stdinW.Close() })
	out := &syncBuffer{}
	store := checkpoint.NewStore(t.TempDir())
	e := New(store, fake, session.Options{
		Proxy:          ptyproxy.Options{Stdin: stdinR, Stdout: out},
		TerminateGrace: 500 * time.Millisecond,
	})
	return e, store, stdinW, out
}

func TestRestoreRunsSession(t *testing.T) {
	if _, err := os.Stat("/bin/cat"); err != nil {
		t.Skip("/bin/cat not available")
	}
	fake := &criutest.Fake{}
	fake.RestoreFunc = startOnTTY(t)
	e, store, stdin, out := newEngine(t, fake)
	cp := storeCheckpoint(t, store, 90*time.Second)
	before, _ := os.ReadFile(filepath.Join(store.GameDir(testGame), "index.json"))

	s, err := e.Restore(context.Background(), cp)
	if err != nil {
		if strings.Contains(err.Error(), "pty") {
			t.Skipf("pty unavailable: %v", err)
		}
		t.Fatalf("Restore: %v", err)
	}
	defer s.Close()

	if st := s.State(); st != session.Running {
		t.Errorf("state = %s, want running", st)
	}
	if got := s.Playtime(); got < 90*time.Second {
		t.Errorf("Playtime = %v, want at least 90s", got)
	}
	if len(fake.Restores) != 1 || fake.Restores[0].TTYKey != "tty[8800:d]" || fake.Restores[0].ImageDir != cp.ImageDir {
		t.Errorf("restore requests = %+v", fake.Restores)
	}

	outcome := make(chan session.Outcome, 1)
	go func() {
		o, _ := s.Run(context.Background())
		outcome <- o
	}()
	stdin.Write([]byte("restored input\n"))
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "restored input") {
		if time.Now().After(deadline) {
			t.Fatal("input did not reach the restored process")
		}
		time.Sleep(10 * time.Millisecond)
	}

	stdin.Write([]byte("\x1bOS"))
	select {
	case o := <-outcome:
		if o != session.OutcomeQuit {
			t.Errorf("outcome = %s, want quit", o)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}

	after, _ := os.ReadFile(filepath.Join(store.GameDir(testGame), "index.json"))
	if !bytes.Equal(before, after) {
		t.Error("restore modified the index")
	}
}

func TestRestoreCorruptImage(t *testing.T) {
	fake := &criutest.Fake{RestorePID: 1}
	e, store, _, _ := newEngine(t, fake)
	cp := storeCheckpoint(t, store, 0)
	os.WriteFile(filepath.Join(cp.ImageDir, "pstree.img"), []byte("garbage"), 0644)

	s, err := e.Restore(context.Background(), cp)
	if !apperrors.HasCode(err, apperrors.CodeImageCorrupt) {
		t.Fatalf("Restore error = %v, want IMAGE_CORRUPT", err)
	}
	if s != nil {
		t.Error("Restore returned a session for a corrupt image")
	}
	if len(fake.Restores) != 0 {
		t.Errorf("engine was invoked %d times", len(fake.Restores))
	}
}

func TestRestoreEngineFailure(t *testing.T) {
	fake := &criutest.Fake{RestoreErr: apperrors.New(apperrors.CodeRestoreFailed, "criu restore failed")}
	e, store, _, _ := newEngine(t, fake)
	cp := storeCheckpoint(t, store, 0)

	s, err := e.Restore(context.Background(), cp)
	if err != nil && strings.Contains(err.Error(), "open pty") {
		t.Skipf("pty unavailable: %v", err)
	}
	if !apperrors.HasCode(err, apperrors.CodeRestoreFailed) || s != nil {
		t.Fatalf("Restore = %v, %v; want RESTORE_FAILED and no session", s, err)
	}
}

func TestRestoreReattachFailureKillsProcess(t *testing.T) {
	if _, err := os.Stat("/bin/sleep"); err != nil {
		t.Skip("/bin/sleep not available")
	}
	var pid int
	fake := &criutest.Fake{}
	fake.RestoreFunc = func(req criu.RestoreRequest) (int, error) {
		// not attached to req.TTY
		cmd := exec.Command("/bin/sleep", "30")
		if err := cmd.Start(); err != nil {
			return 0, err
		}
		pid = cmd.Process.Pid
		return pid, nil
	}
	e, store, _, _ := newEngine(t, fake)
	cp := storeCheckpoint(t, store, 0)

	s, err := e.Restore(context.Background(), cp)
	if err != nil && strings.Contains(err.Error(), "open pty") {
		t.Skipf("pty unavailable: %v", err)
	}
	if !apperrors.HasCode(err, apperrors.CodeReattach) || s != nil {
		t.Fatalf("Restore = %v, %v; want REATTACH_FAILED and no session", s, err)
	}
	if err := unix.Kill(pid, 0); !errors.Is(err, unix.ESRCH) {
		t.Errorf("restored process %d still exists (kill 0 = %v)", pid, err)
	}
}
