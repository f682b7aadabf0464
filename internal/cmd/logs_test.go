package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTailLogFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		n       int
		want    string
	}{
		{"last two", "a\nb\nc\n", 2, "b\nc\n"},
		{"more than available", "a\nb\n", 10, "a\nb\n"},
		{"no trailing newline", "a\nb", 1, "b"},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tailLogFile(&buf, writeLog(t, tt.content), tt.n); err != nil {
				t.Fatalf("tailLogFile: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestTailLogFileMissing(t *testing.T) {
	err := tailLogFile(&bytes.Buffer{}, filepath.Join(t.TempDir(), "nope.log"), 5)
	if err == nil || !strings.Contains(err.Error(), "log file not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestFollowLogFileStopsOnCancel(t *testing.T) {
	path := writeLog(t, "first\n")
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	if err := followLogFile(ctx, &buf, path, 10); err != nil {
		t.Fatalf("followLogFile: %v", err)
	}
	if buf.String() != "first\n" {
		t.Errorf("got %q", buf.String())
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func TestFollowLogFileContinuesPartialLine(t *testing.T) {
	path := writeLog(t, "a\nhal")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() { done <- followLogFile(ctx, out, path, 5) }()

	deadline := time.Now().Add(2 * time.Second)
	for out.String() != "a\nhal" {
		if time.Now().After(deadline) {
			t.Fatalf("initial output = %q", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	appendLog(t, path, "f line\n")

	want := "a\nhalf line\n"
	for out.String() != want {
		if time.Now().After(deadline) {
			t.Fatalf("got %q, want %q", out.String(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("followLogFile: %v", err)
	}
}

func TestFollowLogFileStopsOnWriteError(t *testing.T) {
	path := writeLog(t, "old\n")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- followLogFile(ctx, brokenWriter{}, path, 0) }()
	time.Sleep(50 * time.Millisecond)
	appendLog(t, path, "new\n")

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "broken pipe") {
			t.Fatalf("expected write error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("followLogFile kept running after its writer failed")
	}
}

func TestTailLogFileWriteError(t *testing.T) {
	if err := tailLogFile(brokenWriter{}, writeLog(t, "a\n"), 1); err == nil {
		t.Fatal("expected write error")
	}
}
