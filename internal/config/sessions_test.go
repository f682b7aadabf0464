package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRegisterAndListSessions(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	rec := SessionRecord{
		GameID:    "zork1_0badcafe",
		Title:     "zork1",
		Mode:      SessionPlay,
		PID:       os.Getpid(),
		ChildPID:  os.Getpid(),
		StartedAt: time.Now(),
	}

	if err := RegisterSession(rec); err != nil {
		t.Fatalf("RegisterSession failed: %v", err)
	}

	records, err := ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(records))
	}
	if records[0].GameID != "zork1_0badcafe" || records[0].Mode != SessionPlay {
		t.Fatalf("unexpected record: %+v", records[0])
	}

	path := filepath.Join(tmpDir, ".glkcli", "sessions.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("sessions.json was not created at %s", path)
	}
}

func TestRegisterSessionReplacesSamePID(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	base := SessionRecord{GameID: "a_00000001", PID: os.Getpid(), Mode: SessionPlay, StartedAt: time.Now()}
	if err := RegisterSession(base); err != nil {
		t.Fatal(err)
	}
	base.Mode = SessionRestore
	base.CheckpointID = "c1"
	if err := RegisterSession(base); err != nil {
		t.Fatal(err)
	}

	records, err := ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Mode != SessionRestore || records[0].CheckpointID != "c1" {
		t.Fatalf("expected single restored record, got %+v", records)
	}
}

func TestUnregisterSession(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := RegisterSession(SessionRecord{GameID: "g_1", PID: os.Getpid(), StartedAt: time.Now()}); err != nil {
		t.Fatalf("RegisterSession failed: %v", err)
	}
	if err := UnregisterSession(os.Getpid()); err != nil {
		t.Fatalf("UnregisterSession failed: %v", err)
	}

	records, err := ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("Expected 0 sessions after unregister, got %d", len(records))
	}
}

func TestStaleSessionCleanup(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	rec := SessionRecord{
		GameID:    "gone_12345678",
		PID:       999999999, // almost certainly not a real PID
		StartedAt: time.Now(),
	}
	if err := RegisterSession(rec); err != nil {
		t.Fatalf("RegisterSession failed: %v", err)
	}

	records, err := ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("Expected 0 sessions after stale cleanup, got %d", len(records))
	}
	if FindSessionByGame("gone_12345678") != nil {
		t.Fatal("stale session should not be found")
	}
}

func TestFindSessionByGame(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := RegisterSession(SessionRecord{GameID: "curses_deadbeef", PID: os.Getpid(), StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	found := FindSessionByGame("curses_deadbeef")
	if found == nil {
		t.Fatal("Expected to find session")
	}
	if found.PID != os.Getpid() {
		t.Fatalf("Expected PID %d, got %d", os.Getpid(), found.PID)
	}
	if FindSessionByGame("other_00000000") != nil {
		t.Fatal("Expected nil for unknown game")
	}
}

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Error("own process should be alive")
	}
	if IsProcessAlive(0) || IsProcessAlive(-1) {
		t.Error("non-positive pids are never alive")
	}
}
