package criu

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtractPID(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
	}{
		{"Restoring processes (pid: 1234)", 1234, true},
		{"root task pid: 5678 ...", 5678, true},
		{"Forking root task (4321)", 4321, true},
		{"Restoring processes (pid: abc)", 0, false},
		{"nothing here", 0, false},
	}
	for _, tt := range tests {
		got, ok := extractPID(tt.line)
		if got != tt.want || ok != tt.ok {
			t.Errorf("extractPID(%q) = %d, %v; want %d, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "restore.pid")

	os.WriteFile(path, []byte(" 99 \n"), 0644)
	if pid, err := readPIDFile(path); err != nil || pid != 99 {
		t.Errorf("readPIDFile = %d, %v", pid, err)
	}

	os.WriteFile(path, []byte("-3"), 0644)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error for negative pid")
	}
}

func TestPIDFromImagesPicksLowest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"core-300.img", "core-120.img", "core-x.img", "pstree.img"} {
		os.WriteFile(filepath.Join(dir, name), nil, 0644)
	}
	if pid, ok := pidFromImages(dir); !ok || pid != 120 {
		t.Errorf("pidFromImages = %d, %v", pid, ok)
	}
	if _, ok := pidFromImages(t.TempDir()); ok {
		t.Error("empty dir should yield no pid")
	}
}
