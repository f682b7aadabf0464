package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadCreatesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if want := filepath.Join(home, ".glkcli", "checkpoints"); cfg.CheckpointDir != want {
		t.Errorf("CheckpointDir = %q, want %q", cfg.CheckpointDir, want)
	}
	if cfg.CRIU.Binary != "criu" {
		t.Errorf("CRIU.Binary = %q", cfg.CRIU.Binary)
	}
	if !slices.Equal(cfg.Hotkeys.QuickReload, []string{"f3", "shift+f3"}) {
		t.Errorf("QuickReload = %v", cfg.Hotkeys.QuickReload)
	}
	if _, err := os.Stat(filepath.Join(home, ".glkcli", "config.toml")); err != nil {
		t.Errorf("expected config file to be written: %v", err)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".glkcli")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data := `
checkpoint_dir = "/srv/saves"
max_checkpoints = 5
terminate_grace = "500ms"

[criu]
binary = "/usr/local/sbin/criu"

[hotkeys]
quick_save = ["f5"]

[interpreters]
zcode = "bocfel"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GLKCLI_MAX_CHECKPOINTS", "3")
	t.Setenv("GLKCLI_CRIU_DUMP_ARGS", "--ghost-limit 10M")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CheckpointDir != "/srv/saves" {
		t.Errorf("CheckpointDir = %q", cfg.CheckpointDir)
	}
	if cfg.MaxCheckpoints != 3 {
		t.Errorf("MaxCheckpoints = %d, want env override 3", cfg.MaxCheckpoints)
	}
	if cfg.CRIU.Binary != "/usr/local/sbin/criu" {
		t.Errorf("CRIU.Binary = %q", cfg.CRIU.Binary)
	}
	if !slices.Equal(cfg.CRIU.ExtraDumpArgs, []string{"--ghost-limit", "10M"}) {
		t.Errorf("ExtraDumpArgs = %v", cfg.CRIU.ExtraDumpArgs)
	}
	if !slices.Equal(cfg.Hotkeys.QuickSave, []string{"f5"}) {
		t.Errorf("QuickSave = %v", cfg.Hotkeys.QuickSave)
	}
	// keys absent from the file keep their defaults
	if !slices.Equal(cfg.Hotkeys.Quit, []string{"f4"}) {
		t.Errorf("Quit = %v", cfg.Hotkeys.Quit)
	}
	if interp, ok := cfg.InterpreterFor("zcode"); !ok || interp != "bocfel" {
		t.Errorf("InterpreterFor(zcode) = %q, %v", interp, ok)
	}
	if got := cfg.TerminateGraceDuration(); got != 500*time.Millisecond {
		t.Errorf("TerminateGraceDuration = %v", got)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".glkcli")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("checkpoint_dir = ["), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTerminateGraceDefault(t *testing.T) {
	for _, v := range []string{"", "bogus", "-1s"} {
		cfg := Config{TerminateGrace: v}
		if got := cfg.TerminateGraceDuration(); got != 2*time.Second {
			t.Errorf("TerminateGraceDuration(%q) = %v", v, got)
		}
	}
}
