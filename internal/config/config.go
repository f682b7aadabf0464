// Package config provides application configuration management for glkcli.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config holds the glkcli configuration.
type Config struct {
	CheckpointDir  string            `toml:"checkpoint_dir" env:"GLKCLI_CHECKPOINT_DIR"`   // Root of the checkpoint store
	LogFile        string            `toml:"log_file" env:"GLKCLI_LOG"`                    // Debug log path (empty = disabled)
	LogLevel       string            `toml:"log_level" env:"GLKCLI_LOG_LEVEL"`             // debug, info, warn, error
	MetricsFile    string            `toml:"metrics_file" env:"GLKCLI_METRICS_FILE"`       // Prometheus textfile (empty = disabled)
	MaxCheckpoints int               `toml:"max_checkpoints" env:"GLKCLI_MAX_CHECKPOINTS"` // Per game; 0 keeps all
	TerminateGrace string            `toml:"terminate_grace" env:"GLKCLI_TERMINATE_GRACE"` // SIGTERM to SIGKILL delay (e.g. "2s")
	CRIU           CRIUConfig        `toml:"criu" envPrefix:"GLKCLI_CRIU_"`
	Hotkeys        HotkeyConfig      `toml:"hotkeys"`
	Interpreters   map[string]string `toml:"interpreters"` // Format tag -> interpreter binary
}

// CRIUConfig holds settings for the external checkpoint tool.
type CRIUConfig struct {
	Binary           string   `toml:"binary" env:"BINARY"`
	ExtraDumpArgs    []string `toml:"extra_dump_args" env:"DUMP_ARGS" envSeparator:" "`
	ExtraRestoreArgs []string `toml:"extra_restore_args" env:"RESTORE_ARGS" envSeparator:" "`
}

// HotkeyConfig maps session actions to key names such as "f2" or "shift+f3".
type HotkeyConfig struct {
	QuickSave   []string `toml:"quick_save"`
	SaveAndExit []string `toml:"save_and_exit"`
	QuickReload []string `toml:"quick_reload"`
	Quit        []string `toml:"quit"`
}

// TerminateGraceDuration returns the parsed grace period (default: 2s).
func (c Config) TerminateGraceDuration() time.Duration {
	if c.TerminateGrace != "" {
		if d, err := time.ParseDuration(c.TerminateGrace); err == nil && d > 0 {
			return d
		}
	}
	return 2 * time.Second
}

// InterpreterFor returns the configured interpreter for a format tag.
func (c Config) InterpreterFor(format string) (string, bool) {
	interp, ok := c.Interpreters[format]
	return interp, ok && interp != ""
}

// Dir returns the path to the .glkcli directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".glkcli"), nil
}

// Path returns the path to the main config file.
func Path() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// DebugLogPath returns the default location of the --debug log.
func DebugLogPath() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "debug.log"), nil
}

// Load loads ~/.glkcli/config.toml and applies GLKCLI_* environment
// overrides. A missing file is created with defaults.
func Load() (Config, error) {
	configPath, err := Path()
	if err != nil {
		return Config{}, err
	}

	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		// Persist the initial config so users have something to edit
		_ = Save(cfg)
	} else if err != nil {
		return Config{}, err
	} else if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", configPath, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.CheckpointDir == "" {
		dir, _ := Dir()
		cfg.CheckpointDir = filepath.Join(dir, "checkpoints")
	}
	if cfg.CRIU.Binary == "" {
		cfg.CRIU.Binary = "criu"
	}
	if cfg.MaxCheckpoints < 0 {
		cfg.MaxCheckpoints = 0
	}

	return cfg, nil
}

// Default returns a default configuration with all defaults set.
func Default() (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		CheckpointDir:  filepath.Join(dir, "checkpoints"),
		LogLevel:       "debug",
		TerminateGrace: "2s",
		CRIU: CRIUConfig{
			Binary:           "criu",
			ExtraDumpArgs:    []string{},
			ExtraRestoreArgs: []string{},
		},
		Hotkeys: HotkeyConfig{
			SaveAndExit: []string{"f1"},
			QuickSave:   []string{"f2"},
			QuickReload: []string{"f3", "shift+f3"},
			Quit:        []string{"f4"},
		},
		Interpreters: map[string]string{},
	}, nil
}

// Save saves the configuration to ~/.glkcli/config.toml.
func Save(cfg Config) error {
	configPath, err := Path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(configPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
