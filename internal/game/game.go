// Package game describes the game a session runs: an opaque format tag,
// the story file and the interpreter that plays it.
package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Game is immutable once created.
type Game struct {
	Format      string   `json:"format"`
	Path        string   `json:"path"`
	Interpreter string   `json:"interpreter"`
	Args        []string `json:"args,omitempty"` // extra interpreter flags, placed before Path
}

// New resolves path to an absolute story file and validates the triple.
func New(format, path, interpreter string, args ...string) (Game, error) {
	if path == "" {
		return Game{}, fmt.Errorf("game path is required")
	}
	if interpreter == "" {
		return Game{}, fmt.Errorf("no interpreter for %s", filepath.Base(path))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Game{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Game{}, fmt.Errorf("game file: %w", err)
	}
	if info.IsDir() {
		return Game{}, fmt.Errorf("game file %s is a directory", abs)
	}
	if format == "" {
		format = FormatFromPath(abs)
	}
	return Game{
		Format:      format,
		Path:        abs,
		Interpreter: interpreter,
		Args:        append([]string(nil), args...),
	}, nil
}

// FormatFromPath returns the lower-cased file extension without the dot,
// used as the default format tag.
func FormatFromPath(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Title is the story file name without its extension.
func (g Game) Title() string {
	base := filepath.Base(g.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ID is the checkpoint store key for the game: the sanitized title plus a
// short hash of the absolute path, so two games with the same file name in
// different directories never share checkpoints.
func (g Game) ID() string {
	return IDFor(g.Path)
}

// IDFor computes the store key for a story file path.
func IDFor(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	base := filepath.Base(abs)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%08x", Sanitize(title), uint32(xxhash.Sum64String(abs)))
}

// Command returns the interpreter invocation for the game.
func (g Game) Command() (string, []string) {
	args := make([]string, 0, len(g.Args)+1)
	args = append(args, g.Args...)
	args = append(args, g.Path)
	return g.Interpreter, args
}

// Sanitize keeps ASCII letters, digits, '-' and '_', replaces everything
// else with '_' and trims leading/trailing underscores.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "game"
	}
	return s
}
