// Package checkpoint stores process snapshots per game and drives the
// suspend, dump and persist sequence that produces them.
package checkpoint

import (
	"fmt"
	"math"
	"time"

	"github.com/wethinkt/go-glkcli/internal/game"
	"github.com/wethinkt/go-glkcli/internal/ptyproxy"
)

// Mode selects what happens to the game after a successful checkpoint.
type Mode int

const (
	QuickSave   Mode = iota // keep playing
	SaveAndExit             // terminate the interpreter
)

func (m Mode) String() string {
	if m == SaveAndExit {
		return "save_and_exit"
	}
	return "quick_save"
}

// Checkpoint is one stored snapshot. It is immutable once appended.
type Checkpoint struct {
	ID              string            `json:"id" yaml:"id"`
	GameID          string            `json:"game_id" yaml:"game_id"`
	Name            string            `json:"name" yaml:"name"`
	CreatedAt       time.Time         `json:"created_at" yaml:"created_at"`
	PlaytimeSeconds float64           `json:"playtime_seconds" yaml:"playtime_seconds"`
	ImageDir        string            `json:"image_dir" yaml:"image_dir"`
	SizeBytes       int64             `json:"size_bytes" yaml:"size_bytes"`
	PID             int               `json:"pid" yaml:"pid"`
	Format          string            `json:"format" yaml:"format"`
	GamePath        string            `json:"game_path" yaml:"game_path"`
	Interpreter     string            `json:"interpreter" yaml:"interpreter"`
	InterpreterArgs []string          `json:"interpreter_args,omitempty" yaml:"interpreter_args,omitempty"`
	Terminal        ptyproxy.Terminal `json:"terminal" yaml:"terminal"`
}

// Playtime returns the total playtime captured with the checkpoint.
func (c Checkpoint) Playtime() time.Duration {
	return time.Duration(math.Round(c.PlaytimeSeconds * float64(time.Second)))
}

// SetPlaytime stores d with millisecond precision.
func (c *Checkpoint) SetPlaytime(d time.Duration) {
	c.PlaytimeSeconds = float64(d.Round(time.Millisecond)) / float64(time.Second)
}

// Game rebuilds the game triple the checkpoint was taken from.
func (c Checkpoint) Game() game.Game {
	return game.Game{
		Format:      c.Format,
		Path:        c.GamePath,
		Interpreter: c.Interpreter,
		Args:        append([]string(nil), c.InterpreterArgs...),
	}
}

// DefaultName is used when the player does not name a checkpoint.
func DefaultName(mode Mode, at time.Time) string {
	prefix := "Quick save"
	if mode == SaveAndExit {
		prefix = "Save and exit"
	}
	return fmt.Sprintf("%s %s", prefix, at.Local().Format("2006-01-02 15:04:05"))
}

// Index is the per-game list of checkpoints, oldest first.
type Index struct {
	Version     int          `json:"version"`
	GameID      string       `json:"game_id"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// Metadata is written next to the images as checkpoint.yaml.
type Metadata struct {
	Version    int          `yaml:"version"`
	Checkpoint Checkpoint   `yaml:"checkpoint"`
	Files      []FileDigest `yaml:"files"`
}
