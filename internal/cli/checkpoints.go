// Package cli provides CLI output formatting utilities.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wethinkt/go-glkcli/internal/checkpoint"
	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/game"
	"github.com/wethinkt/go-glkcli/internal/playtime"
)

// CheckpointsFormatter writes checkpoint listings.
type CheckpointsFormatter struct {
	w      io.Writer
	styles Styles
	now    func() time.Time
}

// NewCheckpointsFormatter creates a formatter writing to w.
func NewCheckpointsFormatter(w io.Writer, styles Styles) *CheckpointsFormatter {
	return &CheckpointsFormatter{w: w, styles: styles, now: time.Now}
}

// checkpointJSON is the --json shape of one checkpoint.
type checkpointJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Playtime  string    `json:"playtime"`
	Seconds   float64   `json:"playtime_seconds"`
	SizeBytes int64     `json:"size_bytes"`
	ImageDir  string    `json:"image_dir"`
	Game      string    `json:"game"`
}

// FormatTable writes one aligned row per checkpoint, oldest first.
func (f *CheckpointsFormatter) FormatTable(cps []checkpoint.Checkpoint) error {
	if len(cps) == 0 {
		fmt.Fprintln(f.w, f.styles.Muted.Render("No checkpoints."))
		return nil
	}
	w := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		f.styles.Header.Render("ID"),
		f.styles.Header.Render("NAME"),
		f.styles.Header.Render("PLAYTIME"),
		f.styles.Header.Render("SIZE"),
		f.styles.Header.Render("CREATED"))
	for _, cp := range cps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ShortID(cp.ID),
			f.styles.Name.Render(cp.Name),
			playtime.Format(cp.Playtime()),
			humanize.IBytes(uint64(cp.SizeBytes)),
			f.styles.Muted.Render(humanize.RelTime(cp.CreatedAt, f.now(), "ago", "from now")))
	}
	return w.Flush()
}

// FormatJSON writes the checkpoints as a JSON array.
func (f *CheckpointsFormatter) FormatJSON(cps []checkpoint.Checkpoint) error {
	out := make([]checkpointJSON, 0, len(cps))
	for _, cp := range cps {
		out = append(out, checkpointJSON{
			ID:        cp.ID,
			Name:      cp.Name,
			CreatedAt: cp.CreatedAt,
			Playtime:  playtime.Format(cp.Playtime()),
			Seconds:   cp.PlaytimeSeconds,
			SizeBytes: cp.SizeBytes,
			ImageDir:  cp.ImageDir,
			Game:      cp.GamePath,
		})
	}
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// FormatDetail writes everything known about one checkpoint.
func (f *CheckpointsFormatter) FormatDetail(cp checkpoint.Checkpoint) {
	fmt.Fprintf(f.w, "Checkpoint: %s\n", f.styles.Name.Render(cp.Name))
	fmt.Fprintf(f.w, "ID:         %s\n", cp.ID)
	fmt.Fprintf(f.w, "Game:       %s\n", cp.GamePath)
	fmt.Fprintf(f.w, "Created:    %s\n", cp.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(f.w, "Playtime:   %s\n", playtime.Format(cp.Playtime()))
	fmt.Fprintf(f.w, "Size:       %s\n", humanize.IBytes(uint64(cp.SizeBytes)))
}

// ShortID abbreviates a checkpoint id for tables.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ResolveCheckpoint finds a checkpoint by full id, id prefix or exact name.
func ResolveCheckpoint(cps []checkpoint.Checkpoint, query string) (checkpoint.Checkpoint, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return checkpoint.Checkpoint{}, fmt.Errorf("checkpoint id is required")
	}

	var matches []checkpoint.Checkpoint
	for _, cp := range cps {
		if cp.ID == query {
			return cp, nil
		}
		if strings.HasPrefix(cp.ID, query) || cp.Name == query {
			matches = append(matches, cp)
		}
	}

	switch len(matches) {
	case 0:
		return checkpoint.Checkpoint{}, apperrors.WithMetadata(apperrors.CodeNotFound, "no such checkpoint",
			map[string]string{"query": query})
	case 1:
		return matches[0], nil
	default:
		var b strings.Builder
		b.WriteString("checkpoint query is ambiguous, matched:\n")
		for _, cp := range matches {
			fmt.Fprintf(&b, "  - %s  %s\n", ShortID(cp.ID), cp.Name)
		}
		return checkpoint.Checkpoint{}, fmt.Errorf("%s", strings.TrimSpace(b.String()))
	}
}

// ResolveGameID maps a story file path, a game id or a unique game id
// prefix to the id used by the store.
func ResolveGameID(store *checkpoint.Store, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return game.IDFor(arg), nil
	}

	games, err := store.Games()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, id := range games {
		if id == arg {
			return id, nil
		}
		if strings.HasPrefix(id, arg) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", apperrors.WithMetadata(apperrors.CodeNotFound, "no checkpoints for game",
			map[string]string{"game": arg})
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("game %q is ambiguous: %s", arg, strings.Join(matches, ", "))
	}
}
