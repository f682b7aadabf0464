package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wethinkt/go-glkcli/internal/checkpoint"
	"github.com/wethinkt/go-glkcli/internal/tui"
)

// DeleteOptions configures checkpoint deletion behavior.
type DeleteOptions struct {
	Force  bool      // Skip confirmation prompt
	Stdin  io.Reader // Confirmation answers (defaults to os.Stdin)
	Stdout io.Writer // For writing output (defaults to os.Stdout)
}

// CheckpointDeleter handles checkpoint deletion with confirmation.
type CheckpointDeleter struct {
	store       *checkpoint.Store
	opts        DeleteOptions
	interactive bool // confirm with the dialog instead of a [y/N] line
}

// NewCheckpointDeleter creates a new checkpoint deleter.
func NewCheckpointDeleter(store *checkpoint.Store, opts DeleteOptions) *CheckpointDeleter {
	interactive := false
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
		interactive = term.IsTerminal(int(os.Stdin.Fd()))
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	return &CheckpointDeleter{store: store, opts: opts, interactive: interactive}
}

// Delete removes one checkpoint of gameID after confirmation. query can
// be a checkpoint id, an id prefix or a checkpoint name.
func (d *CheckpointDeleter) Delete(gameID, query string) error {
	cps, err := d.store.List(gameID)
	if err != nil {
		return err
	}
	cp, err := ResolveCheckpoint(cps, query)
	if err != nil {
		return fmt.Errorf("%w\n\nUse 'glkcli checkpoints list %s' to see available checkpoints", err, gameID)
	}

	if !d.opts.Force {
		NewCheckpointsFormatter(d.opts.Stdout, PlainStyles()).FormatDetail(cp)
		fmt.Fprintln(d.opts.Stdout)
		if !d.confirm("Permanently delete this checkpoint?") {
			fmt.Fprintf(d.opts.Stdout, "Cancelled.\n")
			return nil
		}
	}

	if err := d.store.Delete(gameID, cp.ID); err != nil {
		return err
	}
	fmt.Fprintf(d.opts.Stdout, "Deleted %s (%s)\n", cp.Name, ShortID(cp.ID))
	return nil
}

func (d *CheckpointDeleter) confirm(prompt string) bool {
	if d.interactive {
		result, err := tui.Confirm(tui.ConfirmOptions{
			Prompt:      prompt,
			Affirmative: "Delete",
			Negative:    "Cancel",
			Input:       d.opts.Stdin,
			Output:      d.opts.Stdout,
		})
		return err == nil && result == tui.ConfirmYes
	}

	fmt.Fprint(d.opts.Stdout, prompt+" [y/N] ")
	line, err := bufio.NewReader(d.opts.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
