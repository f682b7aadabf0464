package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wethinkt/go-glkcli/internal/cli"
	"github.com/wethinkt/go-glkcli/internal/launcher"
)

var pickCheckpoint bool

var restoreCmd = &cobra.Command{
	Use:   "restore GAME [CHECKPOINT]",
	Short: "Resume a game from a checkpoint",
	Long: `Resume a game from a checkpoint. Without CHECKPOINT the latest one
is used, or with --pick one is chosen from a list. GAME is the story file
or its game id; CHECKPOINT is an id, an id prefix or a checkpoint name.

Examples:
  glkcli restore zork1.z5
  glkcli restore zork1.z5 --pick
  glkcli restore zork1.z5 3f2a9c1d
  glkcli restore zork1_5c1e07aa "West of House"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	l, err := launcher.New(cfg, launcher.Options{})
	if err != nil {
		return err
	}
	gameID, err := cli.ResolveGameID(l.Store(), args[0])
	if err != nil {
		return err
	}

	id := ""
	switch {
	case len(args) == 2:
		cps, err := l.Store().List(gameID)
		if err != nil {
			return err
		}
		cp, err := cli.ResolveCheckpoint(cps, args[1])
		if err != nil {
			return err
		}
		id = cp.ID
	case pickCheckpoint:
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("choosing a checkpoint needs an interactive terminal; pass CHECKPOINT instead")
		}
		cp, err := cli.PickCheckpointInteractive(l.Store(), gameID)
		if errors.Is(err, cli.ErrNoSelection) {
			return nil
		}
		if err != nil {
			return err
		}
		id = cp.ID
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if !skipCheck {
		warnUncheckpointed(ctx, l)
	}
	outcome, err := l.Resume(ctx, gameID, id)
	return finish(args[0], outcome, err)
}
