package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wethinkt/go-glkcli/internal/checkpoint"
	"github.com/wethinkt/go-glkcli/internal/cli"
	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
)

// Checkpoints command flags
var (
	forceDelete bool
	logLines    int
)

var checkpointsCmd = &cobra.Command{
	Use:     "checkpoints",
	Aliases: []string{"cp"},
	Short:   "List and manage checkpoints",
	Long: `List and manage the checkpoints stored for each game.

GAME is the story file or its game id (a unique prefix is enough).
CHECKPOINT is an id, an id prefix or a checkpoint name.

Examples:
  glkcli checkpoints list                   # All games
  glkcli checkpoints list zork1.z5
  glkcli checkpoints show zork1.z5 3f2a
  glkcli checkpoints browse zork1.z5
  glkcli checkpoints delete zork1.z5 3f2a
  glkcli checkpoints fsck`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheckpointsList(cmd, args)
	},
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list [GAME]",
	Short: "List checkpoints, oldest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckpointsList,
}

var checkpointsShowCmd = &cobra.Command{
	Use:   "show GAME CHECKPOINT",
	Short: "Show one checkpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		_, cp, err := resolveCheckpointArgs(store, args[0], args[1])
		if err != nil {
			return err
		}
		f := cli.NewCheckpointsFormatter(os.Stdout, styles())
		f.FormatDetail(cp)
		if err := store.Verify(cp); err != nil {
			fmt.Printf("Status:     %s\n", styles().Bad.Render(apperrors.CodeOf(err).Summary()))
			return nil
		}
		fmt.Printf("Status:     %s\n", styles().OK.Render("ok"))
		return nil
	},
}

var checkpointsDeleteCmd = &cobra.Command{
	Use:   "delete GAME CHECKPOINT",
	Short: "Delete a checkpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		gameID, err := cli.ResolveGameID(store, args[0])
		if err != nil {
			return err
		}
		return cli.NewCheckpointDeleter(store, cli.DeleteOptions{Force: forceDelete}).Delete(gameID, args[1])
	},
}

var checkpointsBrowseCmd = &cobra.Command{
	Use:   "browse GAME",
	Short: "Pick a checkpoint from a list and restore it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pickCheckpoint = true
		return runRestore(cmd, args)
	},
}

var checkpointsWatchCmd = &cobra.Command{
	Use:   "watch GAME",
	Short: "Reprint the checkpoint list whenever it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		gameID, err := cli.ResolveGameID(store, args[0])
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		updates, err := store.Watch(ctx, gameID)
		if err != nil {
			return err
		}
		f := cli.NewCheckpointsFormatter(os.Stdout, styles())
		for cps := range updates {
			fmt.Println(styles().Header.Render(gameID))
			if err := f.FormatTable(cps); err != nil {
				return err
			}
			fmt.Println()
		}
		return nil
	},
}

var checkpointsFsckCmd = &cobra.Command{
	Use:   "fsck [GAME]",
	Short: "Clean up interrupted checkpoints and verify images",
	Long: `Remove scratch directories and unindexed image directories left by
interrupted checkpoints, drop index entries whose images are gone, and
verify every remaining checkpoint against its file manifest.

Corrupt checkpoints are reported but not deleted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		gameIDs, err := gameArgs(store, args)
		if err != nil {
			return err
		}
		res, err := cli.Fsck(os.Stdout, store, styles(), gameIDs)
		if err != nil {
			return err
		}
		if res.Corrupt > 0 {
			return fmt.Errorf("%d corrupt checkpoint(s)", res.Corrupt)
		}
		return nil
	},
}

var checkpointsLogCmd = &cobra.Command{
	Use:   "log GAME CHECKPOINT",
	Short: "Show the CRIU dump log of a checkpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cp, err := resolveCheckpointArgs(openStore(), args[0], args[1])
		if err != nil {
			return err
		}
		return tailLogFile(os.Stdout, filepath.Join(cp.ImageDir, "dump.log"), logLines)
	},
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	store := openStore()
	gameIDs, err := gameArgs(store, args)
	if err != nil {
		return err
	}

	f := cli.NewCheckpointsFormatter(os.Stdout, styles())
	if outputJSON {
		var all []checkpoint.Checkpoint
		for _, id := range gameIDs {
			cps, err := store.List(id)
			if err != nil {
				return err
			}
			all = append(all, cps...)
		}
		return f.FormatJSON(all)
	}

	if len(gameIDs) == 0 {
		fmt.Println(styles().Muted.Render("No checkpoints."))
		return nil
	}
	for i, id := range gameIDs {
		cps, err := store.List(id)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Println()
		}
		if len(args) == 0 {
			fmt.Println(styles().Header.Render(id))
		}
		if err := f.FormatTable(cps); err != nil {
			return err
		}
	}
	return nil
}

func openStore() *checkpoint.Store {
	return checkpoint.NewStore(cfg.CheckpointDir)
}

// gameArgs resolves an optional GAME argument, defaulting to every game
// with checkpoints.
func gameArgs(store *checkpoint.Store, args []string) ([]string, error) {
	if len(args) == 0 {
		return store.Games()
	}
	id, err := cli.ResolveGameID(store, args[0])
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func resolveCheckpointArgs(store *checkpoint.Store, gameArg, query string) (string, checkpoint.Checkpoint, error) {
	gameID, err := cli.ResolveGameID(store, gameArg)
	if err != nil {
		return "", checkpoint.Checkpoint{}, err
	}
	cps, err := store.List(gameID)
	if err != nil {
		return "", checkpoint.Checkpoint{}, err
	}
	cp, err := cli.ResolveCheckpoint(cps, query)
	return gameID, cp, err
}
