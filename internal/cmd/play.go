package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/game"
	"github.com/wethinkt/go-glkcli/internal/launcher"
	"github.com/wethinkt/go-glkcli/internal/session"
)

// Play command flags
var (
	playInterp string
	playFormat string
	skipCheck  bool
)

var playCmd = &cobra.Command{
	Use:   "play GAME [-- INTERPRETER-ARGS...]",
	Short: "Start a game",
	Long: `Start a game from the beginning behind the checkpoint proxy.

The interpreter is taken from --interp, or from the [interpreters] table
in ~/.glkcli/config.toml using the format tag (--format, or the story
file extension). Arguments after -- are passed to the interpreter before
the story file.

Examples:
  glkcli play zork1.z5
  glkcli play --interp /usr/games/bocfel zork1.z5
  glkcli play --format glulx anchor.gblorb -- -q`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlay,
}

func addPlayFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&playInterp, "interp", "i", "", "interpreter binary")
	cmd.Flags().StringVar(&playFormat, "format", "", "format tag (default: story file extension)")
	cmd.Flags().BoolVar(&skipCheck, "no-check", false, "skip the CRIU availability check")
}

func runPlay(cmd *cobra.Command, args []string) error {
	path, extra := args[0], args[1:]

	format := playFormat
	if format == "" {
		format = game.FormatFromPath(path)
	}
	interp := playInterp
	if interp == "" {
		var ok bool
		if interp, ok = cfg.InterpreterFor(format); !ok {
			return fmt.Errorf("no interpreter configured for format %q\n\nUse --interp, or add it to the [interpreters] table in ~/.glkcli/config.toml", format)
		}
	}

	g, err := game.New(format, path, interp, extra...)
	if err != nil {
		return err
	}

	l, err := launcher.New(cfg, launcher.Options{})
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if !skipCheck {
		warnUncheckpointed(ctx, l)
	}
	outcome, err := l.Play(ctx, g)
	return finish(g.Path, outcome, err)
}

// signalContext is cancelled when the launcher is asked to stop. Ctrl+C
// reaches the interpreter as a keystroke while playing, not as a signal.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGHUP)
}

// warnUncheckpointed tells the player when hotkey saves will not work and
// waits for Enter on a terminal, so the warning is not lost behind the game.
func warnUncheckpointed(ctx context.Context, l *launcher.Launcher) {
	err := l.Check(ctx)
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Warning: checkpoints are not available.")
	fmt.Fprintln(os.Stderr, apperrors.UserMessage(err))
	fmt.Fprintln(os.Stderr, "\nThe game will run, but F1/F2 saves and F3 reload will fail.")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Press Enter to continue or Ctrl+C to exit...")
		bufio.NewReader(os.Stdin).ReadString('\n')
	}
}

func finish(path string, outcome session.Outcome, err error) error {
	if err != nil {
		return err
	}
	switch outcome {
	case session.OutcomeSavedAndExited:
		fmt.Printf("Saved. Resume with: glkcli restore %s\n", path)
	case session.OutcomeQuit:
		if verbose {
			fmt.Println("Quit without saving.")
		}
	}
	return nil
}
