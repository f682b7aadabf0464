// Package cmd provides the CLI commands for glkcli.
package cmd

import (
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wethinkt/go-glkcli/internal/cli"
	"github.com/wethinkt/go-glkcli/internal/config"
	"github.com/wethinkt/go-glkcli/internal/termlog"
)

// global flags
var (
	profileFile *os.File // held open for profiling
	logPath     string
	debug       bool
	verbose     bool
	outputJSON  bool
)

// cfg is loaded before any command runs.
var cfg config.Config

// rootCmd is the root command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "glkcli [GAME]",
	Short: "Play interactive fiction with checkpoint and restore",
	Long: `glkcli runs interactive fiction interpreters behind a terminal proxy
and saves the whole interpreter process with CRIU, so every interpreter
gets the same save and restore, whatever its own save format.

While playing:
  F1        save and exit
  F2        quick save
  F3        quick reload (latest checkpoint, experimental)
  F4        quit without saving

Commands:
  play         Start a game
  restore      Resume a game from a checkpoint
  checkpoints  List and manage checkpoints
  check        Check that CRIU is usable
  status       Show running games

Examples:
  glkcli zork1.z5                          # Play (same as play)
  glkcli play --interp bocfel zork1.z5
  glkcli restore zork1.z5                  # Resume the latest checkpoint
  glkcli checkpoints list zork1.z5`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Start pprof profiling if GLKCLI_PROFILE is set
		if profilePath := os.Getenv("GLKCLI_PROFILE"); profilePath != "" {
			f, err := os.Create(profilePath)
			if err != nil {
				return fmt.Errorf("create profile file: %w", err)
			}
			profileFile = f

			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				profileFile = nil
				return fmt.Errorf("start CPU profile: %w", err)
			}
		}

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return initLogging()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Stop CPU profiling
		if profileFile != nil {
			pprof.StopCPUProfile()
			profileFile.Close()
			profileFile = nil
		}
		return termlog.Log.Close()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runPlay(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogging opens the debug log. --log wins over --debug, which wins
// over log_file from the config.
func initLogging() error {
	path := logPath
	if path == "" && debug {
		p, err := config.DebugLogPath()
		if err != nil {
			return err
		}
		path = p
	}
	if path == "" {
		path = cfg.LogFile
	}
	level := cfg.LogLevel
	if debug || verbose {
		level = "debug"
	}
	return termlog.Init(path, level)
}

// styles picks coloured output for terminals.
func styles() cli.Styles {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return cli.ColorStyles()
	}
	return cli.PlainStyles()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write a debug log to ~/.glkcli/debug.log")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "write debug log to file")

	addPlayFlags(rootCmd)
	addPlayFlags(playCmd)

	restoreCmd.Flags().BoolVar(&skipCheck, "no-check", false, "skip the CRIU availability check")
	restoreCmd.Flags().BoolVarP(&pickCheckpoint, "pick", "p", false, "choose the checkpoint from a list")
	checkpointsBrowseCmd.Flags().BoolVar(&skipCheck, "no-check", false, "skip the CRIU availability check")

	checkpointsListCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	checkpointsDeleteCmd.Flags().BoolVarP(&forceDelete, "force", "f", false, "skip confirmation prompt")
	checkpointsLogCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "number of lines to show")
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsShowCmd)
	checkpointsCmd.AddCommand(checkpointsDeleteCmd)
	checkpointsCmd.AddCommand(checkpointsBrowseCmd)
	checkpointsCmd.AddCommand(checkpointsWatchCmd)
	checkpointsCmd.AddCommand(checkpointsFsckCmd)
	checkpointsCmd.AddCommand(checkpointsLogCmd)

	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output as JSON")
	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "number of lines to show")
	logsCmd.Flags().BoolVarP(&logFollow, "follow", "f", false, "follow log output")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(versionCmd)
}
