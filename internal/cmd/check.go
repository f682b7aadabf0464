package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wethinkt/go-glkcli/internal/launcher"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that CRIU is usable",
	Long: `Run 'criu check' the way glkcli will run dumps, and explain how to
fix missing capabilities.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := launcher.New(cfg, launcher.Options{})
		if err != nil {
			return err
		}
		if err := l.Check(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(styles().OK.Render("CRIU is available."))
		return nil
	},
}
