package cmd

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wethinkt/go-glkcli/internal/cli"
	"github.com/wethinkt/go-glkcli/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show running games",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := config.ListSessions()
		if err != nil {
			return err
		}
		if outputJSON {
			if records == nil {
				records = []config.SessionRecord{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		return cli.FormatSessions(os.Stdout, styles(), records, time.Now())
	},
}
