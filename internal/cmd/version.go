package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wethinkt/go-glkcli/internal/version"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.GetInfo("glkcli")
		if versionJSON {
			_ = json.NewEncoder(os.Stdout).Encode(info)
			return
		}
		fmt.Println(version.String("glkcli"))
	},
}
