// glkcli plays interactive fiction with whole-process checkpoints.
package main

import (
	"fmt"
	"os"

	"github.com/wethinkt/go-glkcli/internal/cmd"
	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", apperrors.UserMessage(err))
		os.Exit(1)
	}
}
