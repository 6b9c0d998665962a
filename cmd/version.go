package cmd

import (
	"fmt"

	"github.com/groupfi/treasury-engine/internal/version"
	"github.com/spf13/cobra"
)

var runVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the treasury engine",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("treasury-engine %s (commit %s)\n", version.GetVersion(), version.GetCommit())
	},
}
