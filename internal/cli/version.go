package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/memscope/internal/model"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print memscope version",
	// skip config loading
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("memscope %s\n", Version)
		fmt.Printf("  Framework: %s\n", model.FrameworkVersion)
		fmt.Printf("  Commit:    %s\n", GitCommit)
		fmt.Printf("  Built:     %s\n", BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
