package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/memscope/internal/osdetect"
)

var detectVerbose bool

var detectCmd = &cobra.Command{
	Use:   "detect-os <memory-image>",
	Short: "Detect the operating system of a memory image",
	Long: `Classify a memory image as windows, linux or macos from signatures in its
first kilobyte, falling back to hints in the file name.

  memscope detect-os win10.raw
  memscope detect-os dump.lime --verbose    # Show how the OS was decided`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, source := osdetect.New(log).DetectWithSource(args[0])
		if detectVerbose {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (from %s)\n", kind, source)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), kind)
		return nil
	},
}

func init() {
	detectCmd.Flags().BoolVarP(&detectVerbose, "verbose", "v", false, "Show whether the header or the file name decided")
	rootCmd.AddCommand(detectCmd)
}
