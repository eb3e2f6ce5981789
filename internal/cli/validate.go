package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gzhole/memscope/internal/framework"
)

var validateFormat string

var validateCmd = &cobra.Command{
	Use:   "validate <platform=image>...",
	Short: "Check that analysis works for one image per platform",
	Long: `Analyze one image per platform, with and without plugins, and report
whether OS detection, extraction and the plugins worked for each.

  memscope validate windows=win10.raw linux=ubuntu.lime macos=mac.raw`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().StringVar(&validateFormat, "format", "table", "Output format: json, yaml, table")
	rootCmd.AddCommand(validateCmd)
}

func validateCommand(cmd *cobra.Command, args []string) error {
	dumps, err := parsePairs(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := openSession()
	defer s.Close()

	report := s.orch.ValidateCrossPlatform(ctx, dumps)
	out := cmd.OutOrStdout()
	if validateFormat == formatTable || validateFormat == formatSummary {
		platforms := make([]string, 0, len(report.Platforms))
		for p := range report.Platforms {
			platforms = append(platforms, p)
		}
		sort.Strings(platforms)

		table := newTable(out, []string{"Platform", "Status", "Detected OS", "Plugins", "Processes", "Connections", "Error"})
		for _, p := range platforms {
			v := report.Platforms[p]
			status := colorize(out, colorGreen, v.Status)
			if v.Status != framework.StatusSuccess {
				status = colorize(out, colorRed, v.Status)
			}
			table.Append([]string{
				p,
				status,
				string(v.DetectedOS),
				yesNo(v.PluginsWorking),
				strconv.Itoa(v.ProcessesFound),
				strconv.Itoa(v.ConnectionsFound),
				v.Error,
			})
		}
		table.Render()
	} else if err := emit(out, validateFormat, report); err != nil {
		return err
	}

	if !report.OverallSuccess {
		return fmt.Errorf("validation failed for one or more platforms")
	}
	return nil
}
