package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/memscope/internal/model"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show engines, plugins and configuration",
	Long: `Show which forensic engines are installed, the fallback chain per
operating system, the available plugins, and where configuration and the
journal live.

  memscope info`,
	Args: cobra.NoArgs,
	RunE: infoCommand,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func infoCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	s := openSession()
	defer s.Close()

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out, "  memscope Info")
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintf(out, "  Version:   %s (framework %s)\n", Version, model.FrameworkVersion)
	fmt.Fprintf(out, "  Config:    %s\n", cfg.Path)
	fmt.Fprintf(out, "  Journal:   %s\n", cfg.JournalPath)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Engines ───────────────────────────────────────────")
	for _, t := range s.orch.AvailableTools(context.Background()) {
		mark := colorize(out, colorRed, "not found")
		if t.Available {
			mark = colorize(out, colorGreen, "available")
		}
		fmt.Fprintf(out, "  %-12s %s\n", t.Name, mark)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Fallback chains ───────────────────────────────────")
	for _, profile := range s.orch.SupportedOS() {
		fmt.Fprintf(out, "  %-12s %s\n", profile, strings.Join(s.orch.Chain(profile), " → "))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Plugins ───────────────────────────────────────────")
	for _, name := range s.orch.AvailablePlugins() {
		fmt.Fprintf(out, "  %s\n", name)
	}
	fmt.Fprintln(out)
	return nil
}
