package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/memscope/internal/logger"
)

var (
	journalKind    string
	journalFailed  bool
	journalLast    int
	journalSummary bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "View and filter the analysis journal",
	Long: `View the memscope analysis journal with filtering and summary options.

Examples:
  memscope journal                        # Show all entries
  memscope journal --last 20              # Show last 20 entries
  memscope journal --kind experiment      # Show only experiment runs
  memscope journal --failed               # Show only failed runs
  memscope journal --summary              # Show summary stats`,
	Args: cobra.NoArgs,
	RunE: journalCommand,
}

func init() {
	journalCmd.Flags().StringVar(&journalKind, "kind", "", "Filter by kind (analysis, experiment, validation)")
	journalCmd.Flags().BoolVar(&journalFailed, "failed", false, "Show only failed runs")
	journalCmd.Flags().IntVar(&journalLast, "last", 0, "Show last N entries")
	journalCmd.Flags().BoolVar(&journalSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(journalCmd)
}

func journalCommand(cmd *cobra.Command, args []string) error {
	entries, err := logger.ReadJournal(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No journal entries found.")
		return nil
	}

	filtered := filterEntries(entries, journalKind, journalFailed)
	if journalLast > 0 && journalLast < len(filtered) {
		filtered = filtered[len(filtered)-journalLast:]
	}

	if journalSummary {
		printJournalSummary(out, entries)
		return nil
	}
	printEntries(out, filtered)
	return nil
}

func filterEntries(entries []logger.JournalEntry, kind string, failedOnly bool) []logger.JournalEntry {
	if kind == "" && !failedOnly {
		return entries
	}
	var filtered []logger.JournalEntry
	for _, e := range entries {
		if kind != "" && !strings.EqualFold(e.Kind, kind) {
			continue
		}
		if failedOnly && !e.Failed() {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEntries(w io.Writer, entries []logger.JournalEntry) {
	for _, e := range entries {
		icon := colorize(w, colorGreen, "✔")
		if e.Failed() {
			icon = colorize(w, colorRed, "✘")
		}
		target := e.ArtifactPath
		if target == "" {
			target = strings.Join(e.Notes, " ")
		}
		fmt.Fprintf(w, "%s %s %-10s %s\n", icon, formatTimestamp(e.Timestamp), e.Kind, target)

		if e.OSType != "" || e.Engine != "" {
			fmt.Fprintf(w, "     OS: %s  Engine: %s  Duration: %.2fs\n", e.OSType, orDash(e.Engine), e.Duration)
		}
		if len(e.Attempts) > 0 {
			fmt.Fprintf(w, "     Attempts: %s\n", strings.Join(e.Attempts, ", "))
		}
		if len(e.Plugins) > 0 {
			fmt.Fprintf(w, "     Plugins: %s\n", strings.Join(e.Plugins, ", "))
		}
		if e.ThreatLevel != "" {
			fmt.Fprintf(w, "     Threat level: %s\n", colorize(w, levelColor(e.ThreatLevel), e.ThreatLevel))
		}
		if e.Error != "" {
			fmt.Fprintf(w, "     Error: %s\n", e.Error)
		}
		fmt.Fprintf(w, "     Run: %s\n\n", e.RunID)
	}
}

func printJournalSummary(w io.Writer, all []logger.JournalEntry) {
	kinds := map[string]int{}
	engines := map[string]int{}
	threats := map[string]int{}
	failed := 0
	for _, e := range all {
		kinds[e.Kind]++
		if e.Engine != "" {
			engines[e.Engine]++
		}
		if e.ThreatLevel != "" {
			threats[e.ThreatLevel]++
		}
		if e.Failed() {
			failed++
		}
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  memscope Journal Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Total runs:      %d\n", len(all))
	fmt.Fprintf(w, "  Analyses:        %d\n", kinds[logger.KindAnalysis])
	fmt.Fprintf(w, "  Experiments:     %d\n", kinds[logger.KindExperiment])
	fmt.Fprintf(w, "  Validations:     %d\n", kinds[logger.KindValidation])
	fmt.Fprintf(w, "  Failed:          %d\n", failed)
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  First run:       %s\n", formatTimestamp(all[0].Timestamp))
	fmt.Fprintf(w, "  Last run:        %s\n", formatTimestamp(all[len(all)-1].Timestamp))

	if len(engines) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Engines used:")
		for _, name := range []string{"volatility", "rekall", "memprocfs"} {
			if n := engines[name]; n > 0 {
				fmt.Fprintf(w, "    %-12s %d\n", name, n)
			}
		}
	}
	if len(threats) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Threat levels:")
		for _, level := range []string{"high", "medium", "low"} {
			if n := threats[level]; n > 0 {
				fmt.Fprintf(w, "    %-12s %d\n", level, n)
			}
		}
	}

	var failures []logger.JournalEntry
	for _, e := range all {
		if e.Failed() {
			failures = append(failures, e)
		}
	}
	if len(failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Recent failures:")
		limit := len(failures)
		if limit > 10 {
			limit = 10
		}
		for _, e := range failures[len(failures)-limit:] {
			fmt.Fprintf(w, "    %s %s: %s\n", formatTimestamp(e.Timestamp), e.Kind, e.Error)
		}
	}
	fmt.Fprintln(w)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
