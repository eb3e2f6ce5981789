package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/plugin"
	"github.com/gzhole/memscope/internal/sink"
)

// Output formats accepted by --format.
const (
	formatJSON    = "json"
	formatYAML    = "yaml"
	formatTable   = "table"
	formatSummary = "summary"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// colorize wraps s in an ANSI color when w is a terminal.
func colorize(w io.Writer, color, s string) string {
	if !isTerminal(w) {
		return s
	}
	return color + s + colorReset
}

func levelColor(level string) string {
	switch strings.ToLower(level) {
	case "high":
		return colorRed
	case "medium":
		return colorYellow
	}
	return colorGreen
}

// resolveOutput places relative output paths under the configured output
// directory.
func resolveOutput(path string) string {
	if path == "" || filepath.IsAbs(path) || cfg.Output.Dir == "" || cfg.Output.Dir == "." {
		return path
	}
	return filepath.Join(cfg.Output.Dir, path)
}

// emit writes a document in the requested format to w. table and summary
// fall back to JSON for documents they cannot render.
func emit(w io.Writer, format string, doc interface{}) error {
	switch format {
	case formatTable:
		if res, ok := doc.(*model.AnalysisResult); ok {
			renderTables(w, res)
			return nil
		}
	case formatSummary:
		if res, ok := doc.(*model.AnalysisResult); ok {
			renderSummary(w, res)
			return nil
		}
	case formatYAML:
		data, err := sink.Encode(doc, sink.FormatYAML)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	data, err := sink.Encode(doc, sink.FormatJSON)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetColumnSeparator(" ")
	table.SetCenterSeparator("-")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func renderTables(w io.Writer, res *model.AnalysisResult) {
	fmt.Fprintf(w, "Processes (%d)\n", len(res.Processes))
	table := newTable(w, []string{"PID", "PPID", "Name", "Threads", "Suspicious", "Command Line"})
	for _, p := range res.Processes {
		table.Append([]string{
			strconv.Itoa(p.PID),
			strconv.Itoa(p.ParentPID),
			p.Name,
			strconv.Itoa(p.Threads),
			yesNo(p.Suspicious),
			p.CommandLine,
		})
	}
	table.Render()

	fmt.Fprintf(w, "\nNetwork Connections (%d)\n", len(res.NetworkConnections))
	table = newTable(w, []string{"Proto", "Local", "Remote", "State", "PID", "Process"})
	for _, c := range res.NetworkConnections {
		table.Append([]string{
			c.Protocol,
			fmt.Sprintf("%s:%d", c.LocalAddress, c.LocalPort),
			fmt.Sprintf("%s:%d", c.RemoteAddress, c.RemotePort),
			c.State,
			strconv.Itoa(c.PID),
			c.ProcessName,
		})
	}
	table.Render()

	if len(res.KernelModules) > 0 {
		fmt.Fprintf(w, "\nKernel Modules (%d)\n", len(res.KernelModules))
		table = newTable(w, []string{"Name", "Base", "Size", "Path", "Suspicious"})
		for _, m := range res.KernelModules {
			table.Append([]string{m.Name, m.BaseAddress, strconv.Itoa(m.Size), m.Path, yesNo(m.Suspicious)})
		}
		table.Render()
	}

	if len(res.Artifacts) > 0 {
		fmt.Fprintf(w, "\nArtifacts (%d)\n", len(res.Artifacts))
		table = newTable(w, []string{"Type", "Severity", "Confidence", "Location", "Description"})
		for _, a := range res.Artifacts {
			table.Append([]string{
				a.Type,
				colorize(w, levelColor(a.Severity), a.Severity),
				strconv.FormatFloat(a.Confidence, 'f', 2, 64),
				a.Location,
				a.Description,
			})
		}
		table.Render()
	}
	fmt.Fprintln(w)
	renderSummary(w, res)
}

func renderSummary(w io.Writer, res *model.AnalysisResult) {
	st := res.Statistics
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  memscope Analysis Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  OS:                  %s\n", res.Metadata.OSType)
	if res.Metadata.Engine != "" {
		fmt.Fprintf(w, "  Engine:              %s\n", res.Metadata.Engine)
	}
	fmt.Fprintf(w, "  Processes:           %d (%d suspicious)\n", st.TotalProcesses, st.SuspiciousProcesses)
	fmt.Fprintf(w, "  Connections:         %d (%d active)\n", st.TotalNetworkConnections, st.ActiveConnections)
	fmt.Fprintf(w, "  Kernel modules:      %d (%d suspicious)\n", st.TotalKernelModules, st.SuspiciousModules)
	fmt.Fprintf(w, "  Memory regions:      %d (%d suspicious)\n", st.TotalMemoryRegions, st.SuspiciousRegions)
	fmt.Fprintf(w, "  Artifacts:           %d\n", st.TotalArtifacts)

	if len(res.PluginResults) > 0 {
		fmt.Fprintln(w, "───────────────────────────────────────────")
		names := make([]string, 0, len(res.PluginResults))
		for name := range res.PluginResults {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-20s %s\n", name+":", pluginLine(w, res.PluginResults[name]))
		}
	}

	if m := res.DetectionMetrics; m != nil {
		fmt.Fprintln(w, "───────────────────────────────────────────")
		fmt.Fprintf(w, "  Detection:           %d/%d (%.1f%%)\n", m.TruePositives, m.ActualEvents, m.DetectionPercentage)
		fmt.Fprintf(w, "  Precision/Recall/F1: %.3f / %.3f / %.3f\n", m.Precision, m.Recall, m.F1Score)
		fmt.Fprintf(w, "  Analysis time:       %.2fs\n", m.AnalysisTime)
	}
	fmt.Fprintln(w, "═══════════════════════════════════════════")
}

// pluginLine condenses one plugin result for the summary view.
func pluginLine(w io.Writer, r model.PluginResult) string {
	if msg, failed := r.Error(); failed {
		return colorize(w, colorRed, "error: "+msg)
	}
	if level, ok := r["threat_level"].(string); ok {
		return fmt.Sprintf("threat level %s (confidence %v)", colorize(w, levelColor(level), level), r["confidence_score"])
	}
	if suspicious, ok := r["suspicious_connections"].([]plugin.SuspiciousConnection); ok {
		threats, _ := r["threat_indicators"].([]plugin.ThreatIndicator)
		return fmt.Sprintf("%d suspicious connections, %d threat indicators", len(suspicious), len(threats))
	}
	return "ok"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
