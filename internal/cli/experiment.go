package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gzhole/memscope/internal/experiment"
	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/sink"
)

var (
	expOS      string
	expRates   []int
	expRuns    int
	expWorkers int
	expSeed    int64
	expOutput  string
	expFormat  string
	expPublish bool
)

var experimentCmd = &cobra.Command{
	Use:   "experiment <memory-image>",
	Short: "Measure detection accuracy across event rates",
	Long: `Run repeated analyses of one image per synthetic event rate, score each
run against generated file-activity ground truth, and report per-rate
averages and per-activity detection curves.

Examples:
  memscope experiment win10.raw
  memscope experiment dump.lime --os linux --rates 10,50,100 --runs 3
  memscope experiment win10.raw --workers 4 --output sweep.json`,
	Args: cobra.ExactArgs(1),
	RunE: experimentCommand,
}

func init() {
	experimentCmd.Flags().StringVar(&expOS, "os", "", "Operating system of the image; detected when empty")
	experimentCmd.Flags().IntSliceVar(&expRates, "rates", nil, "Event rates to sweep (default from config)")
	experimentCmd.Flags().IntVar(&expRuns, "runs", 0, "Runs per rate (default from config)")
	experimentCmd.Flags().IntVar(&expWorkers, "workers", 0, "Trials to run in parallel (default from config)")
	experimentCmd.Flags().Int64Var(&expSeed, "seed", 0, "Base seed for ground-truth generation (default from config)")
	experimentCmd.Flags().StringVarP(&expOutput, "output", "o", "", "Write the result to a file (.json, .yaml, optionally .zst)")
	experimentCmd.Flags().StringVar(&expFormat, "format", "summary", "Output format: json, yaml, summary")
	experimentCmd.Flags().BoolVar(&expPublish, "publish", false, "Publish the result to NATS")
	rootCmd.AddCommand(experimentCmd)
}

func experimentCommand(cmd *cobra.Command, args []string) error {
	path := args[0]
	ecfg := cfg.Experiment
	if len(expRates) > 0 {
		ecfg.Rates = expRates
	}
	if expRuns > 0 {
		ecfg.Runs = expRuns
	}
	if expWorkers > 0 {
		ecfg.Workers = expWorkers
	}
	if cmd.Flags().Changed("seed") {
		ecfg.Seed = expSeed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := openSession()
	defer s.Close()

	profile, err := s.orch.ResolveOS(path, expOS)
	if err != nil {
		return err
	}

	res, err := s.orch.Experiment(ctx, path, profile, ecfg)
	if err != nil {
		return fmt.Errorf("experiment failed: %w", err)
	}

	var sinkErr error
	if expOutput != "" {
		out := resolveOutput(expOutput)
		w := sink.NewFileWriter(cfg.Output.Validate, log, s.metrics)
		if err := w.Write(out, sink.KindExperiment, res); err != nil {
			sinkErr = fmt.Errorf("failed to save result: %w", err)
		} else {
			log.WithField("path", out).Info("experiment result saved")
		}
	}
	if expPublish {
		if err := publish(ctx, s, sink.KindExperiment, res, map[string]string{"os-type": string(res.OSType)}); err != nil && sinkErr == nil {
			sinkErr = err
		}
	}

	if expFormat == formatSummary || expFormat == formatTable {
		renderExperiment(cmd.OutOrStdout(), res)
	} else if err := emit(cmd.OutOrStdout(), expFormat, res); err != nil {
		return err
	}
	return sinkErr
}

func renderExperiment(w io.Writer, res *experiment.Result) {
	fmt.Fprintf(w, "Detection experiment: %s (%s)\n", res.ArtifactPath, res.OSType)
	fmt.Fprintf(w, "Runs per rate: %d\n\n", res.RunsPerRate)

	table := newTable(w, []string{"Rate", "Detection %", "Precision", "Recall", "F1", "Time (s)", "Failed"})
	rates := append([]int(nil), res.EventRates...)
	sort.Ints(rates)
	for _, rate := range rates {
		rr, ok := res.DetectionResults[rate]
		if !ok {
			continue
		}
		avg := rr.AverageMetrics
		failed := 0
		for _, r := range rr.Runs {
			if r.Error != "" {
				failed++
			}
		}
		table.Append([]string{
			strconv.Itoa(rate),
			fmtAgg(avg["detection_percentage"]),
			fmtAgg(avg["precision"]),
			fmtAgg(avg["recall"]),
			fmtAgg(avg["f1_score"]),
			fmtAgg(avg["analysis_time"]),
			strconv.Itoa(failed),
		})
	}
	table.Render()

	fmt.Fprintln(w, "\nDetection curves (%)")
	header := []string{"Activity"}
	for _, rate := range res.EventRates {
		header = append(header, strconv.Itoa(rate))
	}
	table = newTable(w, header)
	for _, activity := range model.Activities {
		row := []string{activity}
		for _, v := range res.DetectionCurves[activity] {
			row = append(row, strconv.FormatFloat(v, 'f', 1, 64))
		}
		table.Append(row)
	}
	table.Render()
}

func fmtAgg(a experiment.Aggregate) string {
	return fmt.Sprintf("%.2f ± %.2f", a.Mean, a.Std)
}
