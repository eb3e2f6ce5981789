package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gzhole/memscope/internal/framework"
	"github.com/gzhole/memscope/internal/model"
	"github.com/gzhole/memscope/internal/redact"
	"github.com/gzhole/memscope/internal/sink"
)

var (
	analyzeOS          string
	analyzePlugins     []string
	analyzeOutput      string
	analyzeFormat      string
	analyzeRedact      bool
	analyzeMetrics     bool
	analyzeGroundTruth string
	analyzePublish     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <memory-image>",
	Short: "Analyze a memory image",
	Long: `Analyze a memory image with the first engine in the OS's fallback chain
that produces data, and print the normalized result.

Examples:
  memscope analyze win10.raw                          # Detect OS, print JSON
  memscope analyze dump.lime --os linux --format table
  memscope analyze win10.raw --plugins malware,network --format summary
  memscope analyze win10.raw --output result.json.zst # Compressed result file
  memscope analyze win10.raw --metrics --ground-truth truth.json
  memscope analyze win10.raw --publish                # Publish to NATS`,
	Args: cobra.ExactArgs(1),
	RunE: analyzeCommand,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeOS, "os", "", "Operating system of the image (windows, linux, macos); detected when empty")
	analyzeCmd.Flags().StringSliceVar(&analyzePlugins, "plugins", nil, "Plugins to run (malware, network)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Write the result to a file (.json, .yaml, optionally .zst)")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "", "Output format: json, yaml, table, summary (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeRedact, "redact", false, "Redact secrets from process command lines")
	analyzeCmd.Flags().BoolVar(&analyzeMetrics, "metrics", false, "Attach detection metrics to the result")
	analyzeCmd.Flags().StringVar(&analyzeGroundTruth, "ground-truth", "", "JSON file of ground-truth events to score detections against")
	analyzeCmd.Flags().BoolVar(&analyzePublish, "publish", false, "Publish the result to NATS")
	rootCmd.AddCommand(analyzeCmd)
}

func analyzeCommand(cmd *cobra.Command, args []string) error {
	format := analyzeFormat
	if format == "" {
		format = cfg.Output.Format
	}
	if err := checkFormat(format); err != nil {
		return err
	}

	req := framework.Request{
		ArtifactPath:  args[0],
		OS:            analyzeOS,
		Plugins:       analyzePlugins,
		EnableMetrics: analyzeMetrics || analyzeGroundTruth != "",
	}
	if analyzeGroundTruth != "" {
		truth, err := readGroundTruth(analyzeGroundTruth)
		if err != nil {
			return fmt.Errorf("failed to read ground truth: %w", err)
		}
		req.GroundTruth = truth
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := openSession()
	defer s.Close()

	res, err := s.orch.Analyze(ctx, req)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if analyzeRedact || cfg.Output.Redact {
		redact.RedactResult(res)
	}

	// the result is still printed when a sink fails
	var sinkErr error
	if analyzeOutput != "" {
		path := resolveOutput(analyzeOutput)
		w := sink.NewFileWriter(cfg.Output.Validate, log, s.metrics)
		if err := w.Write(path, sink.KindAnalysis, res); err != nil {
			sinkErr = fmt.Errorf("failed to save result: %w", err)
		} else {
			log.WithField("path", path).Info("result saved")
		}
	}
	if analyzePublish {
		if err := publish(ctx, s, sink.KindAnalysis, res, map[string]string{
			"run-id":  res.Metadata.RunID,
			"os-type": string(res.Metadata.OSType),
			"engine":  res.Metadata.Engine,
		}); err != nil && sinkErr == nil {
			sinkErr = err
		}
	}

	if err := emit(cmd.OutOrStdout(), format, res); err != nil {
		return err
	}
	return sinkErr
}

func checkFormat(format string) error {
	switch format {
	case formatJSON, formatYAML, formatTable, formatSummary:
		return nil
	}
	return fmt.Errorf("unknown output format %q (expected json, yaml, table or summary)", format)
}

// readGroundTruth loads a JSON array of events. Numbers are kept as
// json.Number so pids and ports compare exactly.
func readGroundTruth(path string) ([]model.Event, error) {
	data, err := sink.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var events []model.Event
	if err := dec.Decode(&events); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

func publish(ctx context.Context, s *session, kind sink.Kind, doc interface{}, headers map[string]string) error {
	if cfg.NATS.URL == "" {
		return fmt.Errorf("cannot publish: no NATS url configured (set nats.url or MEMSCOPE_NATS_URL)")
	}
	p, err := sink.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log, s.metrics)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Publish(ctx, kind, doc, headers); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"subject": p.Subject(kind), "url": cfg.NATS.URL}).Info("result published")
	return nil
}

// parsePairs parses "platform=path" arguments.
func parsePairs(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("expected platform=path, got %q", a)
		}
		out[k] = v
	}
	return out, nil
}
