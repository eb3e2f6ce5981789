package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gzhole/memscope/internal/config"
	"github.com/gzhole/memscope/internal/framework"
	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/telemetry"
)

var (
	configPath  string
	logLevel    string
	journalPath string

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "memscope",
	Short: "memscope - Unified memory forensics across Volatility, Rekall and MemProcFS",
	Long: `memscope analyzes memory images with whichever forensic engine works for
the image's operating system, falling back to the next engine when one
fails, and normalizes every engine's output into one result document.

Heuristic plugins score processes and network connections; the experiment
command measures detection accuracy across synthetic event rates.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		if journalPath != "" {
			loaded.JournalPath = journalPath
		}
		cfg = loaded
		log = logger.ConfigureLogger(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML file (default: ~/.memscope/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "Path to analysis journal (default: ~/.memscope/journal.jsonl)")
}

func Execute() error {
	return rootCmd.Execute()
}

// session is one command's orchestrator plus the resources it owns.
type session struct {
	orch    *framework.Orchestrator
	journal *logger.Journal
	metrics *telemetry.Metrics
}

func openSession() *session {
	s := &session{metrics: telemetry.New()}
	opts := []framework.Option{framework.WithLogger(log), framework.WithMetrics(s.metrics)}

	if cfg.JournalPath != "" {
		j, err := logger.OpenJournal(cfg.JournalPath)
		if err != nil {
			// analysis still runs without an audit trail
			log.WithError(err).WithField("journal", cfg.JournalPath).Warn("failed to open journal")
		} else {
			s.journal = j
			opts = append(opts, framework.WithJournal(j))
		}
	}

	s.orch = framework.New(cfg, opts...)
	return s
}

// Close flushes telemetry and closes the journal.
func (s *session) Close() {
	if path := cfg.Telemetry.Textfile; path != "" {
		if err := s.metrics.WriteTextfile(path); err != nil {
			log.WithError(err).WithField("path", path).Warn("failed to write telemetry textfile")
		}
	}
	if err := s.journal.Close(); err != nil {
		log.WithError(err).Warn("failed to close journal")
	}
}
