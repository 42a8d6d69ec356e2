package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knowledge-engine/questionbank/internal/config"
)

var (
	flagEnvFile  string
	flagLogLevel string

	cfg    *config.Config
	logger *logrus.Entry
)

var rootCmd = &cobra.Command{
	Use:          "questionbank",
	Short:        "Question similarity search and knowledge-point classification",
	SilenceUsage: true,
	Long: `questionbank indexes exam questions for similarity search and tags
question text with curriculum knowledge points.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(flagEnvFile); err != nil {
			return fmt.Errorf("cannot load %s: %w", flagEnvFile, err)
		}
		cfg = config.Load()
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		logger = newLogger(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Optional dotenv file with configuration overrides")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stderr)
	if parsed, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(parsed)
	} else {
		l.WithField("level", level).Warn("Unknown log level, using info")
	}
	return l.WithField("service", "questionbank")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
