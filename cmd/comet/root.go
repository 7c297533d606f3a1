package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/comet/internal/config"
	"github.com/suPer8Hu/comet/internal/observability"
)

var (
	logLevel  string
	configDir string
)

var rootCmd = &cobra.Command{
	Use:           "comet",
	Short:         "Discord relay bot for hosted chat models",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBot,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory containing config.yaml")

	rootCmd.AddCommand(runCmd, tokenCmd, migrateCmd)
}

// setup loads configuration and builds the logger shared by every subcommand.
func setup() (*config.Config, *slog.Logger, io.Closer, error) {
	if _, err := observability.ParseLevel(logLevel); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closer, err := observability.New(os.Stderr, observability.Options{
		Level:   logLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
		Secrets: []string{cfg.Prompts.System, cfg.Prompts.Claude},
	})
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, closer, nil
}
