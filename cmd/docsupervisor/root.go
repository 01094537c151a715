package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/docsupervisor/internal/config"
	"github.com/Lllllllleong/docsupervisor/internal/logger"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "docsupervisor",
	Short: "Classify documents and extract structured insights with Gemini",
	Long: `docsupervisor runs the document pipeline locally: it extracts the text of a
document in Cloud Storage, classifies it, extracts category specific insights
and writes the JSON result and HTML report next to the source.

Configuration is read from the environment (and a .env file if present),
for example PROJECT_ID, MODEL_PROVIDER, OCR_PROVIDER and LOG_LEVEL.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies its log settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(cfg.LoggerConfig()); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, nil
}
