// Command leadscraper extracts business leads from map search results,
// either as a one-shot CLI run or as a long-running service with an HTTP
// API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadscraper/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "leadscraper",
	Short: "Extract business leads from map search results",
	Long: `leadscraper drives a headless browser through a map search, walks the
results feed and turns the listings into deduplicated, exportable leads.

Run a single search with "scrape", or start the background service and
its HTTP API with "serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	if cfg.LogDev {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}
