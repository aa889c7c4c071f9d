// Package main provides the resume_agent command: the tailoring API server,
// database migrations and a small client for submitting and polling tasks.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "resume_agent",
	Short: "Resume tailoring task server",
	Long: "resume_agent queues résumé tailoring tasks against job postings and runs them " +
		"through a Gemini enrichment pipeline, exposing the queue over a REST API.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML, JSON or TOML config file")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
