// Package main provides the entry point for the social profile scraping service and its
// administrative commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "scraper_agent",
	Short: "Social profile scraping service",
	Long: "scraper_agent accepts profile scrape jobs over a REST API, drives a remote browser with stored " +
		"sessions, extracts profiles, posts and interactions with a vision language model, and stores them in Postgres.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file (environment variables take precedence)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
