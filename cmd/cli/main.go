package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiBase string
	apiKey  string
)

var rootCmd = &cobra.Command{
	Use:   "uptimeadvisor",
	Short: "Command-line client for the uptime advisor API",
	Long: `Register targets, start or stop monitoring and read status and history
from a running uptime advisor API.`,
	SilenceUsage: true,
}

func main() {
	defaultBase := os.Getenv("API_BASE")
	if defaultBase == "" {
		defaultBase = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", defaultBase, "API base URL (env API_BASE)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "key", os.Getenv("API_KEY"), "API key sent as X-API-Key (env API_KEY)")

	rootCmd.AddCommand(addCmd, listCmd, startCmd, stopCmd, statusCmd, checkCmd, historyCmd, removeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient() *client {
	return &client{base: apiBase, key: apiKey}
}
