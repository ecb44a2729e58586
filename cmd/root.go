package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "watchparty-server",
	Short: "WatchParty server: synchronized video rooms over WebSocket",
	Long:  `HTTP + WebSocket API. Commands: api, command, seed.`,
	RunE:  runAPI, // default: run API (same as "watchparty-server api")
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(commandCmd)
	rootCmd.AddCommand(seedCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}
