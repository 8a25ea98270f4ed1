package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	rootCmd    = &cobra.Command{
		Use:   "claude-loop",
		Short: "Claude Issue Loop - Autonomous issue-driven agent runner",
		Long: `Claude Issue Loop drives a coding agent against ticket-tracker issues.
It picks up labeled issues, iterates the agent until the issue is done
or the budget runs out, and moves finished issues to review.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
