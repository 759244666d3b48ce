package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "annoqd",
	Short: "Annotation task queue daemon",
	Long: `annoqd serves a human-annotation task pipeline: raters claim
pending tasks from a FIFO queue, submit responses, and reviewers approve
or edit them, advancing each task through its batch's pipeline stages.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default annoq.toml, then ~/.config/annoq/annoq.toml)")
}
