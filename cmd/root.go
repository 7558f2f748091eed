package cmd

import (
	"fmt"
	"os"

	"github.com/sarathavasarala/markly/internal/tui"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "markly",
	Short: "Bookmarks with AI-written titles, summaries and tags",
	Long:  "Save links, let a background pipeline read and summarize them, and search everything by keyword or meaning.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Assigned here rather than in the literal: RunE reaches rootCmd via
	// openApp -> loadConfig, which would be an initialization cycle.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		// The terminal belongs to the TUI; logs go to a file.
		a, err := openApp(appOptions{logToFile: true})
		if err != nil {
			return err
		}
		defer a.close()
		return tui.Run(a.store, a.service)
	}
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default: ~/.markly)")
	rootCmd.PersistentFlags().String("owner", "", "Owner whose bookmarks to use (default: $USER)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output")
}
