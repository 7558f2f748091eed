package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	analyzeNotes string
	analyzeNano  bool
	analyzeJSON  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Preview what enrichment would produce, without saving",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{pipeline: true})
		if err != nil {
			return err
		}
		defer a.close()

		preview, err := a.service.AnalyzePreview(cmd.Context(), args[0], analyzeNotes, analyzeNano)
		if err != nil {
			return fmt.Errorf("analyze failed: %w", err)
		}
		if analyzeJSON {
			return outputJSON(preview)
		}

		ex, meta := preview.Extracted, preview.Metadata
		fmt.Printf("Page\n")
		fmt.Printf("  Title:    %s\n", ex.Title)
		fmt.Printf("  Domain:   %s\n", ex.Domain)
		if ex.Description != "" {
			fmt.Printf("  Desc:     %s\n", truncate(ex.Description, 120))
		}
		fmt.Printf("  Content:  %d chars\n", len([]rune(ex.Content)))
		fmt.Println()
		fmt.Printf("Enrichment\n")
		fmt.Printf("  Title:    %s\n", meta.CleanTitle)
		fmt.Printf("  Summary:  %s\n", meta.AISummary)
		fmt.Printf("  Tags:     %s\n", strings.Join(meta.AutoTags, ", "))
		fmt.Printf("  Type:     %s / %s / %s\n", meta.ContentType, meta.IntentType, meta.TechnicalLevel)
		if meta.SuggestedFolder != nil {
			fmt.Printf("  Folder:   %s\n", *meta.SuggestedFolder)
		}
		for _, q := range meta.KeyQuotes {
			fmt.Printf("  > %s\n", q)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeNotes, "notes", "n", "", "Notes to pass to the model")
	analyzeCmd.Flags().BoolVar(&analyzeNano, "nano", false, "Use the cheaper model if one is configured")
	analyzeCmd.Flags().BoolVarP(&analyzeJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
