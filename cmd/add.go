package cmd

import (
	"fmt"

	"github.com/sarathavasarala/markly/internal/indexer"
	"github.com/spf13/cobra"
)

var (
	addNotes       string
	addDescription string
	addJSON        bool
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Save a bookmark and enrich it",
	Long: `Save a URL and run the enrichment pipeline on it: the page is read, a model
writes a clean title, summary and tags, and an embedding is stored for search.

Use --description for pages that cannot be scraped (apps, login walls); the text
is used in place of the page content.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{pipeline: true})
		if err != nil {
			return err
		}
		defer a.close()

		b, existed, err := a.service.CreateBookmark(indexer.CreateInput{
			URL:         args[0],
			Notes:       addNotes,
			Description: addDescription,
		})
		if err != nil {
			return fmt.Errorf("failed to add URL: %w", err)
		}
		if existed {
			if addJSON {
				return outputJSON(map[string]interface{}{"bookmark": b, "already_exists": true})
			}
			fmt.Printf("Already saved: %s (%s)\n", b.DisplayTitle(), b.Status)
			return nil
		}

		if err := a.waitForQueue(1, "Enriching"); err != nil {
			return err
		}

		saved, err := a.store.Get(b.ID)
		if err != nil {
			return err
		}
		if addJSON {
			return outputJSON(map[string]interface{}{"bookmark": saved, "already_exists": false})
		}
		printBookmark(saved)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVarP(&addNotes, "notes", "n", "", "Your own notes, passed to the model")
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Describe the page instead of scraping it")
	addCmd.Flags().BoolVarP(&addJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(addCmd)
}
