package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	tagsLimit  int
	tagsFolder string
	tagsJSON   bool
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Show the most used tags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		tags, err := a.store.TopTags(tagsFolder, tagsLimit)
		if err != nil {
			return err
		}
		if tagsJSON {
			return outputJSON(map[string]interface{}{"tags": tags})
		}
		if len(tags) == 0 {
			fmt.Println("No tags yet.")
			return nil
		}
		for _, t := range tags {
			fmt.Printf("%5d  %s\n", t.Count, t.Tag)
		}
		return nil
	},
}

func init() {
	tagsCmd.Flags().IntVarP(&tagsLimit, "limit", "l", 20, "Number of tags (at most 100)")
	tagsCmd.Flags().StringVar(&tagsFolder, "folder", "", "Only count bookmarks filed in this folder")
	tagsCmd.Flags().BoolVarP(&tagsJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(tagsCmd)
}
