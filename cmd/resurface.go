package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var resurfaceJSON bool

var resurfaceCmd = &cobra.Command{
	Use:   "resurface",
	Short: "Suggest older bookmarks worth revisiting",
	Long: `Ask the chat model which bookmarks saved more than 30 days ago relate to
what you saved in the last two weeks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{pipeline: true})
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.service.Resurface(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		if resurfaceJSON {
			return outputJSON(res)
		}
		if res.Message != "" {
			fmt.Println(res.Message)
			return nil
		}
		if len(res.Suggestions) == 0 {
			fmt.Println("No suggestions.")
			return nil
		}
		for i := range res.Suggestions {
			s := &res.Suggestions[i]
			printBookmarkLine(i+1, &s.Bookmark)
			fmt.Printf("   Why: %s\n\n", s.Reason)
		}
		return nil
	},
}

func init() {
	resurfaceCmd.Flags().BoolVarP(&resurfaceJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(resurfaceCmd)
}
