package cmd

import (
	"fmt"
	"strings"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/llm"
	"github.com/spf13/cobra"
)

var (
	editTitle string
	editTags  string
	editNotes string
)

var editCmd = &cobra.Command{
	Use:   "edit <bookmark-id>",
	Short: "Change the title, tags or notes of a bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var edit db.UserEdit
		if cmd.Flags().Changed("title") {
			title := strings.TrimSpace(editTitle)
			if title == "" {
				return fmt.Errorf("title cannot be empty")
			}
			edit.Title = &title
		}
		if cmd.Flags().Changed("tags") {
			edit.Tags = llm.NormalizeTags(strings.Split(editTags, ","), 0)
		}
		if cmd.Flags().Changed("notes") {
			edit.Notes = &editNotes
		}
		if edit.Title == nil && edit.Tags == nil && edit.Notes == nil {
			return fmt.Errorf("nothing to change: pass --title, --tags or --notes")
		}

		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.store.UpdateUserFields(args[0], edit); err != nil {
			return err
		}
		b, err := a.store.Get(args[0])
		if err != nil {
			return err
		}
		printBookmark(b)
		return nil
	},
}

func init() {
	editCmd.Flags().StringVarP(&editTitle, "title", "t", "", "New title")
	editCmd.Flags().StringVar(&editTags, "tags", "", "Comma-separated tags, replacing the current ones")
	editCmd.Flags().StringVarP(&editNotes, "notes", "n", "", "New notes")
	rootCmd.AddCommand(editCmd)
}
