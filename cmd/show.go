package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <bookmark-id>",
	Short: "Show one bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		b, err := a.store.Get(args[0])
		if err != nil {
			return err
		}
		if showJSON {
			return outputJSON(b)
		}
		printBookmark(b)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <bookmark-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a bookmark",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVarP(&showJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(showCmd, deleteCmd)
}
