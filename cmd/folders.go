package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var foldersJSON bool

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List folders offered to the model as filing suggestions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		folders, err := a.store.ListFolders()
		if err != nil {
			return err
		}
		if foldersJSON {
			return outputJSON(folders)
		}
		if len(folders) == 0 {
			fmt.Println("No folders.")
			return nil
		}
		for _, f := range folders {
			fmt.Println(f.Name)
		}
		return nil
	},
}

var foldersAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		f, err := a.store.CreateFolder(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created folder %s\n", f.Name)
		return nil
	},
}

var foldersRmCmd = &cobra.Command{
	Use:     "rm <name>",
	Aliases: []string{"remove"},
	Short:   "Delete a folder",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.store.DeleteFolder(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted folder %s\n", args[0])
		return nil
	},
}

var foldersRenameCmd = &cobra.Command{
	Use:     "rename <old> <new>",
	Aliases: []string{"mv"},
	Short:   "Rename a folder and refile its bookmarks",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.store.RenameFolder(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Renamed folder %s to %s\n", args[0], strings.TrimSpace(args[1]))
		return nil
	},
}

func init() {
	foldersCmd.Flags().BoolVarP(&foldersJSON, "json", "j", false, "Output as JSON")
	foldersCmd.AddCommand(foldersAddCmd, foldersRmCmd, foldersRenameCmd)
	rootCmd.AddCommand(foldersCmd)
}
