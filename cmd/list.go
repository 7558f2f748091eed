package cmd

import (
	"fmt"
	"strings"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/spf13/cobra"
)

var (
	listOpts    db.ListOptions
	listSources string
	listJSON    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		opts := listOpts
		if listSources != "" {
			for _, s := range strings.Split(listSources, ",") {
				if s = strings.TrimSpace(s); s != "" {
					opts.Sources = append(opts.Sources, s)
				}
			}
		}

		bookmarks, total, err := a.store.List(opts)
		if err != nil {
			return err
		}
		if listJSON {
			if bookmarks == nil {
				bookmarks = []db.Bookmark{}
			}
			return outputJSON(map[string]interface{}{"bookmarks": bookmarks, "total": total})
		}
		if len(bookmarks) == 0 {
			fmt.Println("No bookmarks.")
			return nil
		}
		for i := range bookmarks {
			printBookmarkLine(opts.Offset+i+1, &bookmarks[i])
		}
		fmt.Printf("Showing %d of %d\n", len(bookmarks), total)
		return nil
	},
}

func init() {
	f := listCmd.Flags()
	f.StringVar(&listOpts.Status, "status", "", "Only this enrichment status (pending, processing, completed, failed)")
	f.StringVar(&listOpts.Domain, "domain", "", "Only bookmarks from this domain")
	f.StringVar(&listOpts.ContentType, "type", "", "Only this content type")
	f.StringVar(&listOpts.IntentType, "intent", "", "Only this intent (learning, reference, inspiration, tool, news, other)")
	f.StringVar(&listOpts.Tag, "tag", "", "Only bookmarks with this tag")
	f.StringVar(&listSources, "source", "", "Comma-separated sources (manual, import, raindrop, github, x)")
	f.StringVar(&listOpts.SortBy, "sort", "created_at", "Sort by created_at, updated_at, last_accessed_at, access_count, domain or clean_title")
	f.BoolVar(&listOpts.Ascending, "asc", false, "Sort ascending")
	f.IntVarP(&listOpts.Limit, "limit", "l", 20, "Page size")
	f.IntVar(&listOpts.Offset, "offset", 0, "Skip this many bookmarks")
	f.BoolVarP(&listJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(listCmd)
}
