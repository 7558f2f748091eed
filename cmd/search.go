package cmd

import (
	"fmt"
	"strings"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	jsonOutput      bool
	plaintextOutput bool
	searchMode      string
	searchLimit     int
	searchFilter    db.SearchFilter
	searchHistory   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search bookmarks",
	Long: `Search enriched bookmarks.

Modes: keyword (full-text over titles, summaries and tags), semantic (embedding
similarity) and hybrid (both, merged by reciprocal rank fusion).

Every search is recorded; --history lists recent distinct queries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" && !searchHistory {
			return fmt.Errorf("pass a query or --history")
		}

		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if query == "" {
			return printSearchHistory(a)
		}

		var results []db.SearchResult
		switch searchMode {
		case "keyword":
			results, err = a.store.KeywordSearch(query, searchFilter, searchLimit)
		case "semantic":
			vec := a.semanticQuery(cmd.Context(), query)
			if vec == nil {
				return fmt.Errorf("semantic search needs embeddings; check the embeddings config")
			}
			results, err = a.store.SemanticSearch(vec, searchFilter, searchLimit, db.DefaultSimilarityThreshold)
		case "hybrid", "":
			results, err = a.store.HybridSearch(query, a.semanticQuery(cmd.Context(), query), searchFilter, searchLimit)
		default:
			return fmt.Errorf("unknown search mode %q (keyword, semantic, hybrid)", searchMode)
		}
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		mode := searchMode
		if mode == "" {
			mode = "hybrid"
		}
		if err := a.store.RecordSearch(query, mode, len(results)); err != nil {
			a.logger.Warn("failed to record search", zap.Error(err))
		}

		if jsonOutput {
			if results == nil {
				results = []db.SearchResult{}
			}
			return outputJSON(results)
		}
		if plaintextOutput {
			return outputPlaintext(results)
		}
		return outputDefault(results)
	},
}

func printSearchHistory(a *app) error {
	history, err := a.store.SearchHistory(searchLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		if history == nil {
			history = []db.SearchHistoryEntry{}
		}
		return outputJSON(history)
	}
	if len(history) == 0 {
		fmt.Println("No searches yet.")
		return nil
	}
	for _, h := range history {
		fmt.Printf("%s  %-8s  %3d  %s\n", h.CreatedAt.Local().Format("2006-01-02 15:04"), h.Mode, h.ResultsCount, h.Query)
	}
	return nil
}

func outputPlaintext(results []db.SearchResult) error {
	for _, r := range results {
		fmt.Printf("%s\t%s\t%s\n", r.Source, r.DisplayTitle(), r.URL)
	}
	return nil
}

func outputDefault(results []db.SearchResult) error {
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for i := range results {
		printBookmarkLine(i+1, &results[i].Bookmark)
	}
	return nil
}

func init() {
	searchCmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	searchCmd.Flags().BoolVarP(&plaintextOutput, "plaintext", "p", false, "Output as plaintext")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "hybrid", "Search mode: keyword, semantic or hybrid")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 20, "Maximum results")
	searchCmd.Flags().StringVar(&searchFilter.Domain, "domain", "", "Only bookmarks from this domain")
	searchCmd.Flags().StringVar(&searchFilter.ContentType, "type", "", "Only this content type (article, documentation, video, tool, paper, other)")
	searchCmd.Flags().StringVar(&searchFilter.Tag, "tag", "", "Only bookmarks with this tag")
	searchCmd.Flags().BoolVar(&searchHistory, "history", false, "List recent searches (uses --limit, at most 50)")
	rootCmd.AddCommand(searchCmd)
}
