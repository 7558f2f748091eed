package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/textutil"
)

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func sourceIcon(source string) string {
	switch source {
	case db.SourceX:
		return "[X]"
	case db.SourceRaindrop:
		return "[R]"
	case db.SourceGitHub:
		return "[G]"
	case db.SourceManual:
		return "[M]"
	case db.SourceImport:
		return "[I]"
	default:
		return "[?]"
	}
}

func statusBadge(status string) string {
	switch status {
	case db.StatusPending:
		return "…"
	case db.StatusProcessing:
		return "⟳"
	case db.StatusFailed:
		return "✗"
	default:
		return ""
	}
}

func truncate(s string, maxLen int) string {
	if textutil.RuneLen(s) <= maxLen {
		return s
	}
	return textutil.Truncate(s, maxLen-3) + "..."
}

func printBookmark(b *db.Bookmark) {
	fmt.Printf("%s %s\n", sourceIcon(b.Source), b.DisplayTitle())
	fmt.Printf("  URL:     %s\n", b.URL)
	fmt.Printf("  ID:      %s\n", b.ID)
	fmt.Printf("  Status:  %s\n", b.Status)
	if b.AISummary != "" {
		fmt.Printf("  Summary: %s\n", b.AISummary)
	}
	if len(b.AutoTags) > 0 {
		fmt.Printf("  Tags:    %s\n", strings.Join(b.AutoTags, ", "))
	}
	if b.ContentType != "" {
		fmt.Printf("  Type:    %s / %s / %s\n", b.ContentType, b.IntentType, b.TechnicalLevel)
	}
	if b.SuggestedFolder != nil {
		fmt.Printf("  Folder:  %s\n", *b.SuggestedFolder)
	}
	for _, q := range b.KeyQuotes {
		fmt.Printf("  > %s\n", q)
	}
	if b.EnrichmentError != nil {
		fmt.Printf("  Note:    %s\n", *b.EnrichmentError)
	}
}

func printBookmarkLine(i int, b *db.Bookmark) {
	title := b.DisplayTitle()
	if badge := statusBadge(b.Status); badge != "" {
		title = badge + " " + title
	}
	fmt.Printf("%d. %s %s\n   %s\n", i, sourceIcon(b.Source), title, b.URL)
	if b.AISummary != "" {
		fmt.Printf("   %s\n", truncate(b.AISummary, 100))
	}
	fmt.Println()
}
