package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/indexer"
	"github.com/sarathavasarala/markly/internal/textutil"
)

// maxTweetTitle caps the title derived from a tweet's text.
const maxTweetTitle = 100

type TwitterSource struct {
	enrich bool
}

func NewTwitterSource(enrich bool) *TwitterSource {
	return &TwitterSource{enrich: enrich}
}

func (t *TwitterSource) Name() string {
	return db.SourceX
}

func (t *TwitterSource) Available() bool {
	return commandAvailable("bird")
}

// birdBookmark matches the JSON schema from bird CLI --json output
type birdBookmark struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
	Author    struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"author"`
}

// birdResponse handles paginated response: { tweets: [...], nextCursor: "..." }
type birdResponse struct {
	Tweets     []birdBookmark `json:"tweets"`
	NextCursor string         `json:"nextCursor"`
}

// Candidates always returns every bookmark; bird has no incremental mode.
func (t *TwitterSource) Candidates(ctx context.Context, incremental bool) ([]indexer.Candidate, error) {
	// bird output can exceed what some CLIs flush through a pipe, so it
	// goes through a temp file.
	tmpFile, err := os.CreateTemp("", "bird-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if _, err := runCommand(ctx, "sh", "-c", fmt.Sprintf("bird bookmarks --all --json > %s", tmpPath)); err != nil {
		return nil, fmt.Errorf("bird bookmarks failed: %w", err)
	}

	output, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bird output: %w", err)
	}
	return t.parse(output)
}

func (t *TwitterSource) parse(output []byte) ([]indexer.Candidate, error) {
	var resp birdResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		// Try parsing as direct array (fallback for older versions)
		var tweets []birdBookmark
		if arrErr := json.Unmarshal(output, &tweets); arrErr != nil {
			return nil, fmt.Errorf("failed to parse bird output: %w", err)
		}
		resp.Tweets = tweets
	}

	candidates := make([]indexer.Candidate, 0, len(resp.Tweets))
	for _, tweet := range resp.Tweets {
		if tweet.ID == "" || tweet.Author.Username == "" {
			continue
		}
		title := tweet.Text
		if textutil.RuneLen(title) > maxTweetTitle {
			title = textutil.Truncate(title, maxTweetTitle) + "..."
		}

		// Tweets render client-side, so the text is the content to enrich from.
		candidates = append(candidates, indexer.Candidate{
			URL:         fmt.Sprintf("https://x.com/%s/status/%s", tweet.Author.Username, tweet.ID),
			Title:       title,
			Description: tweet.Text,
			Enrich:      t.enrich,
			Source:      db.SourceX,
		})
	}
	return candidates, nil
}
