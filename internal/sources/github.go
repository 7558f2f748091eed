package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/indexer"
)

const githubLastSyncKey = "github_last_sync_ts"

type GitHubSource struct {
	state  syncState
	enrich bool
}

func NewGitHubSource(state syncState, enrich bool) *GitHubSource {
	return &GitHubSource{state: state, enrich: enrich}
}

func (g *GitHubSource) Name() string {
	return db.SourceGitHub
}

func (g *GitHubSource) Available() bool {
	return commandAvailable("gh")
}

type ghStar struct {
	StarredAt string `json:"starred_at"`
	Repo      struct {
		FullName    string   `json:"full_name"`
		HTMLURL     string   `json:"html_url"`
		Description string   `json:"description"`
		Topics      []string `json:"topics"`
	} `json:"repo"`
}

func (g *GitHubSource) Candidates(ctx context.Context, incremental bool) ([]indexer.Candidate, error) {
	var lastSyncTime time.Time
	if incremental && g.state != nil {
		if ts, _ := g.state.GetMetadata(githubLastSyncKey); ts != "" {
			lastSyncTime, _ = time.Parse(time.RFC3339, ts)
		}
	}

	var allStars []ghStar
	var newestTime time.Time
	page := 1
	perPage := 100 // max per page
	reachedOld := false

	for {
		// sort=created&direction=desc gives newest first
		output, err := runCommand(ctx, "gh", "api",
			fmt.Sprintf("user/starred?sort=created&direction=desc&per_page=%d&page=%d", perPage, page),
			"-H", "Accept: application/vnd.github.star+json")
		if err != nil {
			if page == 1 {
				return nil, err
			}
			break // stop on error after first page
		}

		var stars []ghStar
		if err := json.Unmarshal(output, &stars); err != nil {
			// Try concatenated JSON arrays (fallback for older gh versions)
			stars, err = parseMultipleArrays(output)
			if err != nil {
				if page == 1 {
					return nil, err
				}
				break
			}
		}
		if len(stars) == 0 {
			break
		}

		for _, star := range stars {
			starTime := parseTime(time.RFC3339, star.StarredAt).Truncate(time.Second)

			if newestTime.IsZero() || starTime.After(newestTime) {
				newestTime = starTime
			}

			if !lastSyncTime.IsZero() && !starTime.After(lastSyncTime) {
				reachedOld = true
				break
			}

			allStars = append(allStars, star)
		}

		if reachedOld || len(stars) < perPage {
			break
		}
		page++
	}

	if g.state != nil && !newestTime.IsZero() {
		g.state.SetMetadata(githubLastSyncKey, newestTime.Format(time.RFC3339))
	}

	candidates := make([]indexer.Candidate, 0, len(allStars))
	for _, star := range allStars {
		candidates = append(candidates, indexer.Candidate{
			URL:    star.Repo.HTMLURL,
			Title:  star.Repo.FullName,
			Tags:   star.Repo.Topics,
			Notes:  star.Repo.Description,
			Enrich: g.enrich,
			Source: db.SourceGitHub,
		})
	}
	return candidates, nil
}

// parseMultipleArrays handles gh paginate output which can be concatenated arrays
func parseMultipleArrays(data []byte) ([]ghStar, error) {
	var result []ghStar
	decoder := json.NewDecoder(bytes.NewReader(data))
	for decoder.More() {
		var page []ghStar
		if err := decoder.Decode(&page); err != nil {
			return nil, err
		}
		result = append(result, page...)
	}
	return result, nil
}
