package sources

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/indexer"
)

const raindropLastSyncKey = "raindrop_last_sync_ts"

type RaindropSource struct {
	state  syncState
	enrich bool
}

// NewRaindropSource returns a source backed by the raindrop CLI. state may
// be nil, which disables incremental sync.
func NewRaindropSource(state syncState, enrich bool) *RaindropSource {
	return &RaindropSource{state: state, enrich: enrich}
}

func (r *RaindropSource) Name() string {
	return db.SourceRaindrop
}

func (r *RaindropSource) Available() bool {
	return commandAvailable("raindrop")
}

type raindropItem struct {
	ID      int      `json:"_id"`
	Title   string   `json:"title"`
	Link    string   `json:"link"`
	Excerpt string   `json:"excerpt"`
	Note    string   `json:"note"`
	Created string   `json:"created"`
	Tags    []string `json:"tags"`
}

// parseRaindropPage accepts either a bare array or an {items: [...]} envelope.
func parseRaindropPage(data []byte) ([]raindropItem, error) {
	var items []raindropItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}
	var resp struct {
		Items []raindropItem `json:"items"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (r *RaindropSource) Candidates(ctx context.Context, incremental bool) ([]indexer.Candidate, error) {
	var lastSyncTime time.Time
	if incremental && r.state != nil {
		if ts, _ := r.state.GetMetadata(raindropLastSyncKey); ts != "" {
			lastSyncTime, _ = time.Parse(time.RFC3339, ts)
		}
	}

	var allItems []raindropItem
	var newestTime time.Time
	page := 0
	limit := 50 // max per page
	reachedOld := false

	for {
		// Raindrop CLI sorts by -created (newest first) by default
		output, err := runCommand(ctx, "raindrop", "list", "--json", "--limit", strconv.Itoa(limit), "--page", strconv.Itoa(page))
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break // stop on error after first page
		}

		items, err := parseRaindropPage(output)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			itemTime := parseTime(time.RFC3339, item.Created).Truncate(time.Second)

			if newestTime.IsZero() || itemTime.After(newestTime) {
				newestTime = itemTime
			}

			// Stop if we've reached items from before last sync
			if !lastSyncTime.IsZero() && !itemTime.After(lastSyncTime) {
				reachedOld = true
				break
			}

			allItems = append(allItems, item)
		}

		if reachedOld || len(items) < limit {
			break
		}
		page++
	}

	if r.state != nil && !newestTime.IsZero() {
		r.state.SetMetadata(raindropLastSyncKey, newestTime.Format(time.RFC3339))
	}

	candidates := make([]indexer.Candidate, 0, len(allItems))
	for _, item := range allItems {
		candidates = append(candidates, indexer.Candidate{
			URL:    item.Link,
			Title:  item.Title,
			Tags:   item.Tags,
			Notes:  item.Note,
			Enrich: r.enrich,
			Source: db.SourceRaindrop,
		})
	}
	return candidates, nil
}

// parseTime falls back to now for empty or malformed values.
func parseTime(layout, value string) time.Time {
	if value != "" {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Now()
}
