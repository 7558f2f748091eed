package indexer

import (
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/llm"
	"github.com/sarathavasarala/markly/internal/scraper"
	"go.uber.org/zap"
)

// insertChunk bounds the rows written per transaction during an import.
const insertChunk = 50

// Candidate is one bookmark offered for import.
type Candidate struct {
	URL   string
	Title string
	Tags  []string
	Notes string
	// Description stands in for page content during enrichment.
	Description string
	Enrich      bool
	Source      string
}

// ImportSummary reports what an import did.
type ImportSummary struct {
	JobID            string `json:"job_id"`
	Imported         int    `json:"imported"`
	Skipped          int    `json:"skipped"`
	EnrichmentQueued int    `json:"enrichment_queued"`
	Invalid          int    `json:"invalid"`
}

// ValidateURL trims raw and checks that it is an absolute http(s) URL.
func ValidateURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if err := validation.Validate(u, validation.Required, is.URL); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}
	parsed, err := url.Parse(u)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q: scheme must be http or https", ErrInvalidURL, raw)
	}
	return u, nil
}

// normalizeCandidates drops invalid entries and cleans the rest.
func normalizeCandidates(candidates []Candidate) ([]Candidate, int) {
	out := make([]Candidate, 0, len(candidates))
	invalid := 0
	for _, c := range candidates {
		u, err := ValidateURL(c.URL)
		if err != nil {
			invalid++
			continue
		}
		c.URL = u
		c.Title = strings.TrimSpace(c.Title)
		if c.Title == "" {
			c.Title = u
		}
		c.Tags = llm.NormalizeTags(c.Tags, llm.MaxTags)
		c.Notes = strings.TrimSpace(c.Notes)
		c.Description = strings.TrimSpace(c.Description)
		if c.Source == "" {
			c.Source = db.SourceImport
		}
		out = append(out, c)
	}
	return out, invalid
}

// importBatch inserts candidates, records an import job and returns the jobs
// to enqueue. The job counters are final before anything is enqueued.
func (s *Service) importBatch(store *db.Store, candidates []Candidate, useNano bool) (*ImportSummary, []Job, error) {
	normalized, invalid := normalizeCandidates(candidates)

	record, err := store.CreateImportJob(len(normalized))
	if err != nil {
		return nil, nil, fmt.Errorf("create import job: %w", err)
	}
	summary := &ImportSummary{JobID: record.ID, Invalid: invalid}
	log := s.logger.With(zap.String("job_id", record.ID))

	urls := make([]string, 0, len(normalized))
	for _, c := range normalized {
		urls = append(urls, c.URL)
	}
	existing, err := store.ExistingURLs(urls)
	if err != nil {
		return nil, nil, fmt.Errorf("check existing urls: %w", err)
	}

	seen := make(map[string]bool, len(normalized))
	var rows []*db.Bookmark
	enrich := make(map[string]bool)
	for _, c := range normalized {
		if existing[c.URL] || seen[c.URL] {
			summary.Skipped++
			continue
		}
		seen[c.URL] = true

		domain, _ := scraper.Domain(c.URL)
		b := &db.Bookmark{
			Source:          c.Source,
			URL:             c.URL,
			Domain:          domain,
			OriginalTitle:   c.Title,
			CleanTitle:      c.Title,
			AutoTags:        c.Tags,
			RawNotes:        c.Notes,
			UserDescription: c.Description,
			FaviconURL:      scraper.FaviconServiceURL(domain),
			Status:          db.StatusPending,
		}
		if c.Enrich {
			enrich[c.URL] = true
		} else {
			// Saved as completed, so it carries a full record without the model.
			meta := llm.Baseline(c.URL, c.Title, c.Description, c.Tags)
			b.CleanTitle = meta.CleanTitle
			b.AISummary = meta.AISummary
			b.AutoTags = meta.AutoTags
			b.KeyQuotes = meta.KeyQuotes
			b.IntentType = meta.IntentType
			b.TechnicalLevel = meta.TechnicalLevel
			b.ContentType = meta.ContentType
			b.Status = db.StatusCompleted
		}
		rows = append(rows, b)
	}

	var inserted []*db.Bookmark
	for start := 0; start < len(rows); start += insertChunk {
		end := start + insertChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunk, err := store.InsertBatch(rows[start:end])
		if err != nil {
			return nil, nil, fmt.Errorf("insert bookmarks: %w", err)
		}
		// Rows lost to a concurrent insert of the same URL count as skipped.
		summary.Skipped += (end - start) - len(chunk)
		inserted = append(inserted, chunk...)
	}
	summary.Imported = len(inserted)

	var items []*db.ImportJobItem
	for _, b := range inserted {
		if !enrich[b.URL] {
			continue
		}
		id := b.ID
		items = append(items, &db.ImportJobItem{
			JobID:      record.ID,
			BookmarkID: &id,
			URL:        b.URL,
			Title:      b.OriginalTitle,
			Tags:       b.AutoTags,
		})
	}
	if err := store.CreateImportItems(items); err != nil {
		return nil, nil, fmt.Errorf("create import items: %w", err)
	}
	summary.EnrichmentQueued = len(items)

	if err := store.SetImportJobCounts(record.ID, summary.Imported, summary.Skipped, summary.EnrichmentQueued); err != nil {
		return nil, nil, fmt.Errorf("update import job: %w", err)
	}

	jobs := make([]Job, 0, len(items))
	for _, item := range items {
		jobs = append(jobs, Job{
			Owner:       store.Owner(),
			BookmarkID:  *item.BookmarkID,
			ImportJobID: record.ID,
			ItemID:      item.ID,
			UseNano:     useNano,
		})
	}

	log.Info("import recorded",
		zap.Int("total", len(normalized)),
		zap.Int("imported", summary.Imported),
		zap.Int("skipped", summary.Skipped),
		zap.Int("invalid", summary.Invalid),
		zap.Int("queued", summary.EnrichmentQueued),
	)
	return summary, jobs, nil
}
