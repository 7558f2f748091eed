package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Enrichment states of a bookmark
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Import job states
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobCanceled   = "canceled"
)

// Import job item states
const (
	ItemPending    = "pending"
	ItemProcessing = "processing"
	ItemCompleted  = "completed"
	ItemFailed     = "failed"
	ItemSkipped    = "skipped"
	ItemCanceled   = "canceled"
)

// Bookmark sources
const (
	SourceManual   = "manual"
	SourceImport   = "import"
	SourceRaindrop = "raindrop"
	SourceGitHub   = "github"
	SourceX        = "x"
)

// StringList is stored as a JSON array in a TEXT column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

type Bookmark struct {
	ID              string     `db:"id" json:"id"`
	OwnerID         string     `db:"owner_id" json:"-"`
	Source          string     `db:"source" json:"source"`
	URL             string     `db:"url" json:"url"`
	Domain          string     `db:"domain" json:"domain"`
	OriginalTitle   string     `db:"original_title" json:"original_title"`
	CleanTitle      string     `db:"clean_title" json:"clean_title"`
	AISummary       string     `db:"ai_summary" json:"ai_summary"`
	AutoTags        StringList `db:"auto_tags" json:"auto_tags"`
	KeyQuotes       StringList `db:"key_quotes" json:"key_quotes"`
	ContentType     string     `db:"content_type" json:"content_type,omitempty"`
	IntentType      string     `db:"intent_type" json:"intent_type,omitempty"`
	TechnicalLevel  string     `db:"technical_level" json:"technical_level,omitempty"`
	ContentExtract  string     `db:"content_extract" json:"-"`
	SuggestedFolder *string    `db:"suggested_folder" json:"suggested_folder,omitempty"`
	FaviconURL      string     `db:"favicon_url" json:"favicon_url,omitempty"`
	ThumbnailURL    string     `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	RawNotes        string     `db:"raw_notes" json:"raw_notes,omitempty"`
	UserDescription string     `db:"user_description" json:"user_description,omitempty"`
	Status          string     `db:"enrichment_status" json:"enrichment_status"`
	EnrichmentError *string    `db:"enrichment_error" json:"enrichment_error,omitempty"`
	AccessCount     int        `db:"access_count" json:"access_count"`
	LastAccessedAt  *time.Time `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplayTitle prefers the refined title.
func (b *Bookmark) DisplayTitle() string {
	if b.CleanTitle != "" {
		return b.CleanTitle
	}
	if b.OriginalTitle != "" {
		return b.OriginalTitle
	}
	return b.URL
}

type SearchResult struct {
	Bookmark
	Score float64 `json:"score"`
}

type ImportJob struct {
	ID                 string    `db:"id" json:"id"`
	OwnerID            string    `db:"owner_id" json:"-"`
	Status             string    `db:"status" json:"status"`
	Total              int       `db:"total" json:"total"`
	ImportedCount      int       `db:"imported_count" json:"imported_count"`
	SkippedCount       int       `db:"skipped_count" json:"skipped_count"`
	EnqueueEnrichCount int       `db:"enqueue_enrich_count" json:"enqueue_enrich_count"`
	EnrichCompleted    int       `db:"enrich_completed" json:"enrich_completed"`
	EnrichFailed       int       `db:"enrich_failed" json:"enrich_failed"`
	CurrentItemID      *string   `db:"current_item_id" json:"current_item_id,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

type ImportJobItem struct {
	ID         string     `db:"id" json:"id"`
	JobID      string     `db:"job_id" json:"job_id"`
	OwnerID    string     `db:"owner_id" json:"-"`
	BookmarkID *string    `db:"bookmark_id" json:"bookmark_id,omitempty"`
	URL        string     `db:"url" json:"url"`
	Title      string     `db:"title" json:"title"`
	Tags       StringList `db:"tags" json:"tags"`
	Status     string     `db:"status" json:"status"`
	Error      *string    `db:"error" json:"error,omitempty"`
	StartedAt  *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Terminal reports whether the item can no longer change state.
func (i *ImportJobItem) Terminal() bool {
	switch i.Status {
	case ItemCompleted, ItemFailed, ItemSkipped, ItemCanceled:
		return true
	}
	return false
}

type Folder struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"-"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Enrichment is the write-back of a successful enrichment run.
type Enrichment struct {
	Domain          string
	OriginalTitle   string
	FaviconURL      string
	ThumbnailURL    string
	ContentExtract  string
	CleanTitle      string
	AISummary       string
	AutoTags        []string
	KeyQuotes       []string
	IntentType      string
	TechnicalLevel  string
	ContentType     string
	SuggestedFolder *string
	Advisory        *string
}

// ListOptions filters and paginates List.
type ListOptions struct {
	Domain      string
	ContentType string
	IntentType  string
	Tag         string
	Status      string
	Sources     []string
	SortBy      string
	Ascending   bool
	Limit       int
	Offset      int
}
