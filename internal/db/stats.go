package db

import (
	"time"
)

// MaxTopTags caps TopTags.
const MaxTopTags = 100

type TagCount struct {
	Tag   string `db:"tag" json:"tag"`
	Count int    `db:"count" json:"count"`
}

// TopTags counts tag use across the owner's bookmarks, most used first.
// A non-empty folder limits the count to bookmarks filed there.
func (s *Store) TopTags(folder string, limit int) ([]TagCount, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxTopTags {
		limit = MaxTopTags
	}

	where := "b.owner_id = ?"
	args := []interface{}{s.owner}
	if folder != "" {
		where += " AND b.suggested_folder = ?"
		args = append(args, folder)
	}
	args = append(args, limit)

	var tags []TagCount
	err := s.db.Select(&tags, `
		SELECT t.value AS tag, COUNT(*) AS count
		FROM bookmarks b, json_each(b.auto_tags) t
		WHERE `+where+`
		GROUP BY t.value
		ORDER BY count DESC, tag ASC
		LIMIT ?`, args...)
	return tags, err
}

// CompletedSince returns enriched bookmarks created at or after t, newest first.
func (s *Store) CompletedSince(t time.Time, limit int) ([]Bookmark, error) {
	var bookmarks []Bookmark
	err := s.db.Select(&bookmarks, `SELECT `+bookmarkColumns+` FROM bookmarks
		WHERE owner_id = ? AND enrichment_status = ? AND created_at >= ?
		ORDER BY created_at DESC LIMIT ?`, s.owner, StatusCompleted, t.UTC(), limit)
	return bookmarks, err
}

// CompletedBefore returns enriched bookmarks created before t, newest first.
func (s *Store) CompletedBefore(t time.Time, limit int) ([]Bookmark, error) {
	var bookmarks []Bookmark
	err := s.db.Select(&bookmarks, `SELECT `+bookmarkColumns+` FROM bookmarks
		WHERE owner_id = ? AND enrichment_status = ? AND created_at < ?
		ORDER BY created_at DESC LIMIT ?`, s.owner, StatusCompleted, t.UTC(), limit)
	return bookmarks, err
}
