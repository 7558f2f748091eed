package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxHistory caps SearchHistory.
const MaxHistory = 50

type SearchHistoryEntry struct {
	Query        string    `db:"query" json:"query"`
	Mode         string    `db:"mode" json:"mode"`
	ResultsCount int       `db:"results_count" json:"results_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// RecordSearch appends a query to the owner's search history.
func (s *Store) RecordSearch(query, mode string, results int) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	_, err := s.db.Exec(`INSERT INTO search_history (id, owner_id, query, mode, results_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), s.owner, query, mode, results, time.Now().UTC())
	return err
}

// SearchHistory returns recent distinct queries, newest first. A repeated
// query shows up once with its latest run.
func (s *Store) SearchHistory(limit int) ([]SearchHistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxHistory {
		limit = MaxHistory
	}
	var entries []SearchHistoryEntry
	err := s.db.Select(&entries, `
		SELECT h.query, h.mode, h.results_count, h.created_at
		FROM search_history h
		WHERE h.owner_id = ? AND h.rowid = (
			SELECT l.rowid FROM search_history l
			WHERE l.owner_id = h.owner_id AND l.query = h.query
			ORDER BY l.created_at DESC, l.rowid DESC LIMIT 1)
		ORDER BY h.created_at DESC, h.rowid DESC
		LIMIT ?`, s.owner, limit)
	return entries, err
}
