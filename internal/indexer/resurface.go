package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/llm"
	"go.uber.org/zap"
)

// Windows and floors for resurfacing.
const (
	recentWindow    = 14 * 24 * time.Hour
	olderThan       = 30 * 24 * time.Hour
	recentLimit     = 10
	olderLimit      = 50
	minRecent       = 2
	minOlder        = 3
	noRecentMessage = "Not enough recent bookmarks for suggestions"
	noOlderMessage  = "Not enough old bookmarks for suggestions"
)

// Resurfacer picks older bookmarks related to recent ones.
type Resurfacer interface {
	Resurface(ctx context.Context, recent, older []llm.Brief) ([]llm.Suggestion, error)
}

type Resurfaced struct {
	db.Bookmark
	Reason string `json:"resurface_reason"`
}

// ResurfaceResult carries the suggestions, or a message saying why there are none.
type ResurfaceResult struct {
	Message     string       `json:"message,omitempty"`
	Suggestions []Resurfaced `json:"suggestions"`
}

// Resurface suggests completed bookmarks older than 30 days that relate to
// what was saved in the last 14 days, relative to now.
func (s *Service) Resurface(ctx context.Context, now time.Time) (*ResurfaceResult, error) {
	r, ok := s.synth.(Resurfacer)
	if !ok {
		return nil, ErrNoSynthesizer
	}

	recent, err := s.store.CompletedSince(now.Add(-recentWindow), recentLimit)
	if err != nil {
		return nil, storeError(err)
	}
	if len(recent) < minRecent {
		return &ResurfaceResult{Message: noRecentMessage, Suggestions: []Resurfaced{}}, nil
	}
	older, err := s.store.CompletedBefore(now.Add(-olderThan), olderLimit)
	if err != nil {
		return nil, storeError(err)
	}
	if len(older) < minOlder {
		return &ResurfaceResult{Message: noOlderMessage, Suggestions: []Resurfaced{}}, nil
	}

	suggestions, err := r.Resurface(ctx, briefs(recent), briefs(older))
	if err != nil {
		return nil, synthesisError(err)
	}

	out := &ResurfaceResult{Suggestions: []Resurfaced{}}
	for _, sug := range suggestions {
		b, err := s.store.Get(sug.BookmarkID)
		if errors.Is(err, db.ErrNotFound) {
			s.logger.Debug("suggested bookmark is gone", zap.String("id", sug.BookmarkID))
			continue
		}
		if err != nil {
			return nil, storeError(err)
		}
		out.Suggestions = append(out.Suggestions, Resurfaced{Bookmark: *b, Reason: sug.Reason})
	}
	return out, nil
}

func briefs(bookmarks []db.Bookmark) []llm.Brief {
	out := make([]llm.Brief, 0, len(bookmarks))
	for _, b := range bookmarks {
		out = append(out, llm.Brief{ID: b.ID, Title: b.CleanTitle, Tags: b.AutoTags, Summary: b.AISummary})
	}
	return out
}
