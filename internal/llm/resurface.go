package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	resurfaceMaxTokens  = 500
	maxSuggestions      = 5
	briefSummaryLen     = 100
	defaultResurfaceWhy = "Related to your recent bookmarks"
)

const resurfaceSystemPrompt = "You are a helpful assistant that identifies relevant past bookmarks. " +
	"Always respond with valid JSON only."

const resurfacePrompt = `Based on the user's recent bookmarks, suggest older bookmarks they might want to revisit.

Recent Bookmarks:
%s

Older Bookmarks to Consider:
%s

Return a JSON object with a "suggestions" array. Each suggestion should have:
- bookmark_id: The ID of the old bookmark to resurface
- reason: A brief explanation of why this is relevant (1 sentence)

Select 3-5 old bookmarks that relate to the recent topics or could be helpful given the user's current interests.

Return ONLY valid JSON, no markdown formatting.`

// Brief is the part of a bookmark shown to the model when picking
// bookmarks to resurface.
type Brief struct {
	ID      string   `json:"id,omitempty"`
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
}

// Suggestion names an older bookmark worth revisiting.
type Suggestion struct {
	BookmarkID string `json:"bookmark_id"`
	Reason     string `json:"reason"`
}

// Resurface asks the model which of older relate to recent. Only ids from
// older come back, at most five, in the model's order. Malformed output
// yields no suggestions and no error.
func (s *Synthesizer) Resurface(ctx context.Context, recent, older []Brief) ([]Suggestion, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt, err := buildResurfacePrompt(recent, older)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := s.chat.Complete(ctx, s.model, resurfaceSystemPrompt, prompt, resurfaceMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("chat completion (%s): %w", s.model, err)
	}

	suggestions := parseSuggestions(raw, older)
	s.logger.Debug("resurface finished",
		zap.Int("recent", len(recent)),
		zap.Int("older", len(older)),
		zap.Int("suggestions", len(suggestions)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return suggestions, nil
}

func buildResurfacePrompt(recent, older []Brief) (string, error) {
	recentBriefs := make([]Brief, 0, len(recent))
	for _, b := range recent {
		b.ID = ""
		recentBriefs = append(recentBriefs, shortBrief(b))
	}
	olderBriefs := make([]Brief, 0, len(older))
	for _, b := range older {
		olderBriefs = append(olderBriefs, shortBrief(b))
	}

	recentJSON, err := json.MarshalIndent(recentBriefs, "", "  ")
	if err != nil {
		return "", err
	}
	olderJSON, err := json.MarshalIndent(olderBriefs, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(resurfacePrompt, recentJSON, olderJSON), nil
}

func shortBrief(b Brief) Brief {
	if runes := []rune(b.Summary); len(runes) > briefSummaryLen {
		b.Summary = string(runes[:briefSummaryLen])
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return b
}

func parseSuggestions(raw string, older []Brief) []Suggestion {
	var reply struct {
		Suggestions []struct {
			BookmarkID interface{} `json:"bookmark_id"`
			Reason     interface{} `json:"reason"`
		} `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &reply); err != nil {
		return nil
	}

	known := make(map[string]bool, len(older))
	for _, b := range older {
		known[b.ID] = true
	}

	var out []Suggestion
	seen := make(map[string]bool)
	for _, s := range reply.Suggestions {
		id, _ := s.BookmarkID.(string)
		id = strings.TrimSpace(id)
		if !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		reason, _ := s.Reason.(string)
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = defaultResurfaceWhy
		}
		out = append(out, Suggestion{BookmarkID: id, Reason: reason})
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
