package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sarathavasarala/markly/internal/textutil"
)

// Field limits of a synthesized record.
const (
	MaxTitleLen   = 60
	MaxSummaryLen = 220
	MaxTags       = 5
	MaxQuotes     = 3
	MaxQuoteLen   = 300
)

// Closed enumerations and their defaults.
var (
	IntentTypes     = []string{"reference", "tutorial", "inspiration", "deep-dive", "tool"}
	TechnicalLevels = []string{"beginner", "intermediate", "advanced", "general"}
	ContentTypes    = []string{"article", "documentation", "video", "tool", "paper", "other"}
)

const (
	DefaultIntentType     = "reference"
	DefaultTechnicalLevel = "general"
	DefaultContentType    = "article"
	defaultSummary        = "No summary available."
	defaultTitle          = "Untitled"
	fallbackTag           = "uncategorized"
)

// Metadata is a validated synthesis result. Every field satisfies its
// length, count and enumeration constraint.
type Metadata struct {
	CleanTitle      string   `json:"clean_title"`
	AISummary       string   `json:"ai_summary"`
	AutoTags        []string `json:"auto_tags"`
	IntentType      string   `json:"intent_type"`
	TechnicalLevel  string   `json:"technical_level"`
	ContentType     string   `json:"content_type"`
	KeyQuotes       []string `json:"key_quotes"`
	SuggestedFolder *string  `json:"suggested_folder"`
}

// parseMetadata turns untrusted model output into a valid record. It never
// fails: unparseable output yields defaults derived from the input.
func parseMetadata(raw string, in Input) *Metadata {
	fields := map[string]interface{}{}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &fields); err != nil {
		fields = map[string]interface{}{}
	}

	title := textutil.Truncate(strings.TrimSpace(in.Title), MaxTitleLen)
	if title == "" {
		title = defaultTitle
	}

	m := &Metadata{
		CleanTitle:     textutil.Truncate(stringField(fields, "clean_title"), MaxTitleLen),
		AISummary:      textutil.Truncate(stringField(fields, "ai_summary"), MaxSummaryLen),
		AutoTags:       NormalizeTags(listField(fields, "auto_tags"), MaxTags),
		IntentType:     enumField(fields, "intent_type", IntentTypes, DefaultIntentType),
		TechnicalLevel: enumField(fields, "technical_level", TechnicalLevels, DefaultTechnicalLevel),
		ContentType:    enumField(fields, "content_type", ContentTypes, DefaultContentType),
	}
	if m.CleanTitle == "" {
		m.CleanTitle = title
	}
	if m.AISummary == "" {
		m.AISummary = defaultSummary
	}
	if len(m.AutoTags) == 0 {
		m.AutoTags = []string{fallbackTagFor(in.URL)}
	}

	for _, q := range listField(fields, "key_quotes") {
		if len(m.KeyQuotes) == MaxQuotes {
			break
		}
		if q = strings.TrimSpace(q); q != "" {
			m.KeyQuotes = append(m.KeyQuotes, textutil.Truncate(q, MaxQuoteLen))
		}
	}
	if m.KeyQuotes == nil {
		m.KeyQuotes = []string{}
	}

	if folder := stringField(fields, "suggested_folder"); folder != "" {
		for _, f := range in.Folders {
			if f == folder {
				m.SuggestedFolder = &folder
				break
			}
		}
	}

	return m
}

// Baseline is the metadata of a bookmark saved without asking the model.
// The description stands in for the summary and the given tags are kept;
// everything else takes the same defaults as an empty model reply.
func Baseline(pageURL, title, description string, tags []string) *Metadata {
	m := parseMetadata("", Input{URL: pageURL, Title: title})
	if desc := textutil.Truncate(textutil.FirstLine(description), MaxSummaryLen); desc != "" {
		m.AISummary = desc
	}
	if normalized := NormalizeTags(tags, MaxTags); len(normalized) > 0 {
		m.AutoTags = normalized
	}
	return m
}

// NormalizeTags lowercases and hyphenates tags, drops blanks and duplicates
// and keeps at most limit (limit <= 0 keeps all).
func NormalizeTags(tags []string, limit int) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		t := strings.Join(strings.Fields(strings.ToLower(tag)), "-")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// fallbackTagFor names the site when the model gave no usable tags.
func fallbackTagFor(pageURL string) string {
	host := pageURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/:?#"); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	labels := strings.Split(host, ".")
	if len(labels) >= 2 && labels[len(labels)-2] != "" {
		return NormalizeTags([]string{labels[len(labels)-2]}, 1)[0]
	}
	return fallbackTag
}

func stringField(fields map[string]interface{}, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// listField accepts an array of scalars or a comma separated string.
func listField(fields map[string]interface{}, key string) []string {
	switch v := fields[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case float64, bool:
				out = append(out, fmt.Sprint(s))
			}
		}
		return out
	case string:
		return strings.Split(v, ",")
	default:
		return nil
	}
}

func enumField(fields map[string]interface{}, key string, allowed []string, def string) string {
	v := strings.ToLower(stringField(fields, key))
	for _, a := range allowed {
		if v == a {
			return a
		}
	}
	return def
}

// stripCodeFence removes a ```json fence some models add despite being told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
