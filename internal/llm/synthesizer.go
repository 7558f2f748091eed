// Package llm turns page content into validated bookmark metadata and
// embedding vectors using a chat-completion model.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sarathavasarala/markly/internal/config"
	"github.com/sarathavasarala/markly/internal/textutil"
	"go.uber.org/zap"
)

const (
	shapeThreshold = 4000
	shapeKeep      = 2000
	shapeMarker    = "\n\n[... middle content truncated ...]\n\n"
)

const systemPrompt = "You are a helpful assistant that analyzes web content and provides structured metadata. " +
	"Always respond with valid JSON only."

const enrichPrompt = `Analyze this bookmarked article and provide structured metadata.
If the content is missing or sparse, use the URL and title to infer the most likely metadata.

CONTEXT:
URL: %s
Title: %s
Content: %s
User Notes: %s
Available Folders: %s

TASK:
Provide a JSON object with strictly these fields:
1. "clean_title": A clean, concise title (max 60 chars). Remove clickbait or site names if redundant.
2. "ai_summary": A single, dense summary (max 220 chars). Focus on "What is this?" and "Why save it?". No fluff.
3. "auto_tags": Array (3-5 items). Lowercase, hyphenated (e.g. "ai-agents", "python-dev").
4. "intent_type": EXACTLY one of: ["reference", "tutorial", "inspiration", "deep-dive", "tool"]
5. "technical_level": EXACTLY one of: ["beginner", "intermediate", "advanced", "general"]
6. "content_type": EXACTLY one of: ["article", "documentation", "video", "tool", "paper", "other"]
7. "key_quotes": Array (0-3 short, impactful quotes). Leave empty if no specific quotes stand out.
8. "suggested_folder": EXACT NAME from 'Available Folders' or null if no fit.

OUTPUT FORMAT:
Return ONLY valid JSON. No markdown, no pre-amble, no code blocks.`

// Input is what the synthesizer knows about a bookmark.
type Input struct {
	URL       string
	Title     string
	Content   string
	UserNotes string
	Folders   []string
	// UseNano asks for the cheap model when one is configured.
	UseNano bool
}

// Synthesizer asks a chat model for structured metadata.
type Synthesizer struct {
	chat      chatClient
	model     string
	nanoModel string
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
}

func NewSynthesizer(cfg config.LLMConfig, logger *zap.Logger) (*Synthesizer, error) {
	chat, err := newChatClient(cfg)
	if err != nil {
		return nil, err
	}
	return newSynthesizer(chat, cfg, logger), nil
}

func newSynthesizer(chat chatClient, cfg config.LLMConfig, logger *zap.Logger) *Synthesizer {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &Synthesizer{
		chat:      chat,
		model:     cfg.Model,
		nanoModel: cfg.NanoModel,
		maxTokens: maxTokens,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
}

// Model returns the model a request with useNano would go to.
func (s *Synthesizer) Model(useNano bool) string {
	if useNano && s.nanoModel != "" {
		return s.nanoModel
	}
	return s.model
}

// Enrich returns validated metadata for in. Transport and API errors are
// returned; malformed model output is not an error.
func (s *Synthesizer) Enrich(ctx context.Context, in Input) (*Metadata, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	model := s.Model(in.UseNano)
	start := time.Now()
	raw, err := s.chat.Complete(ctx, model, systemPrompt, buildPrompt(in), s.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("chat completion (%s): %w", model, err)
	}

	s.logger.Debug("synthesis finished",
		zap.String("url", in.URL),
		zap.String("model", model),
		zap.Int("response_len", len(raw)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return parseMetadata(raw, in), nil
}

func buildPrompt(in Input) string {
	title := orDefault(in.Title, "Unknown")
	content := orDefault(ShapeContent(in.Content), "No content extracted")
	notes := orDefault(in.UserNotes, "None provided")
	folders := "None created yet"
	if len(in.Folders) > 0 {
		folders = strings.Join(in.Folders, ", ")
	}
	return fmt.Sprintf(enrichPrompt, in.URL, title, content, notes, folders)
}

// ShapeContent keeps the head and tail of long content and drops the middle.
func ShapeContent(content string) string {
	runes := []rune(content)
	if len(runes) <= shapeThreshold {
		return content
	}
	return string(runes[:shapeKeep]) + shapeMarker + string(runes[len(runes)-shapeKeep:])
}

// EmbeddingText is the text a bookmark is embedded from. It is empty when
// there is nothing to embed.
func EmbeddingText(title, summary string, tags []string, notes string) string {
	return textutil.JoinNonEmpty(title, summary, strings.Join(tags, " "), notes)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
