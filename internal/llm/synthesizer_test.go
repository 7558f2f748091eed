package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sarathavasarala/markly/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOpenAI serves the two OpenAI endpoints the pipeline uses and records
// the last chat request.
type fakeOpenAI struct {
	*httptest.Server
	mu       sync.Mutex
	lastChat map[string]interface{}
	reply    string
	delay    time.Duration
}

func newFakeOpenAI(t *testing.T, reply string) *fakeOpenAI {
	f := &fakeOpenAI{reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.lastChat = body
		f.mu.Unlock()
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  body["model"],
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]interface{}{"role": "assistant", "content": f.reply},
			}},
		})
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  body["model"],
			"data": []map[string]interface{}{{
				"object":    "embedding",
				"index":     0,
				"embedding": []float32{0.1, 0.2, 0.3},
			}},
		})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOpenAI) last() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastChat
}

func testLLMConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		NanoModel: "gpt-4.1-nano",
		BaseURL:   baseURL + "/v1",
		APIKey:    "test-key",
		MaxTokens: 1000,
		Timeout:   5 * time.Second,
	}
}

func TestEnrichSendsStructuredRequest(t *testing.T) {
	fake := newFakeOpenAI(t, `{"clean_title":"Hello","ai_summary":"World.","auto_tags":["greeting"],
		"intent_type":"reference","technical_level":"general","content_type":"article","key_quotes":[]}`)

	s, err := NewSynthesizer(testLLMConfig(fake.URL), zap.NewNop())
	require.NoError(t, err)

	m, err := s.Enrich(context.Background(), Input{
		URL:       "https://example.com/hello",
		Title:     "Hello page",
		Content:   "Some content",
		UserNotes: "read later",
		Folders:   []string{"Inbox", "Work"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", m.CleanTitle)

	req := fake.last()
	assert.Equal(t, "gpt-4o-mini", req["model"])
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, req["response_format"])
	assert.EqualValues(t, 1000, req["max_completion_tokens"])

	messages := req["messages"].([]interface{})
	require.Len(t, messages, 2)
	system := messages[0].(map[string]interface{})
	user := messages[1].(map[string]interface{})
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "valid JSON only")
	prompt := user["content"].(string)
	assert.Contains(t, prompt, "URL: https://example.com/hello")
	assert.Contains(t, prompt, "User Notes: read later")
	assert.Contains(t, prompt, "Available Folders: Inbox, Work")
}

func TestEnrichNanoModel(t *testing.T) {
	fake := newFakeOpenAI(t, `{}`)

	s, err := NewSynthesizer(testLLMConfig(fake.URL), zap.NewNop())
	require.NoError(t, err)
	_, err = s.Enrich(context.Background(), Input{URL: "https://example.com", UseNano: true})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-nano", fake.last()["model"])

	cfg := testLLMConfig(fake.URL)
	cfg.NanoModel = ""
	s, err = NewSynthesizer(cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Enrich(context.Background(), Input{URL: "https://example.com", UseNano: true})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", fake.last()["model"])
}

func TestEnrichMalformedReplyIsNotAnError(t *testing.T) {
	fake := newFakeOpenAI(t, "I cannot help with that.")

	s, err := NewSynthesizer(testLLMConfig(fake.URL), zap.NewNop())
	require.NoError(t, err)
	m, err := s.Enrich(context.Background(), Input{URL: "https://example.com", Title: "Example"})
	require.NoError(t, err)
	assertValid(t, m)
	assert.Equal(t, "Example", m.CleanTitle)
}

func TestEnrichTimeout(t *testing.T) {
	fake := newFakeOpenAI(t, `{}`)
	fake.delay = 2 * time.Second

	cfg := testLLMConfig(fake.URL)
	cfg.Timeout = 50 * time.Millisecond
	s, err := NewSynthesizer(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = s.Enrich(context.Background(), Input{URL: "https://example.com"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnrichAPIErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
	}))
	defer srv.Close()

	s, err := NewSynthesizer(testLLMConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)
	_, err = s.Enrich(context.Background(), Input{URL: "https://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestNewSynthesizerRequiresKey(t *testing.T) {
	_, err := NewSynthesizer(config.LLMConfig{Provider: "openai"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewSynthesizer(config.LLMConfig{Provider: "bogus", APIKey: "k"}, zap.NewNop())
	assert.Error(t, err)
}

func TestShapeContent(t *testing.T) {
	short := strings.Repeat("a", 4000)
	assert.Equal(t, short, ShapeContent(short))

	long := strings.Repeat("h", 2000) + strings.Repeat("x", 3000) + strings.Repeat("t", 2000)
	shaped := ShapeContent(long)
	assert.True(t, strings.HasPrefix(shaped, strings.Repeat("h", 2000)+"\n\n[... middle content truncated ...]\n\n"))
	assert.True(t, strings.HasSuffix(shaped, strings.Repeat("t", 2000)))
	assert.NotContains(t, shaped, "x")
}

func TestEmbeddingText(t *testing.T) {
	assert.Equal(t, "Title Summary go rust notes", EmbeddingText("Title", "Summary", []string{"go", "rust"}, "notes"))
	assert.Equal(t, "", EmbeddingText("", " ", nil, ""))
}

func TestCleanAzureEndpoint(t *testing.T) {
	assert.Equal(t, "https://x.openai.azure.com", cleanAzureEndpoint("https://x.openai.azure.com/openai/v1/"))
	assert.Equal(t, "https://x.openai.azure.com", cleanAzureEndpoint(" https://x.openai.azure.com/openai "))
}

func TestResurfaceKeepsKnownOlderIDs(t *testing.T) {
	fake := newFakeOpenAI(t, "```json\n"+`{"suggestions":[
		{"bookmark_id":"old-2","reason":"Same topic as your Go reading."},
		{"bookmark_id":"recent-1","reason":"not an older one"},
		{"bookmark_id":"ghost","reason":"made up"},
		{"bookmark_id":"old-2","reason":"duplicate"},
		{"bookmark_id":"old-1"}
	]}`+"\n```")

	s, err := NewSynthesizer(testLLMConfig(fake.URL), zap.NewNop())
	require.NoError(t, err)

	recent := []Brief{
		{ID: "recent-1", Title: "Go generics", Tags: []string{"go"}, Summary: strings.Repeat("s", 150)},
		{ID: "recent-2", Title: "Go iterators", Tags: []string{"go"}},
	}
	older := []Brief{
		{ID: "old-1", Title: "Channels", Tags: []string{"go", "concurrency"}, Summary: "About channels."},
		{ID: "old-2", Title: "Context", Tags: []string{"go"}, Summary: "About context."},
		{ID: "old-3", Title: "Sourdough", Tags: []string{"baking"}, Summary: "Bread."},
	}

	got, err := s.Resurface(context.Background(), recent, older)
	require.NoError(t, err)
	assert.Equal(t, []Suggestion{
		{BookmarkID: "old-2", Reason: "Same topic as your Go reading."},
		{BookmarkID: "old-1", Reason: "Related to your recent bookmarks"},
	}, got)

	req := fake.last()
	assert.EqualValues(t, 500, req["max_completion_tokens"])
	messages := req["messages"].([]interface{})
	system := messages[0].(map[string]interface{})
	assert.Contains(t, system["content"], "relevant past bookmarks")
	prompt := messages[1].(map[string]interface{})["content"].(string)
	assert.Contains(t, prompt, `"id": "old-3"`)
	assert.NotContains(t, prompt, `"id": "recent-1"`)
	assert.Contains(t, prompt, `"summary": "`+strings.Repeat("s", 100)+`"`)
	assert.NotContains(t, prompt, strings.Repeat("s", 101))
}

func TestResurfaceMalformedReplyIsEmpty(t *testing.T) {
	fake := newFakeOpenAI(t, "Sorry, no.")

	s, err := NewSynthesizer(testLLMConfig(fake.URL), zap.NewNop())
	require.NoError(t, err)
	got, err := s.Resurface(context.Background(), []Brief{{ID: "r"}}, []Brief{{ID: "o"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseSuggestionsCapsAtFive(t *testing.T) {
	var older []Brief
	var items []string
	for i := 0; i < 8; i++ {
		id := string(rune('a' + i))
		older = append(older, Brief{ID: id})
		items = append(items, `{"bookmark_id":"`+id+`","reason":"r"}`)
	}
	got := parseSuggestions(`{"suggestions":[`+strings.Join(items, ",")+`]}`, older)
	require.Len(t, got, 5)
	assert.Equal(t, "e", got[4].BookmarkID)
}
