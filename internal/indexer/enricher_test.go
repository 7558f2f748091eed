package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/llm"
	"github.com/sarathavasarala/markly/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeExtractor struct {
	mu     sync.Mutex
	result *scraper.Result
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, pageURL string) (*scraper.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		domain, _ := scraper.Domain(pageURL)
		return &scraper.Result{
			Title:      "Page " + pageURL,
			Content:    "Body of " + pageURL,
			Domain:     domain,
			FaviconURL: "https://" + domain + "/favicon.ico",
		}, nil
	}
	res := *f.result
	return &res, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSynth struct {
	mu       sync.Mutex
	inputs   []llm.Input
	meta     *llm.Metadata
	err      error
	panicMsg string

	// When gate is set the first call closes started and waits on gate.
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeSynth) Enrich(ctx context.Context, in llm.Input) (*llm.Metadata, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	first := len(f.inputs) == 1
	f.mu.Unlock()

	if first && f.gate != nil {
		close(f.started)
		<-f.gate
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.meta != nil {
		m := *f.meta
		return &m, nil
	}
	return &llm.Metadata{
		CleanTitle:     "Clean " + in.Title,
		AISummary:      "A dense summary.",
		AutoTags:       []string{"go", "concurrency"},
		IntentType:     "reference",
		TechnicalLevel: "intermediate",
		ContentType:    "article",
		KeyQuotes:      []string{},
	}, nil
}

func (f *fakeSynth) calls() []llm.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Input(nil), f.inputs...)
}

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.5, 0.5}, nil
}

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store.WithOwner("alice")
}

func newTestEnricher(store *db.Store, ex Extractor, synth Synthesizer, emb Embedder) *Enricher {
	return newEnricher(store, ex, synth, emb, newBatchRegistry(), zap.NewNop())
}

func seedBookmark(t *testing.T, store *db.Store, b *db.Bookmark) *db.Bookmark {
	t.Helper()
	if b.Status == "" {
		b.Status = db.StatusPending
	}
	require.NoError(t, store.Create(b))
	return b
}

func runJob(e *Enricher, store *db.Store, id string) {
	e.Run(context.Background(), Job{Owner: store.Owner(), BookmarkID: id})
}

func TestEnrichCompletes(t *testing.T) {
	store := newTestStore(t)
	emb := &fakeEmbedder{}
	e := newTestEnricher(store, &fakeExtractor{}, &fakeSynth{}, emb)
	b := seedBookmark(t, store, &db.Bookmark{URL: "https://go.dev/blog/pipelines", RawNotes: "read later"})

	runJob(e, store, b.ID)

	got, err := store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, got.Status)
	assert.Nil(t, got.EnrichmentError)
	assert.Equal(t, "Clean Page https://go.dev/blog/pipelines", got.CleanTitle)
	assert.Equal(t, "A dense summary.", got.AISummary)
	assert.Equal(t, db.StringList{"go", "concurrency"}, got.AutoTags)
	assert.Equal(t, "go.dev", got.Domain)
	assert.Equal(t, "https://go.dev/favicon.ico", got.FaviconURL)
	assert.Equal(t, "Body of https://go.dev/blog/pipelines", got.ContentExtract)

	require.Len(t, emb.texts, 1)
	assert.Equal(t, "Clean Page https://go.dev/blog/pipelines A dense summary. go concurrency read later", emb.texts[0])
	vec, err := store.GetEmbedding(b.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
}

func TestEnrichPassesFoldersAndNotes(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateFolder("Reading")
	require.NoError(t, err)
	synth := &fakeSynth{}
	e := newTestEnricher(store, &fakeExtractor{}, synth, nil)
	b := seedBookmark(t, store, &db.Bookmark{URL: "https://example.com/a", RawNotes: "for the talk"})

	runJob(e, store, b.ID)

	calls := synth.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"Reading"}, calls[0].Folders)
	assert.Equal(t, "for the talk", calls[0].UserNotes)
	assert.False(t, calls[0].UseNano)
}

func TestEnrichUserDescriptionSkipsExtraction(t *testing.T) {
	store := newTestStore(t)
	ex := &fakeExtractor{}
	synth := &fakeSynth{}
	e := newTestEnricher(store, ex, synth, nil)
	b := seedBookmark(t, store, &db.Bookmark{
		URL:             "https://app.example.com/dashboard",
		Domain:          "app.example.com",
		OriginalTitle:   "My dashboard",
		FaviconURL:      scraper.FaviconServiceURL("app.example.com"),
		UserDescription: "Internal dashboard for tracking deploys.",
	})

	runJob(e, store, b.ID)

	assert.Equal(t, 0, ex.callCount())
	calls := synth.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Internal dashboard for tracking deploys.", calls[0].Content)
	assert.Equal(t, "My dashboard", calls[0].Title)

	got, err := store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, got.Status)
	assert.Nil(t, got.EnrichmentError)
	assert.Equal(t, "app.example.com", got.Domain)
}

func TestEnrichWithoutContentRecordsAdvisory(t *testing.T) {
	store := newTestStore(t)
	ex := &fakeExtractor{result: &scraper.Result{Title: "Only a title", Domain: "example.com"}}
	synth := &fakeSynth{}
	e := newTestEnricher(store, ex, synth, nil)
	b := seedBookmark(t, store, &db.Bookmark{URL: "https://example.com/spa"})

	runJob(e, store, b.ID)

	got, err := store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, got.Status)
	require.NotNil(t, got.EnrichmentError)
	assert.Equal(t, scrapeAdvisory, *got.EnrichmentError)
	assert.Equal(t, "Only a title", synth.calls()[0].Title)
	assert.Empty(t, synth.calls()[0].Content)
}

func TestEnrichExtractionErrorDegrades(t *testing.T) {
	store := newTestStore(t)
	ex := &fakeExtractor{err: errors.New("connection refused")}
	synth := &fakeSynth{}
	e := newTestEnricher(store, ex, synth, nil)
	b := seedBookmark(t, store, &db.Bookmark{URL: "https://www.example.org/post"})

	runJob(e, store, b.ID)

	calls := synth.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://www.example.org/post", calls[0].Title)

	got, err := store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, got.Status)
	assert.Equal(t, "example.org", got.Domain)
	assert.Equal(t, scraper.FaviconServiceURL("example.org"), got.FaviconURL)
	require.NotNil(t, got.EnrichmentError)
}

func TestEnrichSynthesisFailure(t *testing.T) {
	store := newTestStore(t)
	synth := &fakeSynth{err: errors.New(strings.Repeat("upstream exploded ", 100))}
	emb := &fakeEmbedder{}
	e := newTestEnricher(store, &fakeExtractor{}, synth, emb)
	b := seedBookmark(t, store, &db.Bookmark{URL: "https://example.com/a"})

	runJob(e, store, b.ID)

	got, err := store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, got.Status)
	require.NotNil(t, got.EnrichmentError)
	assert.True(t, strings.HasPrefix(*got.EnrichmentError, "SynthesisError: upstream exploded"))
	assert.LessOrEqual(t, len([]rune(*got.EnrichmentError)), MaxErrorLen)
	assert.Empty(t, got.CleanTitle)
	assert.Empty(t, emb.texts)
}

func TestEnrichSynthesisTimeout(t *testing.T) {
	store := newTestStore(t)
	synth := &fakeSynth{err: fmt.Errorf("chat completion (gpt-4o-mini): %w", context.DeadlineExceeded)}
	e := newTestEnricher(store, &fakeExtractor{}, synth, nil)
	b := seedBookmark(t, store, &db.Bookmark{URL: "https://example.com/slow"})

	runJob(e, store, b.ID)

	got, err := store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, got.Status)
	require.NotNil(t, got.EnrichmentError)
	assert.True(t, strings.HasPrefix(*got.EnrichmentError, "TimeoutError: "))
}

func TestEnrichRecoversPanics(t *testing.T) {
	store := newTestStore(t)
	e := newTestEnricher(store, &fakeExtractor{}, &fakeSynth{panicMsg: "nil map"}, nil)
	b := seedBookmark(t, store, &db.Bookmark{URL: "https://example.com/p"})

	assert.NotPanics(t, func() { runJob(e, store, b.ID) })

	got, err := store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, got.Status)
	require.NotNil(t, got.EnrichmentError)
	assert.Equal(t, "PanicError: nil map", *got.EnrichmentError)
}

func TestEnrichMissingBookmark(t *testing.T) {
	store := newTestStore(t)
	synth := &fakeSynth{}
	e := newTestEnricher(store, &fakeExtractor{}, synth, nil)

	assert.NotPanics(t, func() { runJob(e, store, "does-not-exist") })
	assert.Empty(t, synth.calls())
}

func TestRetryAfterFailureClearsError(t *testing.T) {
	store := newTestStore(t)
	synth := &fakeSynth{err: errors.New("rate limited")}
	e := newTestEnricher(store, &fakeExtractor{}, synth, nil)
	b := seedBookmark(t, store, &db.Bookmark{URL: "https://example.com/retry"})

	runJob(e, store, b.ID)
	got, err := store.Get(b.ID)
	require.NoError(t, err)
	require.Equal(t, db.StatusFailed, got.Status)

	synth.mu.Lock()
	synth.err = nil
	synth.mu.Unlock()
	require.NoError(t, store.ResetForRetry(b.ID))
	runJob(e, store, b.ID)

	got, err = store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, got.Status)
	assert.Nil(t, got.EnrichmentError)
}

func TestEmbeddingSkippedWhenTextEmpty(t *testing.T) {
	store := newTestStore(t)
	emb := &fakeEmbedder{}
	synth := &fakeSynth{meta: &llm.Metadata{IntentType: "reference", TechnicalLevel: "general", ContentType: "article"}}
	e := newTestEnricher(store, &fakeExtractor{}, synth, emb)
	b := seedBookmark(t, store, &db.Bookmark{URL: "https://example.com/empty"})

	runJob(e, store, b.ID)

	assert.Empty(t, emb.texts)
	got, err := store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, got.Status)
}

func TestEmbeddingFailureKeepsCompleted(t *testing.T) {
	store := newTestStore(t)
	emb := &fakeEmbedder{err: errors.New("quota exceeded")}
	e := newTestEnricher(store, &fakeExtractor{}, &fakeSynth{}, emb)
	b := seedBookmark(t, store, &db.Bookmark{URL: "https://example.com/emb"})

	runJob(e, store, b.ID)

	got, err := store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, got.Status)
	assert.Nil(t, got.EnrichmentError)
	assert.Len(t, emb.texts, 1)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "EnrichmentError: boom", failureMessage(errors.New("boom")))
	assert.Equal(t, "StoreError: disk full", failureMessage(storeError(errors.New("disk full"))))
	assert.Equal(t, "NotFoundError: bookmark x: not found", failureMessage(lookupError(fmt.Errorf("bookmark x: %w", db.ErrNotFound))))
	assert.Len(t, []rune(failureMessage(errors.New(strings.Repeat("é", 900)))), MaxErrorLen)
	assert.ErrorIs(t, &cancelError{status: db.ItemCanceled}, ErrCanceled)
}
