package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sarathavasarala/markly/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const samplePage = `<!doctype html>
<html><head>
<title> Sample Page </title>
<meta name="description" content="A page about samples.">
<meta property="og:image" content="https://cdn.example.com/cover.png">
<link rel="shortcut icon" href="/static/favicon.ico">
<script>var tracking = true;</script>
</head><body>
<nav>Home | About</nav>
<article>
  <h1>Samples</h1>
  <p>First    paragraph.</p>
  <p>Second paragraph.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func newTestConfig(readerURL, readerKey string) *config.Config {
	return &config.Config{
		Reader:  config.ReaderConfig{BaseURL: readerURL, APIKey: readerKey},
		Scraper: config.ScraperConfig{Timeout: 2 * time.Second},
	}
}

func TestParsePage(t *testing.T) {
	u, _ := url.Parse("https://www.example.com/posts/1")
	res, err := parsePage([]byte(samplePage), u)
	require.NoError(t, err)

	assert.Equal(t, "Sample Page", res.Title)
	assert.Equal(t, "A page about samples.", res.Description)
	assert.Equal(t, "https://cdn.example.com/cover.png", res.ThumbnailURL)
	assert.Equal(t, "https://www.example.com/static/favicon.ico", res.FaviconURL)
	assert.Equal(t, "Samples\nFirst paragraph.\nSecond paragraph.", res.Content)
	assert.NotContains(t, res.Content, "tracking")
	assert.NotContains(t, res.Content, "Copyright")
}

func TestParsePageFallbacks(t *testing.T) {
	page := `<html><head>
<meta property="og:title" content="OG Title">
<meta property="og:description" content="OG description">
<link rel="icon" href="img/icon.png">
</head><body><div>Body text only</div></body></html>`

	u, _ := url.Parse("https://example.com/a/b")
	res, err := parsePage([]byte(page), u)
	require.NoError(t, err)

	assert.Equal(t, "OG Title", res.Title)
	assert.Equal(t, "OG description", res.Description)
	assert.Equal(t, "https://example.com/img/icon.png", res.FaviconURL)
	assert.Equal(t, "Body text only", res.Content)
}

func TestParsePageTruncatesContent(t *testing.T) {
	page := "<html><body><main><p>" + strings.Repeat("word ", 5000) + "</p></main></body></html>"
	u, _ := url.Parse("https://example.com/")
	res, err := parsePage([]byte(page), u)
	require.NoError(t, err)
	assert.Len(t, []rune(res.Content), MaxContentLen)
}

func TestFindFaviconForms(t *testing.T) {
	u, _ := url.Parse("https://example.com/deep/page")
	cases := map[string]string{
		"https://cdn.example.com/f.ico": "https://cdn.example.com/f.ico",
		"//cdn.example.com/f.ico":       "https://cdn.example.com/f.ico",
		"/f.ico":                        "https://example.com/f.ico",
		"f.ico":                         "https://example.com/f.ico",
	}
	for href, want := range cases {
		res, err := parsePage([]byte(`<html><head><link rel="icon" href="`+href+`"></head><body></body></html>`), u)
		require.NoError(t, err)
		assert.Equal(t, want, res.FaviconURL, href)
	}
}

func TestExtractMergesReaderFirst(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, config.DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	}))
	defer page.Close()

	reader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/"+url.QueryEscape(page.URL), r.URL.EscapedPath())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"data":{"title":"Reader Title","description":"","content":"Reader content"}}`))
	}))
	defer reader.Close()

	e := New(newTestConfig(reader.URL, "secret"), zap.NewNop())
	res, err := e.Extract(context.Background(), page.URL)
	require.NoError(t, err)

	assert.Equal(t, "Reader Title", res.Title)
	assert.Equal(t, "A page about samples.", res.Description)
	assert.Equal(t, "Reader content", res.Content)
	assert.Equal(t, "https://cdn.example.com/cover.png", res.ThumbnailURL)
	assert.Equal(t, page.URL+"/static/favicon.ico", res.FaviconURL)
	assert.Equal(t, strings.TrimPrefix(page.URL, "http://"), res.Domain)
}

func TestExtractFlatReaderPayload(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer page.Close()

	reader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title":"Flat","content":"Flat content"}`))
	}))
	defer reader.Close()

	e := New(newTestConfig(reader.URL, "secret"), zap.NewNop())
	res, err := e.Extract(context.Background(), page.URL)
	require.NoError(t, err)
	assert.Equal(t, "Flat", res.Title)
	assert.Equal(t, "Flat content", res.Content)
}

func TestExtractContentPrefersNonEmpty(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer page.Close()

	reader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"title":"Reader Title","content":""}}`))
	}))
	defer reader.Close()

	e := New(newTestConfig(reader.URL, "secret"), zap.NewNop())
	res, err := e.Extract(context.Background(), page.URL)
	require.NoError(t, err)
	assert.Equal(t, "Reader Title", res.Title)
	assert.Contains(t, res.Content, "First paragraph.")
}

func TestExtractNeverFailsOnNetwork(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	e := New(newTestConfig(deadURL, "secret"), zap.NewNop())
	res, err := e.Extract(context.Background(), "http://www.unreachable.test/page")
	require.NoError(t, err)

	assert.Equal(t, "unreachable.test", res.Domain)
	assert.Empty(t, res.Content)
	assert.Empty(t, res.Title)
	assert.Equal(t, "https://www.google.com/s2/favicons?domain=unreachable.test&sz=64", res.FaviconURL)
}

func TestExtractReaderDisabledWithoutKey(t *testing.T) {
	called := false
	reader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer reader.Close()
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer page.Close()

	e := New(newTestConfig(reader.URL, ""), zap.NewNop())
	res, err := e.Extract(context.Background(), page.URL)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, "Sample Page", res.Title)
}

func TestExtractInvalidURL(t *testing.T) {
	e := New(newTestConfig("", ""), zap.NewNop())
	_, err := e.Extract(context.Background(), "not a url")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestDomain(t *testing.T) {
	d, err := Domain("https://www.Example.com/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", d)

	d, err = Domain("http://localhost:8080/x")
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", d)
}
