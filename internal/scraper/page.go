package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/sarathavasarala/markly/internal/config"
	"github.com/sarathavasarala/markly/internal/textutil"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const maxPageBytes = 5 << 20

var (
	reBlankLines = regexp.MustCompile(`\n{3,}`)
	reSpaces     = regexp.MustCompile(` {2,}`)
)

// Tags that never hold the main text.
const boilerplateSelector = "script, style, nav, footer, header, aside, form"

// Main-content regions, most specific first.
var contentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".post-content",
	".article-content",
	".entry-content",
	".content",
	"#content",
}

// pageStrategy downloads the page itself and picks it apart with goquery.
type pageStrategy struct {
	client    *http.Client
	userAgent string
}

func newPageStrategy(client *http.Client, userAgent string) *pageStrategy {
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	return &pageStrategy{client: client, userAgent: userAgent}
}

func (p *pageStrategy) Name() string { return "page" }

func (p *pageStrategy) Extract(ctx context.Context, pageURL string) (*Result, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	utf8Reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	body, err := io.ReadAll(io.LimitReader(utf8Reader, maxPageBytes))
	if err != nil {
		return nil, err
	}

	return parsePage(body, parsedURL)
}

// parsePage pulls title, description, images and main text out of raw HTML.
func parsePage(body []byte, pageURL *url.URL) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	res := &Result{
		Title:        strings.TrimSpace(doc.Find("title").First().Text()),
		Description:  metaContent(doc, `meta[name="description"]`),
		ThumbnailURL: metaContent(doc, `meta[property="og:image"]`),
		FaviconURL:   findFavicon(doc, pageURL),
	}
	if res.Title == "" {
		res.Title = metaContent(doc, `meta[property="og:title"]`)
	}
	if res.Description == "" {
		res.Description = metaContent(doc, `meta[property="og:description"]`)
	}
	if res.Description == "" {
		// Readability's excerpt is the first meaningful paragraph.
		if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
			res.Description = strings.TrimSpace(article.Excerpt)
		}
	}

	doc.Find(boilerplateSelector).Remove()
	res.Content = mainText(doc)

	return res, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

func mainText(doc *goquery.Document) string {
	region := doc.Find("body").First()
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			region = found
			break
		}
	}

	var lines []string
	for _, n := range region.Nodes {
		collectText(n, &lines)
	}
	text := strings.Join(lines, "\n")
	text = reBlankLines.ReplaceAllString(text, "\n\n")
	text = reSpaces.ReplaceAllString(text, " ")
	return textutil.Truncate(strings.TrimSpace(text), MaxContentLen)
}

// collectText appends every non-blank text node under n, one per line.
func collectText(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*lines = append(*lines, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}

// findFavicon resolves the first <link rel="...icon..."> against the page.
func findFavicon(doc *goquery.Document, pageURL *url.URL) string {
	var href string
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		if !strings.Contains(strings.ToLower(rel), "icon") {
			return true
		}
		href, _ = s.Attr("href")
		href = strings.TrimSpace(href)
		return href == ""
	})
	if href == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return pageURL.Scheme + ":" + href
	case strings.HasPrefix(href, "/"):
		return pageURL.Scheme + "://" + pageURL.Host + href
	default:
		return pageURL.Scheme + "://" + pageURL.Host + "/" + href
	}
}
