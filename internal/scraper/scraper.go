// Package scraper extracts best-effort page metadata and main text for a URL
// by running a remote reader service and local HTML parsing side by side.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sarathavasarala/markly/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxContentLen caps the text kept from a single strategy.
const MaxContentLen = 15000

const faviconServiceURL = "https://www.google.com/s2/favicons?domain=%s&sz=64"

// ErrInvalidURL is returned for URLs without a host.
var ErrInvalidURL = errors.New("invalid url")

// Result is what the extractor learned about a page. Empty fields mean the
// value could not be found.
type Result struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Content      string `json:"content,omitempty"`
	FaviconURL   string `json:"favicon_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Domain       string `json:"domain"`
}

// strategy is one way of looking at a page.
type strategy interface {
	Name() string
	Extract(ctx context.Context, pageURL string) (*Result, error)
}

// Extractor runs the reader and page strategies concurrently and merges them.
type Extractor struct {
	reader  strategy
	page    strategy
	timeout time.Duration
	logger  *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Extractor {
	timeout := cfg.Scraper.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	e := &Extractor{
		page:    newPageStrategy(client, cfg.Scraper.UserAgent),
		timeout: timeout,
		logger:  logger,
	}
	if cfg.Reader.APIKey != "" {
		e.reader = newReaderStrategy(client, cfg.Reader.BaseURL, cfg.Reader.APIKey)
	}
	return e
}

// Extract never fails because of the network. The only error is a URL with
// no host, in which case nothing was fetched.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*Result, error) {
	domain, err := Domain(pageURL)
	if err != nil {
		return nil, err
	}

	var fromReader, fromPage *Result
	var g errgroup.Group
	if e.reader != nil {
		g.Go(func() error {
			fromReader = e.run(ctx, e.reader, pageURL)
			return nil
		})
	}
	g.Go(func() error {
		fromPage = e.run(ctx, e.page, pageURL)
		return nil
	})
	_ = g.Wait()

	result := merge(fromReader, fromPage)
	result.Domain = domain
	if result.FaviconURL == "" && domain != "" {
		result.FaviconURL = FaviconServiceURL(domain)
	}
	return result, nil
}

func (e *Extractor) run(ctx context.Context, s strategy, pageURL string) *Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.Extract(ctx, pageURL)
	if err != nil {
		e.logger.Warn("extraction strategy failed",
			zap.String("strategy", s.Name()),
			zap.String("url", pageURL),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil
	}
	e.logger.Debug("extraction strategy finished",
		zap.String("strategy", s.Name()),
		zap.String("url", pageURL),
		zap.Int("content_len", len(res.Content)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res
}

// merge prefers the reader's value for every field and falls back to the
// page's. Either side may be nil.
func merge(primary, secondary *Result) *Result {
	if primary == nil {
		primary = &Result{}
	}
	if secondary == nil {
		secondary = &Result{}
	}
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	return &Result{
		Title:        pick(primary.Title, secondary.Title),
		Description:  pick(primary.Description, secondary.Description),
		Content:      pick(primary.Content, secondary.Content),
		FaviconURL:   pick(primary.FaviconURL, secondary.FaviconURL),
		ThumbnailURL: pick(primary.ThumbnailURL, secondary.ThumbnailURL),
	}
}

// Domain is the host of pageURL without a leading "www.".
func Domain(pageURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, pageURL)
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www."), nil
}

// FaviconServiceURL is the third-party favicon for domain.
func FaviconServiceURL(domain string) string {
	return fmt.Sprintf(faviconServiceURL, domain)
}
