package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sarathavasarala/markly/internal/config"
	"github.com/sarathavasarala/markly/internal/textutil"
)

// readerStrategy asks a hosted reader service (Jina Reader style) for the
// page as JSON.
type readerStrategy struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

type readerPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Image       string `json:"image"`
}

// readerResponse accepts both {"data": {...}} and a flat payload.
type readerResponse struct {
	Data *readerPayload `json:"data"`
	readerPayload
}

func newReaderStrategy(client *http.Client, baseURL, apiKey string) *readerStrategy {
	if baseURL == "" {
		baseURL = config.DefaultReaderURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &readerStrategy{client: client, baseURL: baseURL, apiKey: apiKey}
}

func (r *readerStrategy) Name() string { return "reader" }

func (r *readerStrategy) Extract(ctx context.Context, pageURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+url.QueryEscape(pageURL), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reader returned status %d", resp.StatusCode)
	}

	var body readerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode reader response: %w", err)
	}

	payload := body.readerPayload
	if body.Data != nil {
		payload = *body.Data
	}

	return &Result{
		Title:        strings.TrimSpace(payload.Title),
		Description:  strings.TrimSpace(payload.Description),
		Content:      textutil.Truncate(strings.TrimSpace(payload.Content), MaxContentLen),
		ThumbnailURL: payload.Image,
	}, nil
}
