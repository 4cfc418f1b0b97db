package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// htmlTagPattern matches HTML tags for stripping from snippets.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// SearXNGAdapter implements Adapter against a self-hosted SearXNG instance.
type SearXNGAdapter struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ Adapter = (*SearXNGAdapter)(nil)

// NewSearXNG creates a SearXNG adapter for the given base URL.
func NewSearXNG(baseURL string) *SearXNGAdapter {
	return &SearXNGAdapter{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: http.DefaultClient,
	}
}

type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

type searxngResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search queries the SearXNG instance and returns up to maxResults results.
func (a *SearXNGAdapter) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s&format=json&categories=general",
		a.BaseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned HTTP %d", resp.StatusCode)
	}

	var sr searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, min(len(sr.Results), maxResults))
	for i, r := range sr.Results {
		if i >= maxResults {
			break
		}
		results = append(results, Result{
			Title:   stripHTML(r.Title),
			URL:     r.URL,
			Snippet: stripHTML(r.Content),
		})
	}
	return results, nil
}

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
}
