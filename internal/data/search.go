package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tealbridge/feishu-assistant/internal/biz/repo"
)

const (
	searchTimeout    = 15 * time.Second
	snippetMaxLen    = 200
	maxSearchResults = 5
)

// SearchClient queries a SearxNG-compatible JSON search API. It implements
// repo.SearchRepo. Zero results is a valid response; transport and HTTP
// errors are returned for the orchestrator to degrade in-band.
type SearchClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSearchClient creates a retrieval client for the given SearxNG base URL.
func NewSearchClient(baseURL string) *SearchClient {
	return &SearchClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: searchTimeout,
		},
	}
}

// Search runs one web query and returns at most maxSearchResults entries
// with snippets truncated for prompt injection. A nil or unconfigured client
// reports an error so the orchestrator degrades in-band.
func (c *SearchClient) Search(ctx context.Context, query string) ([]repo.SearchResult, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("search endpoint not configured")
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]repo.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if len(results) >= maxSearchResults {
			break
		}
		results = append(results, repo.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncateSnippet(r.Content),
		})
	}
	return results, nil
}

// truncateSnippet caps a snippet at snippetMaxLen characters. Truncation
// counts runes, not bytes: a byte slice would cut multi-byte text mid-rune
// and inject invalid UTF-8 into the prompt.
func truncateSnippet(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= snippetMaxLen {
		return s
	}
	return string(runes[:snippetMaxLen]) + "..."
}
