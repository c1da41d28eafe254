package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP client assistant-mcp uses to call back into the running
// gateway's admin API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new admin API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Turn is one transcript entry as the admin API reports it.
type Turn struct {
	Role      string `json:"role"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// ============ Filter Operations ============

// ListFilters lists the moderation terms registered for one scope. The empty
// scope is the global one.
func (c *Client) ListFilters(scope string) ([]string, error) {
	var result struct {
		Filters []string `json:"filters"`
	}
	path := "/api/filters?scope=" + url.QueryEscape(scope)
	if err := c.get(path, &result); err != nil {
		return nil, err
	}
	return result.Filters, nil
}

// ListAllFilters lists every registered term grouped by scope.
func (c *Client) ListAllFilters() (map[string][]string, error) {
	var result struct {
		Scopes map[string][]string `json:"scopes"`
	}
	if err := c.get("/api/filters", &result); err != nil {
		return nil, err
	}
	return result.Scopes, nil
}

// AddFilter registers a term. Returns whether the term was newly added.
func (c *Client) AddFilter(scope, term string) (bool, error) {
	body := map[string]string{"scope": scope, "term": term}
	var result struct {
		Added bool `json:"added"`
	}
	if err := c.post("/api/filters", body, &result); err != nil {
		return false, err
	}
	return result.Added, nil
}

// RemoveFilter unregisters a term. Returns whether a term was actually
// removed.
func (c *Client) RemoveFilter(scope, term string) (bool, error) {
	path := fmt.Sprintf("/api/filters?scope=%s&term=%s",
		url.QueryEscape(scope), url.QueryEscape(term))
	err := c.delete(path)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ============ History Operations ============

// GetHistory fetches the most recent turns of a conversation's transcript.
func (c *Client) GetHistory(conversationID string, limit int) ([]Turn, error) {
	var result struct {
		Turns []Turn `json:"turns"`
	}
	path := fmt.Sprintf("/api/history/%s?limit=%d", url.PathEscape(conversationID), limit)
	if err := c.get(path, &result); err != nil {
		return nil, err
	}
	return result.Turns, nil
}

// ============ HTTP Helpers ============

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) delete(path string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP DELETE failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(body)}
	}
	return nil
}
