package repo

import "context"

// SearchResult is one entry returned by the retrieval endpoint.
// Snippet is already truncated by the client (200 chars plus ellipsis).
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// SearchRepo is the external web retrieval endpoint. Zero results is a
// valid response, not an error.
type SearchRepo interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}
