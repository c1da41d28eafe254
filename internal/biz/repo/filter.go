package repo

import "context"

// FilterRepo is the durable store for per-scope moderation terms.
// Terms are expected to be normalized (domain.NormalizeTerm) before they
// reach this layer. (scope_id, term) pairs are unique in storage.
type FilterRepo interface {
	// InsertFilter adds a term to a scope. The insert is idempotent: a
	// duplicate is a no-op, reported via inserted=false, not an error.
	InsertFilter(ctx context.Context, scopeID, term string) (inserted bool, err error)

	// DeleteFilter removes a term from a scope. deleted=false means no such
	// row existed.
	DeleteFilter(ctx context.Context, scopeID, term string) (deleted bool, err error)

	// ListFilters returns all terms registered for one scope.
	ListFilters(ctx context.Context, scopeID string) ([]string, error)

	// ListAllFilters returns every registered term grouped by scope.
	ListAllFilters(ctx context.Context) (map[string][]string, error)
}
