package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/tealbridge/feishu-assistant/internal/biz/domain"
	"github.com/tealbridge/feishu-assistant/internal/biz/repo"
)

// AddResult is the outcome of registering a moderation term.
type AddResult int

const (
	FilterAdded AddResult = iota
	FilterAlreadyPresent
)

// RemoveResult is the outcome of unregistering a moderation term.
type RemoveResult int

const (
	FilterRemoved RemoveResult = iota
	FilterNotFound
)

// FilterUsecase mirrors the durable filters table into an in-memory per-scope
// term set and answers moderation checks against it. A single mutex guards
// all scopes: mutations are rare (admin commands) and checks are cheap, so
// cross-scope parallelism is not worth the extra locking surface.
//
// A scope key absent from the map means "not yet materialized", which is why
// List installs an entry even when the store returns zero rows: after that,
// absence of terms and absence of a load are distinguishable.
type FilterUsecase struct {
	store repo.FilterRepo

	mu     sync.Mutex
	scopes map[string]map[string]struct{}

	// matchers caches one compiled word-boundary pattern per term; terms are
	// shared across scopes so the cache is keyed by term alone.
	matchers map[string]*regexp.Regexp
}

// NewFilterUsecase creates a filter cache over the given store.
func NewFilterUsecase(store repo.FilterRepo) *FilterUsecase {
	return &FilterUsecase{
		store:    store,
		scopes:   make(map[string]map[string]struct{}),
		matchers: make(map[string]*regexp.Regexp),
	}
}

// LoadAll bulk-loads every registered term. It must run before the gateway
// starts serving moderation checks: an unloaded cache is indistinguishable
// from "no filters" and would silently disable moderation. On failure the
// cache stays empty and the error is returned for the caller to log; lazy
// per-scope loads in List can still repair individual scopes later.
func (uc *FilterUsecase) LoadAll(ctx context.Context) error {
	all, err := uc.store.ListAllFilters(ctx)
	if err != nil {
		return fmt.Errorf("load filters: %w", err)
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	for scope, terms := range all {
		set := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			set[domain.NormalizeTerm(t)] = struct{}{}
		}
		uc.scopes[scope] = set
	}
	return nil
}

// Add registers a term for a scope. The durable insert is idempotent; a
// duplicate is reported as FilterAlreadyPresent without another write. The
// in-memory set is updated in both cases so cache and table stay 1:1.
func (uc *FilterUsecase) Add(ctx context.Context, scopeID, term string) (AddResult, error) {
	term = domain.NormalizeTerm(term)
	if term == "" {
		return FilterAlreadyPresent, fmt.Errorf("empty filter term")
	}

	inserted, err := uc.store.InsertFilter(ctx, scopeID, term)
	if err != nil {
		return FilterAlreadyPresent, fmt.Errorf("insert filter: %w", err)
	}

	uc.mu.Lock()
	set, ok := uc.scopes[scopeID]
	if !ok {
		set = make(map[string]struct{})
		uc.scopes[scopeID] = set
	}
	set[term] = struct{}{}
	uc.mu.Unlock()

	if !inserted {
		return FilterAlreadyPresent, nil
	}
	return FilterAdded, nil
}

// Remove unregisters a term. The cache entry is dropped only when storage
// reports a row was actually deleted, so a no-op delete can never make the
// cache diverge from the table.
func (uc *FilterUsecase) Remove(ctx context.Context, scopeID, term string) (RemoveResult, error) {
	term = domain.NormalizeTerm(term)

	deleted, err := uc.store.DeleteFilter(ctx, scopeID, term)
	if err != nil {
		return FilterNotFound, fmt.Errorf("delete filter: %w", err)
	}
	if !deleted {
		return FilterNotFound, nil
	}

	uc.mu.Lock()
	if set, ok := uc.scopes[scopeID]; ok {
		delete(set, term)
	}
	uc.mu.Unlock()
	return FilterRemoved, nil
}

// List returns the terms registered for a scope, sorted. Scopes missed by
// LoadAll (for example after a partial startup failure) are lazily loaded
// from the store and merged into the cache.
func (uc *FilterUsecase) List(ctx context.Context, scopeID string) ([]string, error) {
	uc.mu.Lock()
	_, ok := uc.scopes[scopeID]
	uc.mu.Unlock()

	if !ok {
		terms, err := uc.store.ListFilters(ctx, scopeID)
		if err != nil {
			return nil, fmt.Errorf("list filters: %w", err)
		}
		uc.mu.Lock()
		set, again := uc.scopes[scopeID]
		if !again {
			set = make(map[string]struct{}, len(terms))
			uc.scopes[scopeID] = set
		}
		for _, t := range terms {
			set[domain.NormalizeTerm(t)] = struct{}{}
		}
		uc.mu.Unlock()
	}

	uc.mu.Lock()
	set := uc.scopes[scopeID]
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	uc.mu.Unlock()

	sort.Strings(out)
	return out, nil
}

// ListAll returns every registered term grouped by scope, straight from the
// store. Admin surfaces use it; the moderation path never does.
func (uc *FilterUsecase) ListAll(ctx context.Context) (map[string][]string, error) {
	all, err := uc.store.ListAllFilters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all filters: %w", err)
	}
	for scope := range all {
		sort.Strings(all[scope])
	}
	return all, nil
}

// ContainsFilteredTerm reports whether text matches any term registered for
// the scope. Terms match as literal substrings bounded by non-word
// characters, case-insensitively; regex metacharacters in a term are escaped
// so operators always filter exactly the text they registered.
func (uc *FilterUsecase) ContainsFilteredTerm(text, scopeID string) bool {
	uc.mu.Lock()
	set := uc.scopes[scopeID]
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	uc.mu.Unlock()

	for _, term := range terms {
		if uc.matcher(term).MatchString(text) {
			return true
		}
	}
	return false
}

// nonWord matches one character outside the word class. The boundary groups
// below use it instead of \b: \b asserts a word/non-word transition, so it can
// never match at the edge of a term that starts or ends with a non-word
// character ("c++", ".net") and would silently disable such filters.
const nonWord = `[^0-9A-Za-z_]`

func (uc *FilterUsecase) matcher(term string) *regexp.Regexp {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	re, ok := uc.matchers[term]
	if !ok {
		re = regexp.MustCompile(`(?i)(?:^|` + nonWord + `)` + regexp.QuoteMeta(term) + `(?:` + nonWord + `|$)`)
		uc.matchers[term] = re
	}
	return re
}
