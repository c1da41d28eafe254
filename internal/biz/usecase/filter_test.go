package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type mockFilterStore struct {
	mu      sync.Mutex
	rows    map[string]map[string]struct{}
	listErr error
	allErr  error
}

func newMockFilterStore() *mockFilterStore {
	return &mockFilterStore{rows: make(map[string]map[string]struct{})}
}

func (m *mockFilterStore) InsertFilter(ctx context.Context, scopeID, term string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.rows[scopeID]
	if !ok {
		set = make(map[string]struct{})
		m.rows[scopeID] = set
	}
	if _, dup := set[term]; dup {
		return false, nil
	}
	set[term] = struct{}{}
	return true, nil
}

func (m *mockFilterStore) DeleteFilter(ctx context.Context, scopeID, term string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.rows[scopeID]
	if !ok {
		return false, nil
	}
	if _, exists := set[term]; !exists {
		return false, nil
	}
	delete(set, term)
	return true, nil
}

func (m *mockFilterStore) ListFilters(ctx context.Context, scopeID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []string
	for t := range m.rows[scopeID] {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockFilterStore) ListAllFilters(ctx context.Context) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allErr != nil {
		return nil, m.allErr
	}
	out := make(map[string][]string)
	for scope, set := range m.rows {
		for t := range set {
			out[scope] = append(out[scope], t)
		}
	}
	return out, nil
}

func (m *mockFilterStore) count(scopeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[scopeID])
}

func TestAddIsIdempotent(t *testing.T) {
	store := newMockFilterStore()
	uc := NewFilterUsecase(store)

	res, err := uc.Add(context.Background(), "scope1", "Bad")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res != FilterAdded {
		t.Errorf("First add: expected FilterAdded, got %v", res)
	}

	res, err = uc.Add(context.Background(), "scope1", "bad")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res != FilterAlreadyPresent {
		t.Errorf("Second add: expected FilterAlreadyPresent, got %v", res)
	}

	if store.count("scope1") != 1 {
		t.Errorf("Expected exactly 1 stored row, got %d", store.count("scope1"))
	}
	terms, err := uc.List(context.Background(), "scope1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(terms) != 1 || terms[0] != "bad" {
		t.Errorf("Expected cache [bad], got %v", terms)
	}
}

func TestRemoveMissingTerm(t *testing.T) {
	store := newMockFilterStore()
	uc := NewFilterUsecase(store)

	res, err := uc.Remove(context.Background(), "scope1", "never-added")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if res != FilterNotFound {
		t.Errorf("Expected FilterNotFound, got %v", res)
	}
}

func TestRemoveMirrorsStoreDeletion(t *testing.T) {
	store := newMockFilterStore()
	uc := NewFilterUsecase(store)

	if _, err := uc.Add(context.Background(), "scope1", "spoiler"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	res, err := uc.Remove(context.Background(), "scope1", "SPOILER")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if res != FilterRemoved {
		t.Errorf("Expected FilterRemoved, got %v", res)
	}
	if uc.ContainsFilteredTerm("what a spoiler", "scope1") {
		t.Error("Term should be gone from the cache after removal")
	}
	if store.count("scope1") != 0 {
		t.Errorf("Expected empty store, got %d rows", store.count("scope1"))
	}
}

func TestContainsFilteredTermWordBoundaries(t *testing.T) {
	store := newMockFilterStore()
	uc := NewFilterUsecase(store)
	if _, err := uc.Add(context.Background(), "scope1", "bad"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	cases := []struct {
		text string
		want bool
	}{
		{"this is bad", true},
		{"this is BAD!", true},
		{"bad day today", true},
		{"badger is cute", false},
		{"sinbad the sailor", false},
		{"(bad)", true},
		{"", false},
	}
	for _, c := range cases {
		if got := uc.ContainsFilteredTerm(c.text, "scope1"); got != c.want {
			t.Errorf("ContainsFilteredTerm(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestContainsFilteredTermEscapesMetacharacters(t *testing.T) {
	store := newMockFilterStore()
	uc := NewFilterUsecase(store)
	if _, err := uc.Add(context.Background(), "scope1", "c++"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !uc.ContainsFilteredTerm("i love c++ so much", "scope1") {
		t.Error("Expected literal match for term with metacharacters")
	}
	if uc.ContainsFilteredTerm("i love c so much", "scope1") {
		t.Error("Term must not behave as a regular expression")
	}
}

func TestContainsFilteredTermNonWordEdges(t *testing.T) {
	store := newMockFilterStore()
	uc := NewFilterUsecase(store)
	for _, term := range []string{"c++", ".net"} {
		if _, err := uc.Add(context.Background(), "scope1", term); err != nil {
			t.Fatalf("Add(%q): %v", term, err)
		}
	}

	cases := []struct {
		text string
		want bool
	}{
		{"c++", true},
		{"try c++", true},
		{"c++ rocks", true},
		{"(c++)", true},
		{"c+ and c#", false},
		{"ported to .net today", true},
		{"subnet mask", false},
		{"internet", false},
	}
	for _, c := range cases {
		if got := uc.ContainsFilteredTerm(c.text, "scope1"); got != c.want {
			t.Errorf("ContainsFilteredTerm(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestContainsFilteredTermUnknownScope(t *testing.T) {
	uc := NewFilterUsecase(newMockFilterStore())
	if uc.ContainsFilteredTerm("anything", "no-such-scope") {
		t.Error("Unknown scope must behave as an empty filter set")
	}
}

func TestLoadAllHydratesEveryScope(t *testing.T) {
	store := newMockFilterStore()
	store.rows["s1"] = map[string]struct{}{"alpha": {}}
	store.rows["s2"] = map[string]struct{}{"beta": {}, "gamma": {}}

	uc := NewFilterUsecase(store)
	if err := uc.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if !uc.ContainsFilteredTerm("alpha particle", "s1") {
		t.Error("s1 terms not loaded")
	}
	if !uc.ContainsFilteredTerm("beta release", "s2") {
		t.Error("s2 terms not loaded")
	}
}

func TestLoadAllFailureLeavesCacheEmpty(t *testing.T) {
	store := newMockFilterStore()
	store.rows["s1"] = map[string]struct{}{"alpha": {}}
	store.allErr = errors.New("store down")

	uc := NewFilterUsecase(store)
	if err := uc.LoadAll(context.Background()); err == nil {
		t.Fatal("Expected LoadAll error")
	}
	if uc.ContainsFilteredTerm("alpha", "s1") {
		t.Error("Cache must stay empty after a failed bulk load")
	}

	// The lazy path can still repair the scope afterwards.
	terms, err := uc.List(context.Background(), "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(terms) != 1 || terms[0] != "alpha" {
		t.Errorf("Expected lazy load of [alpha], got %v", terms)
	}
	if !uc.ContainsFilteredTerm("alpha", "s1") {
		t.Error("Lazy load must populate the moderation cache")
	}
}

func TestListInstallsEmptyScope(t *testing.T) {
	store := newMockFilterStore()
	uc := NewFilterUsecase(store)

	terms, err := uc.List(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(terms) != 0 {
		t.Errorf("Expected no terms, got %v", terms)
	}

	// A later list for the same scope must not hit the store again.
	store.listErr = errors.New("store down")
	if _, err := uc.List(context.Background(), "fresh"); err != nil {
		t.Errorf("Expected cached empty scope, got store error %v", err)
	}
}
