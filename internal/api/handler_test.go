package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tealbridge/feishu-assistant/internal/biz/domain"
	"github.com/tealbridge/feishu-assistant/internal/biz/usecase"
)

type mockFilterStore struct {
	rows map[string]map[string]struct{}
}

func newMockFilterStore() *mockFilterStore {
	return &mockFilterStore{rows: make(map[string]map[string]struct{})}
}

func (m *mockFilterStore) InsertFilter(ctx context.Context, scopeID, term string) (bool, error) {
	set, ok := m.rows[scopeID]
	if !ok {
		set = make(map[string]struct{})
		m.rows[scopeID] = set
	}
	if _, exists := set[term]; exists {
		return false, nil
	}
	set[term] = struct{}{}
	return true, nil
}

func (m *mockFilterStore) DeleteFilter(ctx context.Context, scopeID, term string) (bool, error) {
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
	var out []string
	for t := range m.rows[scopeID] {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockFilterStore) ListAllFilters(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	for scope, set := range m.rows {
		for t := range set {
			out[scope] = append(out[scope], t)
		}
	}
	return out, nil
}

type mockTranscript struct {
	rows map[string][]domain.Turn
}

func (m *mockTranscript) AppendTurn(ctx context.Context, conversationID string, turn domain.Turn) error {
	m.rows[conversationID] = append(m.rows[conversationID], turn)
	return nil
}

func (m *mockTranscript) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	turns := m.rows[conversationID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func newTestServer(t *testing.T) (*Server, *mockFilterStore, *mockTranscript) {
	t.Helper()
	store := newMockFilterStore()
	transcript := &mockTranscript{rows: make(map[string][]domain.Turn)}
	filters := usecase.NewFilterUsecase(store)
	return NewServer(filters, transcript, 0), store, transcript
}

func TestAddFilterEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	router := srv.Router()

	body := `{"scope":"oc_group1","term":"Spoiler"}`
	req := httptest.NewRequest(http.MethodPost, "/api/filters", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Term  string `json:"term"`
		Added bool   `json:"added"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !resp.Added {
		t.Error("Expected added=true on first insert")
	}
	if resp.Term != "spoiler" {
		t.Errorf("Expected normalized term 'spoiler', got %q", resp.Term)
	}
	if _, ok := store.rows["oc_group1"]["spoiler"]; !ok {
		t.Error("Term not in store")
	}

	// Second insert reports added=false.
	req = httptest.NewRequest(http.MethodPost, "/api/filters", strings.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Added {
		t.Error("Expected added=false on duplicate insert")
	}
}

func TestAddFilterRequiresTerm(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/filters", strings.NewReader(`{"scope":"s"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestListFiltersByScope(t *testing.T) {
	srv, store, _ := newTestServer(t)
	store.rows["oc_group1"] = map[string]struct{}{"beta": {}, "alpha": {}}
	store.rows[""] = map[string]struct{}{"global": {}}

	req := httptest.NewRequest(http.MethodGet, "/api/filters?scope=oc_group1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var resp struct {
		Filters []string `json:"filters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(resp.Filters) != 2 || resp.Filters[0] != "alpha" || resp.Filters[1] != "beta" {
		t.Errorf("Expected sorted [alpha beta], got %v", resp.Filters)
	}

	// Explicit empty scope selects the global scope, not all scopes.
	req = httptest.NewRequest(http.MethodGet, "/api/filters?scope=", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(resp.Filters) != 1 || resp.Filters[0] != "global" {
		t.Errorf("Expected [global], got %v", resp.Filters)
	}
}

func TestListAllFilters(t *testing.T) {
	srv, store, _ := newTestServer(t)
	store.rows["oc_group1"] = map[string]struct{}{"one": {}}
	store.rows["oc_group2"] = map[string]struct{}{"two": {}}

	req := httptest.NewRequest(http.MethodGet, "/api/filters", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var resp struct {
		Scopes map[string][]string `json:"scopes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(resp.Scopes) != 2 {
		t.Errorf("Expected 2 scopes, got %d", len(resp.Scopes))
	}
}

func TestRemoveFilterEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	store.rows["oc_group1"] = map[string]struct{}{"spoiler": {}}

	req := httptest.NewRequest(http.MethodDelete, "/api/filters?scope=oc_group1&term=spoiler", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if len(store.rows["oc_group1"]) != 0 {
		t.Error("Term still in store after delete")
	}

	// Deleting again reports not found.
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/filters?scope=oc_group1&term=spoiler", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for missing term, got %d", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, _, transcript := newTestServer(t)
	now := time.Now()
	transcript.rows["oc_chat"] = []domain.Turn{
		{Role: domain.RoleUser, Author: "u1", Text: "hello", CreatedAt: now},
		{Role: domain.RoleAssistant, Author: "assistant", Text: "hi", CreatedAt: now},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history/oc_chat", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		ConversationID string `json:"conversation_id"`
		Turns          []struct {
			Role string `json:"role"`
			Text string `json:"text"`
		} `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.ConversationID != "oc_chat" {
		t.Errorf("Unexpected conversation id %q", resp.ConversationID)
	}
	if len(resp.Turns) != 2 || resp.Turns[0].Role != "user" || resp.Turns[1].Text != "hi" {
		t.Errorf("Unexpected turns: %+v", resp.Turns)
	}
}

func TestHistoryLimit(t *testing.T) {
	srv, _, transcript := newTestServer(t)
	for i := 0; i < 10; i++ {
		transcript.rows["oc_chat"] = append(transcript.rows["oc_chat"],
			domain.Turn{Role: domain.RoleUser, Author: "u", Text: "m", CreatedAt: time.Now()})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history/oc_chat?limit=3", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var resp struct {
		Turns []json.RawMessage `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(resp.Turns) != 3 {
		t.Errorf("Expected 3 turns, got %d", len(resp.Turns))
	}
}
