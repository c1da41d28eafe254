package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tealbridge/feishu-assistant/internal/biz/domain"
	"github.com/tealbridge/feishu-assistant/internal/biz/repo"
	"github.com/tealbridge/feishu-assistant/internal/biz/usecase"
	"github.com/tealbridge/feishu-assistant/internal/observability"
)

// Server provides the local admin HTTP API: moderation filter management and
// transcript inspection. It binds to loopback only; assistant-mcp and operator
// curl are the intended clients.
type Server struct {
	filters    *usecase.FilterUsecase
	transcript repo.TranscriptRepo

	server *http.Server
	port   int
}

// NewServer creates a new API server.
func NewServer(filters *usecase.FilterUsecase, transcript repo.TranscriptRepo, port int) *Server {
	return &Server{
		filters:    filters,
		transcript: transcript,
		port:       port,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: s.Router(),
	}

	fmt.Printf("[API] Starting HTTP server on port %d\n", s.port)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// Router builds the route table without binding a listener. Used by tests and
// by Start.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/filters", s.handleListFilters)
		r.Post("/filters", s.handleAddFilter)
		r.Delete("/filters", s.handleRemoveFilter)
		r.Get("/history/{conversationID}", s.handleHistory)
	})

	r.Handle("/metrics", observability.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}

// ============ Filter Handlers ============

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	scope, hasScope := scopeParam(r)
	if !hasScope {
		all, err := s.filters.ListAll(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"scopes": all})
		return
	}

	terms, err := s.filters.List(r.Context(), scope)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"scope": scope, "filters": terms})
}

func (s *Server) handleAddFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scope string `json:"scope"`
		Term  string `json:"term"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Term == "" {
		http.Error(w, "term is required", http.StatusBadRequest)
		return
	}

	result, err := s.filters.Add(r.Context(), req.Scope, req.Term)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"scope": req.Scope,
		"term":  domain.NormalizeTerm(req.Term),
		"added": result == usecase.FilterAdded,
	})
}

func (s *Server) handleRemoveFilter(w http.ResponseWriter, r *http.Request) {
	scope, _ := scopeParam(r)
	term := r.URL.Query().Get("term")
	if term == "" {
		http.Error(w, "term is required", http.StatusBadRequest)
		return
	}

	result, err := s.filters.Remove(r.Context(), scope, term)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if result == usecase.FilterNotFound {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{"removed": false})
		return
	}
	s.writeJSON(w, map[string]interface{}{"removed": true})
}

// ============ History Handler ============

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		http.Error(w, "conversation id is required", http.StatusBadRequest)
		return
	}

	limit := usecase.DefaultWindowSize
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	turns, err := s.transcript.RecentTurns(r.Context(), conversationID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	type turnJSON struct {
		Role      string `json:"role"`
		Author    string `json:"author"`
		Text      string `json:"text"`
		CreatedAt int64  `json:"created_at"`
	}
	out := make([]turnJSON, len(turns))
	for i, t := range turns {
		out[i] = turnJSON{
			Role:      string(t.Role),
			Author:    t.Author,
			Text:      t.Text,
			CreatedAt: t.CreatedAt.Unix(),
		}
	}
	s.writeJSON(w, map[string]interface{}{"conversation_id": conversationID, "turns": out})
}

// ============ Helpers ============

// scopeParam reads the moderation scope from the query string. The global
// scope is the empty string, so presence and value are reported separately.
func scopeParam(r *http.Request) (string, bool) {
	if !r.URL.Query().Has("scope") {
		return domain.GlobalScope, false
	}
	return r.URL.Query().Get("scope"), true
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
