// Package api exposes the HTTP surface over the chat and ingestion
// services.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/evergrid/newsrag/chat"
	"github.com/evergrid/newsrag/ingestion"
)

// ChatService is the inbound operation the API layer consumes.
type ChatService interface {
	Chat(ctx context.Context, question string, filters chat.Filters, k int) (chat.Response, error)
	SearchWithThreshold(ctx context.Context, query string, filters chat.Filters, k int, minSimilarity float64) ([]chat.SearchResult, error)
}

// Ingestor runs one ingestion pass.
type Ingestor interface {
	ProcessAll(ctx context.Context) (ingestion.Stats, error)
}

// Server routes HTTP requests to the injected services.
type Server struct {
	chat    ChatService
	ingest  Ingestor
	logger  zerolog.Logger
	handler http.Handler
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type chatRequest struct {
	Question string       `json:"question"`
	Filters  chat.Filters `json:"filters"`
	K        int          `json:"k"`
}

type searchRequest struct {
	Query         string       `json:"query"`
	Filters       chat.Filters `json:"filters"`
	K             int          `json:"k"`
	MinSimilarity float64      `json:"min_similarity"`
}

type searchResponse struct {
	Results []chat.SearchResult `json:"results"`
}

// New constructs a Server over the provided services.
func New(chatSvc ChatService, ingest Ingestor, logger zerolog.Logger) *Server {
	s := &Server{chat: chatSvc, ingest: ingest, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/chat", s.handleChat)
	mux.HandleFunc("/v1/search", s.handleSearch)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	resp, err := s.chat.Chat(r.Context(), req.Question, req.Filters, req.K)
	if err != nil {
		s.writeError(w, statusForChatError(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query cannot be empty"))
		return
	}

	k := req.K
	if k <= 0 {
		k = chat.DefaultK
	}
	if k > chat.MaxK {
		k = chat.MaxK
	}

	results, err := s.chat.SearchWithThreshold(r.Context(), req.Query, req.Filters, k, req.MinSimilarity)
	if err != nil {
		s.writeError(w, statusForChatError(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.ingest == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion is not configured"))
		return
	}

	stats, err := s.ingest.ProcessAll(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// statusForChatError maps the chat error kinds onto HTTP statuses:
// bad input is the client's fault, dependency failures are upstream.
func statusForChatError(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrRetrieval), errors.Is(err, chat.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.logger.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}
