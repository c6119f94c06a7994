package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/briefly-ai/briefly/engine/domain"
	"github.com/briefly-ai/briefly/engine/ingest"
	"github.com/briefly-ai/briefly/engine/search"
	"github.com/briefly-ai/briefly/engine/semantic"
	"github.com/briefly-ai/briefly/engine/store"
	"github.com/briefly-ai/briefly/pkg/metrics"
)

const defaultListLimit = 10

// server bundles the services behind the HTTP API.
type server struct {
	ingest  *ingest.Service
	search  *search.Service
	store   *store.Store
	index   semantic.Index
	metrics *metrics.Registry
	logger  *slog.Logger
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /articles/{$}", s.handleCreateArticle)
	mux.HandleFunc("GET /articles/{$}", s.handleListArticles)
	mux.HandleFunc("GET /articles/{id}", s.handleGetArticle)
	mux.HandleFunc("POST /search/{$}", s.handleSearch)
	mux.HandleFunc("POST /admin/reindex", s.handleReindex)
	return mux
}

// --- Request/response shapes ---

// CreateArticleRequest is the JSON body for POST /articles/.
type CreateArticleRequest struct {
	URL         string `json:"url"`
	SummaryType string `json:"summary_type,omitempty"`
}

// SummaryResponse is one generated summary.
type SummaryResponse struct {
	Type      domain.SummaryType `json:"summary_type"`
	Text      string             `json:"summary_text"`
	KeyPoints []string           `json:"key_points"`
	Truncated bool               `json:"truncated,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// ArticleResponse is the article representation returned by the API.
type ArticleResponse struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Status      string            `json:"status"`
	FailureKind string            `json:"failure_kind,omitempty"`
	Summaries   []SummaryResponse `json:"summaries,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ListArticlesResponse is the JSON response for GET /articles/.
type ListArticlesResponse struct {
	Total    int               `json:"total"`
	Skip     int               `json:"skip"`
	Limit    int               `json:"limit"`
	Articles []ArticleResponse `json:"articles"`
}

// SearchRequest is the JSON body for POST /search/.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResponse is the JSON response for POST /search/.
type SearchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
}

func articleResponse(a *domain.Article, sums []domain.Summary) ArticleResponse {
	resp := ArticleResponse{
		ID:          a.ID,
		URL:         a.URL,
		Title:       a.Title,
		Status:      string(a.Status),
		FailureKind: string(a.FailureKind),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	for _, sum := range sums {
		resp.Summaries = append(resp.Summaries, SummaryResponse{
			Type:      sum.Type,
			Text:      sum.Text,
			KeyPoints: sum.KeyPoints,
			Truncated: sum.Truncated,
			CreatedAt: sum.CreatedAt,
		})
	}
	return resp
}

// --- Handlers ---

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "briefly",
		"docs":    "POST /articles/ to ingest, POST /search/ to query",
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready, err := s.store.ReadyCount(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	points, err := s.index.Count(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"ready_articles": ready,
		"indexed_points": points,
	})
}

func (s *server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var req CreateArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.E(domain.KindInvalidInput, "api.createArticle", err))
		return
	}
	st, err := domain.ValidateSummaryType(req.SummaryType)
	if err != nil {
		s.writeError(w, err)
		return
	}

	article, sum, created, err := s.ingest.Submit(r.Context(), req.URL, st)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	var sums []domain.Summary
	if sum != nil {
		sums = []domain.Summary{*sum}
	}
	writeJSON(w, status, articleResponse(article, sums))
}

func (s *server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", defaultListLimit)
	if skip < 0 || limit < 0 {
		s.writeError(w, domain.Ef(domain.KindInvalidInput, "api.listArticles", "skip and limit must be non-negative"))
		return
	}

	articles, total, err := s.store.ListArticles(r.Context(), skip, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := ListArticlesResponse{Total: total, Skip: skip, Limit: limit, Articles: []ArticleResponse{}}
	for i := range articles {
		resp.Articles = append(resp.Articles, articleResponse(&articles[i], nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	article, err := s.store.GetArticle(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sums, err := s.store.SummariesFor(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articleResponse(article, sums))
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.E(domain.KindInvalidInput, "api.search", err))
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultListLimit
	}

	results, err := s.search.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: req.Query, Results: results})
}

func (s *server) handleReindex(w http.ResponseWriter, r *http.Request) {
	n, err := s.ingest.Reindex(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"indexed": n})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status >= 500 {
		s.logger.Error("request failed", "kind", kind, "error", err)
	} else {
		s.logger.Info("request rejected", "kind", kind, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: string(kind), Detail: err.Error()})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindIngestionInProgress:
		return http.StatusConflict
	case domain.KindContentTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.KindUnextractableContent:
		return http.StatusUnprocessableEntity
	case domain.KindFetchTimeout, domain.KindFetchFailed, domain.KindFetchRejected:
		return http.StatusBadGateway
	case domain.KindGenerationUnavailable, domain.KindGenerationTimeout, domain.KindGenerationMalformed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
