// Package server exposes the HTTP API: source registration, scan and
// reindex job submission, document browsing, and hybrid search.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/jobs"
	"github.com/docsift/docsift/internal/search"
	"github.com/docsift/docsift/internal/store"
)

// Server holds the API dependencies.
type Server struct {
	meta     store.MetadataStore
	runner   *jobs.Runner
	searcher *search.Service
}

// New creates the server.
func New(meta store.MetadataStore, runner *jobs.Runner, searcher *search.Service) *Server {
	return &Server{meta: meta, runner: runner, searcher: searcher}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/sources", func(r chi.Router) {
		r.Post("/", s.handleCreateSource)
		r.Get("/", s.handleListSources)
		r.Post("/{id}/scan", s.handleScanSource)
	})

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Get("/{id}", s.handleGetDocument)
		r.Get("/{id}/chunks", s.handleListChunks)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
	})

	r.Post("/reindex", s.handleReindex)
	r.Post("/search", s.handleSearch)

	return r
}

// requestLogger logs method, path, status, and latency for every request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSourceRequest struct {
	Name   string            `json:"name"`
	Type   domain.SourceType `json:"type"`
	Path   string            `json:"path"`
	Config map[string]any    `json:"config,omitempty"`
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}
	if req.Name == "" || req.Path == "" {
		writeError(w, errs.Validation("name and path are required"))
		return
	}
	switch req.Type {
	case domain.SourceTypeDirectory, domain.SourceTypeBookmarks:
	default:
		writeError(w, errs.Validation("unknown source type %q", req.Type))
		return
	}

	src := &domain.Source{
		ID:     domain.NewID(),
		Name:   req.Name,
		Type:   req.Type,
		Path:   req.Path,
		Config: req.Config,
	}
	if err := s.meta.UpsertSource(r.Context(), src); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.meta.ListSources(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleScanSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.meta.GetSource(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	job, err := s.runner.Enqueue(r.Context(), domain.JobTypeScanSource, map[string]any{"source_id": id})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	job, err := s.runner.Enqueue(r.Context(), domain.JobTypeReindexAll, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.meta.ListDocuments(r.Context(), r.URL.Query().Get("source_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.meta.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.meta.GetDocument(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	chunks, err := s.meta.ListChunks(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, errs.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	list, err := s.meta.ListJobs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.meta.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}
	results, err := s.searcher.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindExtraction:
		status = http.StatusUnprocessableEntity
	case errs.KindBackendUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
